package course

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/elimulabs/elimu/core"
)

type memRepo struct {
	courses     map[string]Course
	enrollments map[string]Enrollment // key userID|courseID
}

func newMemRepo() *memRepo {
	return &memRepo{courses: map[string]Course{}, enrollments: map[string]Enrollment{}}
}

func enrollKey(userID, courseID string) string { return userID + "|" + courseID }

func (m *memRepo) CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error) {
	c.ID = fmt.Sprintf("c%d", len(m.courses)+1)
	m.courses[c.ID] = c
	return c, nil
}

func (m *memRepo) QueryCourses(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Course, error) {
	var out []Course
	for _, c := range m.courses {
		out = append(out, c)
	}
	return out, nil
}

func (m *memRepo) GetCourseByID(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return Course{}, ErrNotFound
}

func (m *memRepo) CreateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error) {
	e.ID = fmt.Sprintf("e%d", len(m.enrollments)+1)
	m.enrollments[enrollKey(e.UserID, e.CourseID)] = e
	return e, nil
}

func (m *memRepo) GetEnrollment(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (Enrollment, error) {
	if e, ok := m.enrollments[enrollKey(userID, courseID)]; ok {
		return e, nil
	}
	return Enrollment{}, ErrNotEnrolled
}

func (m *memRepo) QueryEnrollmentsByUser(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Enrollment, error) {
	var out []Enrollment
	for _, e := range m.enrollments {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memRepo) QueryEnrollments(ctx context.Context, exec ...core.DBExecutor) ([]Enrollment, error) {
	var out []Enrollment
	for _, e := range m.enrollments {
		out = append(out, e)
	}
	return out, nil
}

func (m *memRepo) UpdateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error) {
	m.enrollments[enrollKey(e.UserID, e.CourseID)] = e
	return e, nil
}

func (m *memRepo) QueryUsernames(ctx context.Context, exec ...core.DBExecutor) (map[string]string, error) {
	return nil, nil
}

func (m *memRepo) GetCertificate(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (Certificate, error) {
	e, err := m.GetEnrollment(ctx, userID, courseID)
	if err != nil || !e.IsCompleted() {
		return Certificate{}, ErrNotFound
	}
	c := m.courses[courseID]
	return Certificate{
		ID:          CertificateID(courseID, e.CompletedAt.Time),
		UserID:      userID,
		CourseID:    courseID,
		CourseTitle: c.Title,
		CompletedAt: e.CompletedAt.Time,
	}, nil
}

type memAwarder struct {
	xp, points int
	calls      int
}

func (m *memAwarder) Award(ctx context.Context, userID string, xp, points int, reason string) error {
	m.xp += xp
	m.points += points
	m.calls++
	return nil
}

type nopLogger struct{}

func (nopLogger) Enable(on bool)                        {}
func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Warn(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Fatal(msg string, args ...interface{}) {}

func setup(t *testing.T) (Service, *memRepo, *memAwarder) {
	t.Helper()
	repo, awarder := newMemRepo(), &memAwarder{}
	return NewService(repo, awarder, nopLogger{}), repo, awarder
}

func TestEnroll(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setup(t)
	repo.courses["c1"] = Course{ID: "c1", Title: "Intro to Algebra"}

	if _, err := svc.Enroll(ctx, "u1", "c1"); err != nil {
		t.Fatalf("first enrollment: %v", err)
	}
	if _, err := svc.Enroll(ctx, "u1", "c1"); err != ErrAlreadyEnrolled {
		t.Errorf("expected ErrAlreadyEnrolled; got %v", err)
	}
	if _, err := svc.Enroll(ctx, "u1", "ghost"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for unknown course; got %v", err)
	}
}

func TestUpdateProgress(t *testing.T) {
	ctx := context.Background()
	svc, repo, awarder := setup(t)
	repo.courses["c1"] = Course{ID: "c1", Title: "Intro to Algebra"}
	if _, err := svc.Enroll(ctx, "u1", "c1"); err != nil {
		t.Fatal(err)
	}

	e, err := svc.UpdateProgress(ctx, "u1", "c1", 40)
	if err != nil || e.Progress != 40 {
		t.Fatalf("expected progress 40; got %d (%v)", e.Progress, err)
	}

	// never backwards
	if e, _ = svc.UpdateProgress(ctx, "u1", "c1", 10); e.Progress != 40 {
		t.Errorf("expected progress to stay at 40; got %d", e.Progress)
	}

	// hitting 100 completes and awards the bonus once
	e, err = svc.UpdateProgress(ctx, "u1", "c1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if !e.IsCompleted() || !e.CompletedAt.Valid {
		t.Errorf("expected completed enrollment; got %+v", e)
	}
	if awarder.calls != 1 || awarder.xp != 50 || awarder.points != 25 {
		t.Errorf("expected one 50/25 award; got %d calls, %d/%d", awarder.calls, awarder.xp, awarder.points)
	}

	// terminal: no further mutation or award
	if _, err = svc.UpdateProgress(ctx, "u1", "c1", 100); err != ErrAlreadyCompleted {
		t.Errorf("expected ErrAlreadyCompleted on replay; got %v", err)
	}
	if awarder.calls != 1 {
		t.Errorf("expected no second award; got %d calls", awarder.calls)
	}
}

func TestPassQuiz(t *testing.T) {
	ctx := context.Background()
	svc, repo, awarder := setup(t)
	repo.courses["c1"] = Course{ID: "c1", Title: "Intro to Algebra"}
	if _, err := svc.Enroll(ctx, "u1", "c1"); err != nil {
		t.Fatal(err)
	}

	e, err := svc.PassQuiz(ctx, "u1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if !e.QuizPassed() {
		t.Error("expected quiz_passed_at to be set")
	}
	if awarder.calls != 1 || awarder.xp != 20 || awarder.points != 0 {
		t.Errorf("expected one 20/0 award; got %d calls, %d/%d", awarder.calls, awarder.xp, awarder.points)
	}

	// passing again is a no-op, never a second bonus
	if _, err = svc.PassQuiz(ctx, "u1", "c1"); err != nil {
		t.Fatal(err)
	}
	if awarder.calls != 1 {
		t.Errorf("expected no second award; got %d calls", awarder.calls)
	}

	if _, err = svc.PassQuiz(ctx, "u2", "c1"); err != ErrNotEnrolled {
		t.Errorf("expected ErrNotEnrolled; got %v", err)
	}
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setup(t)
	repo.courses["c1"] = Course{ID: "c1", Title: "Intro to Algebra"}
	if _, err := svc.Enroll(ctx, "u1", "c1"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Complete(ctx, "u1", "c1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Complete(ctx, "u1", "c1"); err != ErrAlreadyCompleted {
		t.Errorf("expected ErrAlreadyCompleted; got %v", err)
	}

	cert, err := svc.Certificate(ctx, "u1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if cert.CourseTitle != "Intro to Algebra" {
		t.Errorf("unexpected certificate: %+v", cert)
	}
}

func TestCertificateID(t *testing.T) {
	completed := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	got := CertificateID("abc123def456", completed)
	if want := "CERT-ABC123DE-20240315"; got != want {
		t.Errorf("expected %q; got %q", want, got)
	}
}
