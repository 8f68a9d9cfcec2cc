package course

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/gamify"
)

var (
	ErrNotFound         = errors.New("course not found")
	ErrNotEnrolled      = errors.New("not enrolled in course")
	ErrAlreadyEnrolled  = errors.New("already enrolled in course")
	ErrAlreadyCompleted = errors.New("course already completed")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		QueryCourses(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Course, error)
		GetCourseByID(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)

		CreateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		GetEnrollment(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (Enrollment, error)
		QueryEnrollmentsByUser(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Enrollment, error)
		QueryEnrollments(ctx context.Context, exec ...core.DBExecutor) ([]Enrollment, error)
		UpdateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)

		// QueryUsernames maps user ID to username for analytics joins.
		QueryUsernames(ctx context.Context, exec ...core.DBExecutor) (map[string]string, error)
		// GetCertificate joins a completed enrollment with its course
		// title and the learner's display name.
		GetCertificate(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (Certificate, error)
	}

	// Awarder credits XP and reward points for course milestones.
	// Satisfied by an adapter over the gamify service.
	Awarder interface {
		Award(ctx context.Context, userID string, xp, points int, reason string) error
	}

	Service interface {
		Create(ctx context.Context, nc NewCourse) (Course, error)
		Browse(ctx context.Context, ordering []core.DBOrdering) ([]Course, error)
		Get(ctx context.Context, id string) (Course, error)
		Enroll(ctx context.Context, userID, courseID string) (Enrollment, error)
		MyEnrollments(ctx context.Context, userID string) ([]Enrollment, error)
		// UpdateProgress moves an enrollment's progress forward; hitting
		// 100 completes the course and grants the completion bonus.
		// Further updates return ErrAlreadyCompleted.
		UpdateProgress(ctx context.Context, userID, courseID string, progress int) (Enrollment, error)
		// PassQuiz grants the quiz bonus, once per enrollment; passing
		// again is a no-op.
		PassQuiz(ctx context.Context, userID, courseID string) (Enrollment, error)
		Complete(ctx context.Context, userID, courseID string) (Enrollment, error)
		Certificate(ctx context.Context, userID, courseID string) (Certificate, error)
		Stats(ctx context.Context) (Analytics, error)
	}

	service struct {
		repo    Repository
		awarder Awarder
		logger  core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, awarder Awarder, logger core.Logger) Service {
	return &service{repo: repo, awarder: awarder, logger: logger}
}

func (svc *service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	if err := core.Validate.StructCtx(ctx, nc); err != nil {
		return Course{}, err
	}
	return svc.repo.CreateCourse(ctx, nc.Course())
}

func (svc *service) Browse(ctx context.Context, ordering []core.DBOrdering) ([]Course, error) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}} // newest first
	}
	return svc.repo.QueryCourses(ctx, ordering)
}

func (svc *service) Get(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourseByID(ctx, id)
}

func (svc *service) Enroll(ctx context.Context, userID, courseID string) (Enrollment, error) {
	if _, err := svc.repo.GetCourseByID(ctx, courseID); err != nil {
		return Enrollment{}, err
	}
	if _, err := svc.repo.GetEnrollment(ctx, userID, courseID); err == nil {
		return Enrollment{}, ErrAlreadyEnrolled
	} else if errors.Cause(err) != ErrNotEnrolled {
		return Enrollment{}, err
	}
	return svc.repo.CreateEnrollment(ctx, Enrollment{
		UserID:    userID,
		CourseID:  courseID,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *service) MyEnrollments(ctx context.Context, userID string) ([]Enrollment, error) {
	return svc.repo.QueryEnrollmentsByUser(ctx, userID)
}

func (svc *service) UpdateProgress(ctx context.Context, userID, courseID string, progress int) (Enrollment, error) {
	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}

	e, err := svc.repo.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if e.IsCompleted() {
		// completion is terminal; callers treating replays as benign
		// check for this error explicitly
		return Enrollment{}, ErrAlreadyCompleted
	}
	if progress <= e.Progress {
		return e, nil // progress never moves backwards
	}

	e.Progress = progress
	if progress == 100 {
		return svc.complete(ctx, e)
	}
	return svc.repo.UpdateEnrollment(ctx, e)
}

func (svc *service) PassQuiz(ctx context.Context, userID, courseID string) (Enrollment, error) {
	e, err := svc.repo.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if e.QuizPassed() {
		return e, nil // bonus already granted
	}

	e.QuizPassedAt = null.TimeFrom(time.Now().UTC())
	updated, err := svc.repo.UpdateEnrollment(ctx, e)
	if err != nil {
		return Enrollment{}, err
	}
	if err = svc.awarder.Award(ctx, e.UserID, gamify.QuizBonusXP, 0, "quiz completion bonus"); err != nil {
		svc.logger.Error("course: awarding quiz bonus", err)
	}
	return updated, nil
}

func (svc *service) Complete(ctx context.Context, userID, courseID string) (Enrollment, error) {
	e, err := svc.repo.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if e.IsCompleted() {
		return Enrollment{}, ErrAlreadyCompleted
	}
	e.Progress = 100
	return svc.complete(ctx, e)
}

func (svc *service) complete(ctx context.Context, e Enrollment) (Enrollment, error) {
	e.CompletedAt = null.TimeFrom(time.Now().UTC())
	updated, err := svc.repo.UpdateEnrollment(ctx, e)
	if err != nil {
		return Enrollment{}, err
	}
	if err = svc.awarder.Award(ctx, e.UserID, gamify.CourseBonusXP, gamify.CourseBonusPoints, "course completion bonus"); err != nil {
		// the enrollment completed; the bonus can be reconciled later
		svc.logger.Error("course: awarding completion bonus", err)
	}
	return updated, nil
}

func (svc *service) Certificate(ctx context.Context, userID, courseID string) (Certificate, error) {
	return svc.repo.GetCertificate(ctx, userID, courseID)
}

func (svc *service) Stats(ctx context.Context) (Analytics, error) {
	enrollments, err := svc.repo.QueryEnrollments(ctx)
	if err != nil {
		return Analytics{}, err
	}
	courses, err := svc.repo.QueryCourses(ctx, nil)
	if err != nil {
		return Analytics{}, err
	}
	usernames, err := svc.repo.QueryUsernames(ctx)
	if err != nil {
		return Analytics{}, err
	}
	return Aggregate(enrollments, courses, usernames), nil
}
