package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/course"
)

type courseRow struct {
	ID           string    `db:"id"`
	Title        string    `db:"title"`
	Description  string    `db:"description"`
	Category     string    `db:"category"`
	InstructorID string    `db:"instructor_id"`
	VideoURL     string    `db:"video_url"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r courseRow) course() course.Course {
	return course.Course{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		Category:     r.Category,
		InstructorID: r.InstructorID,
		VideoURL:     r.VideoURL,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type enrollmentRow struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	CourseID     string    `db:"course_id"`
	Progress     int       `db:"progress"`
	QuizPassedAt null.Time `db:"quiz_passed_at"`
	CompletedAt  null.Time `db:"completed_at"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r enrollmentRow) enrollment() course.Enrollment {
	return course.Enrollment{
		ID:           r.ID,
		UserID:       r.UserID,
		CourseID:     r.CourseID,
		Progress:     r.Progress,
		QuizPassedAt: r.QuizPassedAt,
		CompletedAt:  r.CompletedAt,
		CreatedAt:    r.CreatedAt,
	}
}

type courseRepository struct {
	exec core.DBExecutor
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) *courseRepository {
	return &courseRepository{exec: exec}
}

func (repo courseRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo courseRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return course.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

const courseColumns = `id, title, description, category, instructor_id, video_url, created_at, updated_at`
const enrollmentColumns = `id, user_id, course_id, progress, quiz_passed_at, completed_at, created_at`

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	c.ID = uuid.New().String()
	query := `
		INSERT INTO course (id, title, description, category, instructor_id, video_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := repo.getExec(exec).ExecContext(ctx, query,
		c.ID, c.Title, c.Description, c.Category, c.InstructorID, c.VideoURL, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM course`
	if len(ordering) > 0 {
		ords := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			ords = append(ords, ord.String())
		}
		query += " ORDER BY " + strings.Join(ords, ", ")
	}

	var rows []courseRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.course())
	}
	return courses, nil
}

func (repo courseRepository) GetCourseByID(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	var r courseRow
	query := `SELECT ` + courseColumns + ` FROM course WHERE id = $1`
	if err := repo.getExec(exec).GetContext(ctx, &r, query, id); err != nil {
		return course.Course{}, repo.trapNoRowsErr(err, "getting course")
	}
	return r.course(), nil
}

func (repo courseRepository) CreateEnrollment(ctx context.Context, e course.Enrollment, exec ...core.DBExecutor) (course.Enrollment, error) {
	e.ID = uuid.New().String()
	query := `
		INSERT INTO enrollment (id, user_id, course_id, progress, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := repo.getExec(exec).ExecContext(ctx, query, e.ID, e.UserID, e.CourseID, e.Progress, e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return course.Enrollment{}, course.ErrAlreadyEnrolled
		}
		return course.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return e, nil
}

func (repo courseRepository) GetEnrollment(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (course.Enrollment, error) {
	var r enrollmentRow
	query := `SELECT ` + enrollmentColumns + ` FROM enrollment WHERE user_id = $1 AND course_id = $2`
	if err := repo.getExec(exec).GetContext(ctx, &r, query, userID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return course.Enrollment{}, course.ErrNotEnrolled
		}
		return course.Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return r.enrollment(), nil
}

func (repo courseRepository) QueryEnrollmentsByUser(ctx context.Context, userID string, exec ...core.DBExecutor) ([]course.Enrollment, error) {
	var rows []enrollmentRow
	query := `SELECT ` + enrollmentColumns + ` FROM enrollment WHERE user_id = $1 ORDER BY created_at DESC`
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return repo.enrollments(rows), nil
}

func (repo courseRepository) QueryEnrollments(ctx context.Context, exec ...core.DBExecutor) ([]course.Enrollment, error) {
	var rows []enrollmentRow
	query := `SELECT ` + enrollmentColumns + ` FROM enrollment`
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return repo.enrollments(rows), nil
}

func (repo courseRepository) enrollments(rows []enrollmentRow) []course.Enrollment {
	enrollments := make([]course.Enrollment, 0, len(rows))
	for _, r := range rows {
		enrollments = append(enrollments, r.enrollment())
	}
	return enrollments
}

func (repo courseRepository) UpdateEnrollment(ctx context.Context, e course.Enrollment, exec ...core.DBExecutor) (course.Enrollment, error) {
	query := `UPDATE enrollment SET progress = $2, quiz_passed_at = $3, completed_at = $4 WHERE id = $1`
	res, err := repo.getExec(exec).ExecContext(ctx, query, e.ID, e.Progress, e.QuizPassedAt, e.CompletedAt)
	if err != nil {
		return course.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return course.Enrollment{}, course.ErrNotEnrolled
	}
	return e, nil
}

func (repo courseRepository) QueryUsernames(ctx context.Context, exec ...core.DBExecutor) (map[string]string, error) {
	rows, err := repo.getExec(exec).QueryxContext(ctx, `SELECT id, COALESCE(username, '') FROM "user"`)
	if err != nil {
		return nil, errors.Wrap(err, "querying usernames")
	}
	defer func() { _ = rows.Close() }()

	usernames := make(map[string]string)
	for rows.Next() {
		var id, username string
		if err = rows.Scan(&id, &username); err != nil {
			return nil, errors.Wrap(err, "scanning username")
		}
		usernames[id] = username
	}
	return usernames, rows.Err()
}

func (repo courseRepository) GetCertificate(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (course.Certificate, error) {
	var r struct {
		CourseID    string    `db:"course_id"`
		CourseTitle string    `db:"course_title"`
		UserName    string    `db:"user_name"`
		CompletedAt time.Time `db:"completed_at"`
	}
	query := `
		SELECT e.course_id, c.title AS course_title, COALESCE(u.name, '') AS user_name, e.completed_at
		FROM enrollment e
		JOIN course c ON c.id = e.course_id
		JOIN "user" u ON u.id = e.user_id
		WHERE e.user_id = $1 AND e.course_id = $2
			AND (e.progress >= 100 OR e.completed_at IS NOT NULL)`
	if err := repo.getExec(exec).GetContext(ctx, &r, query, userID, courseID); err != nil {
		return course.Certificate{}, repo.trapNoRowsErr(err, "getting certificate")
	}
	return course.Certificate{
		ID:          course.CertificateID(r.CourseID, r.CompletedAt),
		UserID:      userID,
		CourseID:    r.CourseID,
		CourseTitle: r.CourseTitle,
		UserName:    r.UserName,
		CompletedAt: r.CompletedAt,
	}, nil
}
