package course

import (
	"fmt"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
)

type Course struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	InstructorID string    `json:"instructor_id"`
	VideoURL     string    `json:"video_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Enrollment struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CourseID     string    `json:"course_id"`
	Progress     int       `json:"progress"` // 0..100
	QuizPassedAt null.Time `json:"quiz_passed_at"`
	CompletedAt  null.Time `json:"completed_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// QuizPassed reports whether the course quiz bonus was already granted.
func (e Enrollment) QuizPassed() bool { return e.QuizPassedAt.Valid }

// IsCompleted treats either signal as authoritative: full progress or a
// recorded completion time.
func (e Enrollment) IsCompleted() bool {
	return e.Progress >= 100 || e.CompletedAt.Valid
}

// CertificateID derives the printable certificate identifier,
// CERT-<first 8 chars of course id, uppercase>-<YYYYMMDD>.
func CertificateID(courseID string, completedAt time.Time) string {
	short := courseID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("CERT-%s-%s", strings.ToUpper(short), completedAt.Format("20060102"))
}

type Certificate struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CourseID    string    `json:"course_id"`
	CourseTitle string    `json:"course_title"`
	UserName    string    `json:"user_name"`
	CompletedAt time.Time `json:"completed_at"`
}

type NewCourse struct {
	Title        string `json:"title" validate:"required,max=200"`
	Description  string `json:"description" validate:"max=2000"`
	Category     string `json:"category" validate:"max=100"`
	InstructorID string `json:"instructor_id" validate:"required"`
	VideoURL     string `json:"video_url" validate:"omitempty,url"`
}

func (c *NewCourse) Course() Course {
	now := time.Now().UTC()
	return Course{
		Title:        strings.TrimSpace(c.Title),
		Description:  strings.TrimSpace(c.Description),
		Category:     strings.TrimSpace(c.Category),
		InstructorID: c.InstructorID,
		VideoURL:     strings.TrimSpace(c.VideoURL),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
