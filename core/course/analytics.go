package course

import (
	"sort"
	"time"
)

// Placeholders for rows whose joined course or user went missing.
const (
	UnknownCourseLabel = "Unknown course"
	UnknownUserLabel   = "Unknown user"
)

const (
	topCoursesLimit       = 5
	recentEnrollmentLimit = 10
)

type CourseStat struct {
	CourseID       string  `json:"course_id"`
	Title          string  `json:"title"`
	Enrollments    int     `json:"enrollments"`
	CompletionRate float64 `json:"completion_rate"` // 0..100
}

type RecentEnrollment struct {
	EnrollmentID string    `json:"enrollment_id"`
	Username     string    `json:"username"`
	CourseTitle  string    `json:"course_title"`
	Progress     int       `json:"progress"`
	EnrolledAt   time.Time `json:"enrolled_at"`
}

type Analytics struct {
	TotalEnrollments    int                `json:"total_enrollments"`
	DistinctUsers       int                `json:"distinct_users"`
	Completions         int                `json:"completions"`
	AvgCompletion       float64            `json:"avg_completion"` // 0..100
	TopByEnrollment     []CourseStat       `json:"top_by_enrollment"`
	TopByCompletionRate []CourseStat       `json:"top_by_completion_rate"`
	Recent              []RecentEnrollment `json:"recent"`
}

// Aggregate is a pure read-side rollup over enrollment, course and
// username snapshots. Missing joined rows get placeholder labels,
// never an error.
func Aggregate(enrollments []Enrollment, courses []Course, usernames map[string]string) Analytics {
	a := Analytics{TotalEnrollments: len(enrollments)}

	titles := make(map[string]string, len(courses))
	for _, c := range courses {
		titles[c.ID] = c.Title
	}

	users := make(map[string]struct{})
	perCourse := make(map[string]*CourseStat)
	completedPerCourse := make(map[string]int)
	var progressSum int

	for _, e := range enrollments {
		users[e.UserID] = struct{}{}
		progressSum += e.Progress
		if e.IsCompleted() {
			a.Completions++
			completedPerCourse[e.CourseID]++
		}

		stat, ok := perCourse[e.CourseID]
		if !ok {
			title := titles[e.CourseID]
			if title == "" {
				title = UnknownCourseLabel
			}
			stat = &CourseStat{CourseID: e.CourseID, Title: title}
			perCourse[e.CourseID] = stat
		}
		stat.Enrollments++
	}

	a.DistinctUsers = len(users)
	if len(enrollments) > 0 {
		a.AvgCompletion = float64(progressSum) / float64(len(enrollments))
	}

	stats := make([]CourseStat, 0, len(perCourse))
	for id, stat := range perCourse {
		stat.CompletionRate = float64(completedPerCourse[id]) / float64(stat.Enrollments) * 100
		stats = append(stats, *stat)
	}

	byEnrollment := make([]CourseStat, len(stats))
	copy(byEnrollment, stats)
	sort.SliceStable(byEnrollment, func(i, j int) bool {
		if byEnrollment[i].Enrollments != byEnrollment[j].Enrollments {
			return byEnrollment[i].Enrollments > byEnrollment[j].Enrollments
		}
		return byEnrollment[i].Title < byEnrollment[j].Title
	})
	a.TopByEnrollment = truncStats(byEnrollment, topCoursesLimit)

	var byRate []CourseStat
	for _, s := range stats {
		if s.CompletionRate > 0 {
			byRate = append(byRate, s)
		}
	}
	sort.SliceStable(byRate, func(i, j int) bool {
		if byRate[i].CompletionRate != byRate[j].CompletionRate {
			return byRate[i].CompletionRate > byRate[j].CompletionRate
		}
		return byRate[i].Title < byRate[j].Title
	})
	a.TopByCompletionRate = truncStats(byRate, topCoursesLimit)

	recent := make([]Enrollment, len(enrollments))
	copy(recent, enrollments)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > recentEnrollmentLimit {
		recent = recent[:recentEnrollmentLimit]
	}
	for _, e := range recent {
		title := titles[e.CourseID]
		if title == "" {
			title = UnknownCourseLabel
		}
		username := usernames[e.UserID]
		if username == "" {
			username = UnknownUserLabel
		}
		a.Recent = append(a.Recent, RecentEnrollment{
			EnrollmentID: e.ID,
			Username:     username,
			CourseTitle:  title,
			Progress:     e.Progress,
			EnrolledAt:   e.CreatedAt,
		})
	}
	return a
}

func truncStats(stats []CourseStat, limit int) []CourseStat {
	if len(stats) > limit {
		return stats[:limit]
	}
	return stats
}
