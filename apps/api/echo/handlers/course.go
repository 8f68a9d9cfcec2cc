package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimulabs/elimu/apps/api/echo/helpers"
	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/course"
	"github.com/elimulabs/elimu/core/gamify"
	"github.com/elimulabs/elimu/core/notification"
	"github.com/elimulabs/elimu/core/user"
	"github.com/elimulabs/elimu/core/video"
)

type (
	CourseDeps struct {
		CourseSvc       course.Service
		UserSvc         user.Service
		GamifySvc       gamify.Service
		NotificationSvc notification.Service
		VideoValidator  *video.Validator
		Logger          core.Logger
	}

	courseApi struct {
		deps CourseDeps
	}
)

func RegisterCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps CourseDeps) {
	api := courseApi{deps: deps}

	cg := g.Group("/courses", jwt)
	cg.GET("", api.courseQuery)
	cg.POST("", api.courseCreate, helpers.InstructorOrAdminMiddleware())
	cg.GET("/enrollments", api.courseMyEnrollments)
	cg.GET("/stats", api.courseStats, helpers.InstructorOrAdminMiddleware())

	dg := cg.Group("/:id")
	dg.GET("", api.courseRetrieve)
	dg.POST("/enroll", api.courseEnroll)
	dg.PUT("/progress", api.courseUpdateProgress)
	dg.POST("/quiz", api.courseQuizPass)
	dg.POST("/complete", api.courseComplete)
	dg.GET("/certificate", api.courseCertificate)
	dg.POST("/player-event", api.coursePlayerEvent)
}

// Handlers

func (api *courseApi) courseQuery(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.deps.CourseSvc.Browse(ctx.Request().Context(), ordering.Orderings)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) courseCreate(ctx echo.Context) error {
	data := new(course.NewCourse)
	if err := ctx.Bind(data); err != nil {
		return err
	}

	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}
	if !claims.IsAdmin || data.InstructorID == "" {
		// instructors publish under their own account
		data.InstructorID = claims.Subject
	}

	crs, err := api.deps.CourseSvc.Create(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) courseRetrieve(ctx echo.Context) error {
	crs, err := api.deps.CourseSvc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) courseEnroll(ctx echo.Context) error {
	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	enr, err := api.deps.CourseSvc.Enroll(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *courseApi) courseMyEnrollments(ctx echo.Context) error {
	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	enrs, err := api.deps.CourseSvc.MyEnrollments(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enrs)
}

func (api *courseApi) courseUpdateProgress(ctx echo.Context) error {
	data := new(ProgressRequest)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := core.Validate.Struct(data); err != nil {
		return err
	}

	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	enr, err := api.deps.CourseSvc.UpdateProgress(rctx, claims.Subject, ctx.Param("id"), data.Progress)
	if err != nil {
		return err
	}
	if enr.IsCompleted() {
		api.notifyCompletion(ctx, claims.Subject, enr.CourseID)
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *courseApi) courseQuizPass(ctx echo.Context) error {
	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	enr, err := api.deps.CourseSvc.PassQuiz(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *courseApi) courseComplete(ctx echo.Context) error {
	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	enr, err := api.deps.CourseSvc.Complete(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return err
	}
	api.notifyCompletion(ctx, claims.Subject, enr.CourseID)
	return ctx.JSON(http.StatusOK, enr)
}

func (api *courseApi) courseCertificate(ctx echo.Context) error {
	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	cert, err := api.deps.CourseSvc.Certificate(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (api *courseApi) courseStats(ctx echo.Context) error {
	stats, err := api.deps.CourseSvc.Stats(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stats)
}

// coursePlayerEvent ingests embedded-player messages. The payload is
// only trusted after the Origin header passes the allow-list; progress
// events move the enrollment forward and an ended event completes it.
func (api *courseApi) coursePlayerEvent(ctx echo.Context) error {
	payload, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return err
	}

	evt, err := api.deps.VideoValidator.Validate(ctx.Request().Header.Get(echo.HeaderOrigin), payload)
	if err != nil {
		return err
	}

	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	courseID := ctx.Param("id")

	var enr course.Enrollment
	switch evt.Type {
	case video.EventEnded:
		enr, err = api.deps.CourseSvc.Complete(rctx, claims.Subject, courseID)
		if errors.Cause(err) == course.ErrAlreadyCompleted {
			return ctx.JSON(http.StatusOK, evt)
		}
		if err == nil {
			api.notifyCompletion(ctx, claims.Subject, enr.CourseID)
		}
	default: // progress
		enr, err = api.deps.CourseSvc.UpdateProgress(rctx, claims.Subject, courseID, evt.Percent)
		if errors.Cause(err) == course.ErrAlreadyCompleted {
			// replayed events after completion are benign
			return ctx.JSON(http.StatusOK, evt)
		}
		if err == nil && enr.IsCompleted() {
			api.notifyCompletion(ctx, claims.Subject, enr.CourseID)
		}
	}
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, evt)
}

// notifyCompletion congratulates the learner; failures are only logged.
func (api *courseApi) notifyCompletion(ctx echo.Context, userID, courseID string) {
	rctx := ctx.Request().Context()

	title := "Course completed!"
	body := fmt.Sprintf("You earned %d XP and %d reward points. Your certificate is ready.",
		gamify.CourseBonusXP, gamify.CourseBonusPoints)
	if crs, err := api.deps.CourseSvc.Get(rctx, courseID); err == nil {
		title = fmt.Sprintf("Course completed: %s", crs.Title)
	}

	if _, err := api.deps.NotificationSvc.Notify(rctx, userID, notification.KindCourse, title, body); err != nil {
		api.deps.Logger.Error("notifying course completion", err)
	}
}

type ProgressRequest struct {
	Progress int `json:"progress" validate:"min=0,max=100"`
}
