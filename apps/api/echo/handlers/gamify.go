package handlers

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/elimulabs/elimu/apps/api/echo/helpers"
	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/gamify"
	"github.com/elimulabs/elimu/core/notification"
)

// streakMilestones get a congratulating notification on check-in.
var streakMilestones = map[int]bool{3: true, 7: true, 14: true, 30: true, 100: true}

type gamifyApi struct {
	svc      gamify.Service
	notifSvc notification.Service
	logger   core.Logger
}

func RegisterGamifyAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc gamify.Service, notifSvc notification.Service, logger core.Logger) {
	api := gamifyApi{svc: svc, notifSvc: notifSvc, logger: logger}

	gg := g.Group("/gamify", jwt)
	gg.GET("/profile", api.gamifyProfile)
	gg.POST("/check-in", api.gamifyCheckIn)
}

func (api *gamifyApi) gamifyProfile(ctx echo.Context) error {
	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	profile, err := api.svc.EnsureProfile(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, profile)
}

func (api *gamifyApi) gamifyCheckIn(ctx echo.Context) error {
	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	res, err := api.svc.DailyCheckIn(rctx, claims.Subject)
	if err != nil {
		return err
	}

	if res.Credited && streakMilestones[res.Streak] {
		title := fmt.Sprintf("%d-day streak!", res.Streak)
		body := fmt.Sprintf("You have checked in %d days in a row. Keep it up!", res.Streak)
		if _, err := api.notifSvc.Notify(rctx, claims.Subject, notification.KindStreak, title, body); err != nil {
			api.logger.Error("notifying streak milestone", err)
		}
	}

	return ctx.JSON(http.StatusOK, res)
}
