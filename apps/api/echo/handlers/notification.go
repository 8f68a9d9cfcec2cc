package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/elimulabs/elimu/apps/api/echo/helpers"
	"github.com/elimulabs/elimu/core/notification"
)

type notificationApi struct {
	svc notification.Service
}

func RegisterNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc notification.Service) {
	api := notificationApi{svc: svc}

	ng := g.Group("/notifications", jwt)
	ng.GET("", api.notificationQuery)
	ng.POST("/read", api.notificationMarkRead)
	ng.POST("/read-all", api.notificationMarkAllRead)
}

func (api *notificationApi) notificationQuery(ctx echo.Context) error {
	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	unreadOnly, _ := strconv.ParseBool(ctx.QueryParam("unread"))
	notifs, err := api.svc.QueryByUser(ctx.Request().Context(), claims.Subject, unreadOnly)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api *notificationApi) notificationMarkRead(ctx echo.Context) error {
	data := new(MarkReadRequest)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if len(data.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.MarkRead(ctx.Request().Context(), claims.Subject, data.IDs); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *notificationApi) notificationMarkAllRead(ctx echo.Context) error {
	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.MarkAllRead(ctx.Request().Context(), claims.Subject); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

type MarkReadRequest struct {
	IDs []string `json:"ids"`
}
