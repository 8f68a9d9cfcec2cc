package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/elimulabs/elimu/apps/api/echo/helpers"
	"github.com/elimulabs/elimu/core/leaderboard"
)

type leaderboardApi struct {
	svc leaderboard.Service
}

func RegisterLeaderboardAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc leaderboard.Service) {
	api := leaderboardApi{svc: svc}

	lg := g.Group("/leaderboard", jwt)
	lg.GET("", api.leaderboardTop)
	lg.GET("/me", api.leaderboardMyRank)
}

func (api *leaderboardApi) leaderboardTop(ctx echo.Context) error {
	limit := leaderboard.MaxSize
	if raw := ctx.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	entries, err := api.svc.Top(ctx.Request().Context(), limit)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *leaderboardApi) leaderboardMyRank(ctx echo.Context) error {
	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	rank, found, err := api.svc.RankOf(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, MyRankResponse{Rank: rank, Ranked: found})
}

type MyRankResponse struct {
	Rank   int  `json:"rank,omitempty"`
	Ranked bool `json:"ranked"`
}
