package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/elimulabs/elimu/apps/api/echo/helpers"
	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/wallet"
)

const defaultHistoryLimit = 50

type walletApi struct {
	svc wallet.Service
}

func RegisterWalletAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc wallet.Service) {
	api := walletApi{svc: svc}

	wg := g.Group("/wallet", jwt)
	wg.GET("", api.walletBalance)
	wg.GET("/transactions", api.walletHistory)
	wg.POST("/spend", api.walletSpend)
}

func (api *walletApi) walletBalance(ctx echo.Context) error {
	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	balance, err := api.svc.Balance(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, BalanceResponse{Balance: balance})
}

func (api *walletApi) walletHistory(ctx echo.Context) error {
	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	limit := defaultHistoryLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= defaultHistoryLimit {
			limit = n
		}
	}

	txns, err := api.svc.History(ctx.Request().Context(), claims.Subject, limit)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, txns)
}

func (api *walletApi) walletSpend(ctx echo.Context) error {
	data := new(SpendRequest)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}

	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	if err := api.svc.Spend(rctx, claims.Subject, data.Amount, data.Description); err != nil {
		return err
	}

	balance, err := api.svc.Balance(rctx, claims.Subject)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, BalanceResponse{Balance: balance})
}

type (
	BalanceResponse struct {
		Balance int `json:"balance"`
	}

	SpendRequest struct {
		Amount      int    `json:"amount" validate:"required,gt=0"`
		Description string `json:"description" validate:"required"`
	}
)

func (sr *SpendRequest) Validate() error {
	sr.Description = core.CleanString(sr.Description)
	return core.Validate.Struct(sr)
}
