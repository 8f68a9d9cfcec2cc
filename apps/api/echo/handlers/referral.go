package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimulabs/elimu/apps/api/echo/helpers"
	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/gamify"
	"github.com/elimulabs/elimu/core/notification"
	"github.com/elimulabs/elimu/core/referral"
)

type referralApi struct {
	svc       referral.Service
	gamifySvc gamify.Service
	notifSvc  notification.Service
	logger    core.Logger
}

func RegisterReferralAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc referral.Service,
	gamifySvc gamify.Service,
	notifSvc notification.Service,
	logger core.Logger,
) {
	api := referralApi{svc: svc, gamifySvc: gamifySvc, notifSvc: notifSvc, logger: logger}

	rg := g.Group("/referrals", jwt)
	rg.GET("", api.referralSummary)
	rg.POST("/apply", api.referralApply)
}

// referralSummary returns the caller's code, share link and redemption stats.
func (api *referralApi) referralSummary(ctx echo.Context) error {
	claims, err := helpers.GetContextClaims(ctx)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	profile, err := api.gamifySvc.EnsureProfile(rctx, claims.Subject)
	if err != nil {
		return err
	}

	summary, err := api.svc.Summarize(rctx, claims.Subject, profile.ReferralCode)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *referralApi) referralApply(ctx echo.Context) error {
	data := new(ApplyReferralRequest)
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
	res, err := api.svc.Apply(rctx, data.Code, claims.Subject)
	if err != nil {
		if errors.Cause(err) == referral.ErrAlreadyRedeemed {
			// not a hard failure; the caller simply keeps their original referrer
			return ctx.JSON(http.StatusOK, ApplyReferralResponse{
				Applied: false,
				Reason:  referral.ErrAlreadyRedeemed.Error(),
			})
		}
		return err
	}

	notifyReferralApplied(rctx, api.notifSvc, api.logger, res)
	return ctx.JSON(http.StatusOK, ApplyReferralResponse{Applied: true, Result: &res})
}

// notifyReferralApplied tells the referrer their code was redeemed. Shared
// with the signup flow; failures are logged, never surfaced.
func notifyReferralApplied(ctx context.Context, notifSvc notification.Service, logger core.Logger, res referral.ApplyResult) {
	title := "Your referral code was redeemed!"
	body := fmt.Sprintf("You earned %d reward points for referring a new learner.", res.ReferrerBonus)
	if _, err := notifSvc.Notify(ctx, res.Referral.ReferrerID, notification.KindReferral, title, body); err != nil {
		logger.Error("notifying referrer", err)
	}
}

type (
	ApplyReferralRequest struct {
		Code string `json:"code" validate:"required"`
	}

	ApplyReferralResponse struct {
		Applied bool                  `json:"applied"`
		Reason  string                `json:"reason,omitempty"`
		Result  *referral.ApplyResult `json:"result,omitempty"`
	}
)

func (ar *ApplyReferralRequest) Validate() error {
	ar.Code = core.CleanString(ar.Code)
	return core.Validate.Struct(ar)
}
