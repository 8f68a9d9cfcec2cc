package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimulabs/elimu/apps/api/echo/helpers"
	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/gamify"
	"github.com/elimulabs/elimu/core/notification"
	"github.com/elimulabs/elimu/core/referral"
	"github.com/elimulabs/elimu/core/user"
)

var (
	errUsrNotFoundInCtx  = errors.New("user object not found in echo.Context")
	msgNoPermsToSetRoles = "not enough rights to set these roles"
)

type (
	UserDeps struct {
		UserSvc         user.Service
		GamifySvc       gamify.Service
		ReferralSvc     referral.Service
		NotificationSvc notification.Service
		Logger          core.Logger
	}

	userApi struct {
		deps UserDeps
	}
)

func RegisterUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps UserDeps) {
	api := userApi{deps: deps}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/register", api.userRegister)
	ug.POST("/login", api.userLogin)
	ug.POST("/password-reset", api.userResetPassword)
	ug.POST("/password-reset-confirm", api.userConfirmPasswordReset)

	// authed endpoints
	ag := ug.Group("", jwt)
	ag.POST("/token-refresh", api.userRefreshToken)
	ag.GET("", api.userQuery, helpers.AdminMiddleware())
	ag.POST("", api.userCreate, helpers.AdminMiddleware())
	ag.DELETE("", api.userDestroyMultiple, helpers.AdminMiddleware())
	ag.GET("/roles", api.userQueryRoles, helpers.AdminMiddleware())

	// detail endpoints
	dg := ag.Group("/:id", ctxUserOrAdminMiddleware(api.deps.UserSvc))
	dg.GET("", api.userRetrieve)
	dg.PUT("", api.userUpdate)
	dg.DELETE("", api.userDestroy, helpers.AdminMiddleware())
}

// Handlers

// userRegister is the public signup endpoint. It creates the account,
// seeds its gamification profile (which grants the referral code) and
// redeems a signup referral code when one was provided.
func (api *userApi) userRegister(ctx echo.Context) error {
	data := new(user.NewUser)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if data.Roles != nil {
		// self-signup is always a learner account
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: msgNoPermsToSetRoles})
	}
	if err := data.Validate(api.deps.UserSvc); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	usr, err := api.deps.UserSvc.Create(rctx, *data)
	if err != nil {
		return err
	}
	if _, err := api.deps.GamifySvc.EnsureProfile(rctx, usr.ID); err != nil {
		return err
	}

	if data.ReferralCode != "" {
		res, err := api.deps.ReferralSvc.Apply(rctx, data.ReferralCode, usr.ID)
		if err != nil {
			// the account exists either way; a bad code only costs the bonus
			api.deps.Logger.Warn("redeeming signup referral code", err)
		} else {
			notifyReferralApplied(rctx, api.deps.NotificationSvc, api.deps.Logger, res)
		}
	}

	token, err := helpers.GenerateToken(helpers.GetUserClaims(usr))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, RegisterResponse{User: usr, Token: token})
}

// userCreate is the admin endpoint for provisioning accounts with roles.
func (api *userApi) userCreate(ctx echo.Context) error {
	data := new(user.NewUser)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.deps.UserSvc); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own max role
	ctxUsr, err := helpers.GetContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return err
	}
	if user.MaxRolePriority(data.Roles) > user.MaxRolePriority(ctxUsr.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: msgNoPermsToSetRoles})
	}

	rctx := ctx.Request().Context()
	usr, err := api.deps.UserSvc.Create(rctx, *data)
	if err != nil {
		return err
	}
	if _, err := api.deps.GamifySvc.EnsureProfile(rctx, usr.ID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, usr)
}

// userLogin authenticates and runs the daily check-in so a first login
// of the day credits the streak and its bonus.
func (api *userApi) userLogin(ctx echo.Context) error {
	data := new(LoginRequest)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	usr, claims, err := helpers.Authenticate(rctx, data.Username, data.Password, api.deps.UserSvc)
	if err != nil {
		return err
	}
	token, err := helpers.GenerateToken(claims)
	if err != nil {
		return err
	}
	if err := api.deps.UserSvc.RecordLogin(rctx, usr); err != nil {
		return err
	}

	resp := LoginResponse{Token: token}
	if _, err := api.deps.GamifySvc.EnsureProfile(rctx, usr.ID); err != nil {
		api.deps.Logger.Error("ensuring profile on login", err, usr)
	} else if checkIn, err := api.deps.GamifySvc.DailyCheckIn(rctx, usr.ID); err != nil {
		// the login still succeeds; the bonus can be retried on the next one
		api.deps.Logger.Error("daily check-in on login", err, usr)
	} else {
		resp.CheckIn = &checkIn
	}

	return ctx.JSON(http.StatusOK, resp)
}

func (api *userApi) userRefreshToken(ctx echo.Context) error {
	token, err := helpers.RefreshToken(ctx, api.deps.UserSvc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) userResetPassword(ctx echo.Context) error {
	data := new(PasswordResetRequest)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}

	if err := api.deps.UserSvc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		// do not leak account existence
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "If the email exists, a reset link has been sent."})
}

func (api *userApi) userConfirmPasswordReset(ctx echo.Context) error {
	data := new(user.ResetUserPassword)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}

	if err := api.deps.UserSvc.ResetPassword(ctx.Request().Context(), *data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Password has been reset."})
}

func (api *userApi) userQuery(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return err
	}
	if filter.IsEmpty() {
		filter = nil
	}

	users, err := api.deps.UserSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) userRetrieve(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errUsrNotFoundInCtx
	}
	return ctx.JSON(http.StatusOK, usr)
}

// userUpdate doubles as the account-settings endpoint.
func (api *userApi) userUpdate(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errUsrNotFoundInCtx
	}

	data := new(user.UpdateUser)
	if err := ctx.Bind(data); err != nil {
		return err
	}

	ctxUsr, err := helpers.GetContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return err
	}
	if !ctxUsr.IsAdmin() {
		// user cannot edit other users
		if usr.ID != ctxUsr.ID {
			return helpers.ErrHttpForbidden
		}

		// `IsActive` and `Roles` can only be changed by admin
		if data.IsActive != nil || data.Roles != nil {
			return helpers.ErrHttpForbidden
		}
	}

	if err := data.Validate(usr, api.deps.UserSvc); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own max role
	if user.MaxRolePriority(data.Roles) > user.MaxRolePriority(ctxUsr.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: msgNoPermsToSetRoles})
	}

	usr, err = api.deps.UserSvc.Update(ctx.Request().Context(), usr.ID, *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) userDestroy(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errUsrNotFoundInCtx
	}

	// ctxUser cannot delete themselves
	ctxUsr, err := helpers.GetContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return err
	}
	if usr.ID == ctxUsr.ID {
		return helpers.ErrHttpForbidden
	}

	if err := api.deps.UserSvc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) userDestroyMultiple(ctx echo.Context) error {
	data := new(DestroyMultipleRequest)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if data.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	// ctxUser cannot delete themselves
	ctxUsr, err := helpers.GetContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return err
	}
	for _, id := range data.IDs {
		if id == ctxUsr.ID {
			return helpers.ErrHttpForbidden
		}
	}

	if err := api.deps.UserSvc.Delete(ctx.Request().Context(), data.IDs...); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) userQueryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func ctxUserOrAdminMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if id := ctx.Param("id"); id != "" {
				ctxUsr, err := helpers.GetContextUser(ctx, svc)
				if err != nil {
					return err
				}

				if id == ctxUsr.ID || ctxUsr.IsAdmin() {
					usr, err := svc.GetByID(ctx.Request().Context(), id)
					if err == nil {
						ctx.Set("object", usr)
						return next(ctx)
					} else if errors.Cause(err) != user.ErrNotFound {
						return err
					}
				}
			}
			return helpers.ErrHttpNotFound
		}
	}
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token   string                `json:"token"`
		CheckIn *gamify.CheckInResult `json:"check_in,omitempty"`
	}

	RegisterResponse struct {
		User  user.User `json:"user"`
		Token string    `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

func (lr *LoginRequest) Validate() error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return core.Validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate() error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return core.Validate.Struct(pr)
}
