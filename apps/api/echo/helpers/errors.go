package helpers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/course"
	"github.com/elimulabs/elimu/core/gamify"
	"github.com/elimulabs/elimu/core/notification"
	"github.com/elimulabs/elimu/core/referral"
	"github.com/elimulabs/elimu/core/user"
	"github.com/elimulabs/elimu/core/video"
	"github.com/elimulabs/elimu/core/wallet"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	ErrHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	ErrHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errTokenSigningFailed   = errors.New("failed to sign token")
)

// NewAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func NewAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if fldErrs := origErr.FieldMap(); fldErrs != nil {
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if code, message = domainHTTPError(origErr); code > 0 {
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := GetContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// domainHTTPError maps well-known service errors to HTTP responses.
// It returns a zero code when the error is not a domain error.
func domainHTTPError(err error) (int, interface{}) {
	switch err {
	case user.ErrNotFound, gamify.ErrNotFound, course.ErrNotFound,
		referral.ErrNotFound, notification.ErrNotFound, course.ErrNotEnrolled:
		return http.StatusNotFound, err.Error()
	case course.ErrAlreadyEnrolled, course.ErrAlreadyCompleted:
		return http.StatusConflict, err.Error()
	case wallet.ErrInsufficientPoints,
		referral.ErrInvalidCode, referral.ErrOwnCode,
		video.ErrUntrustedOrigin, video.ErrUnknownEvent, video.ErrBadPayload:
		return http.StatusBadRequest, err.Error()
	}
	return 0, nil
}
