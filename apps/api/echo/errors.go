package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/makena/hesabu/core"
	"github.com/makena/hesabu/core/user"
)

var (
	errUnauthenticated     = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errInvalidCredentials  = echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	errAccountDeactivated  = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errTwoFactorRequired   = echo.NewHTTPError(http.StatusBadRequest, "2FA token required")
	errInvalidTwoFactor    = echo.NewHTTPError(http.StatusUnauthorized, "invalid 2FA token")
	errTwoFactorEnabled    = echo.NewHTTPError(http.StatusBadRequest, "2FA is already enabled")
	errTwoFactorNotSetup   = echo.NewHTTPError(http.StatusBadRequest, "2FA not set up")
	errInvalidRefreshToken = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired refresh token")
	errHttpForbidden       = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound        = echo.NewHTTPError(http.StatusNotFound, "not found")
	errPaymentInitiation   = echo.NewHTTPError(http.StatusInternalServerError, "failed to initiate payment")
	errPaymentNotCompleted = echo.NewHTTPError(http.StatusBadRequest, "payment not completed")
	errPaymentVerification = echo.NewHTTPError(http.StatusInternalServerError, "failed to verify payment")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
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
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
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
