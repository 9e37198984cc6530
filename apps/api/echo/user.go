package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/makena/hesabu/core"
	"github.com/makena/hesabu/core/user"
)

type authApi struct {
	svc  *user.Service
	conf *core.Config
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *user.Service, conf *core.Config) {
	api := authApi{svc: svc, conf: conf}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)
	ag.POST("/refresh", api.refresh)

	// authed endpoints
	sg := ag.Group("", jwt)
	sg.POST("/logout", api.logout)
	sg.GET("/me", api.me)
	sg.POST("/change-password", api.changePassword)
	sg.POST("/2fa/setup", api.setup2FA)
	sg.POST("/2fa/verify", api.verify2FA)
	sg.POST("/2fa/disable", api.disable2FA)
}

// Handlers

func (api *authApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Register(ctx.Request().Context(), data, ctx.RealIP(), ctx.Request().UserAgent())
	if err != nil {
		return errors.Wrap(err, "registering user")
	}

	resp, err := api.issueTokens(ctx, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, resp)
}

func (api *authApi) login(ctx echo.Context) error {
	var data user.Credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data, ctx.RealIP(), ctx.Request().UserAgent())
	if err != nil {
		switch errors.Cause(err) {
		case user.ErrInvalidCredentials:
			return errInvalidCredentials
		case user.ErrAccountDeactivated:
			return errAccountDeactivated
		case user.ErrTwoFactorRequired:
			return errTwoFactorRequired
		case user.ErrInvalidTwoFactor:
			return errInvalidTwoFactor
		}
		return errors.Wrap(err, "authenticating")
	}

	resp, err := api.issueTokens(ctx, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *authApi) refresh(ctx echo.Context) error {
	var data RefreshRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshRequest")
	}
	if data.RefreshToken == "" {
		return errInvalidRefreshToken
	}

	claims, err := ParseRefreshToken(data.RefreshToken, api.conf)
	if err != nil {
		return err
	}

	newRefresh, err := GenerateRefreshToken(claims.Subject, api.conf)
	if err != nil {
		return err
	}
	usr, err := api.svc.RotateRefreshToken(ctx.Request().Context(), claims.Subject, data.RefreshToken, newRefresh)
	if err != nil {
		return errInvalidRefreshToken
	}

	access, err := GenerateAccessToken(usr, api.conf)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: access, RefreshToken: newRefresh})
}

func (api *authApi) logout(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Logout(ctx.Request().Context(), usr, ctx.RealIP(), ctx.Request().UserAgent()); err != nil {
		return errors.Wrap(err, "logging out")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *authApi) changePassword(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data user.ChangePassword
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	if err = data.Validate(api.svc); err != nil {
		return err
	}

	err = api.svc.ChangePassword(ctx.Request().Context(), usr, data, ctx.RealIP(), ctx.Request().UserAgent())
	if err != nil {
		if errors.Cause(err) == user.ErrInvalidCredentials {
			return errInvalidCredentials
		}
		return errors.Wrap(err, "changing password")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}

func (api *authApi) setup2FA(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	setup, err := api.svc.Setup2FA(ctx.Request().Context(), usr)
	if err != nil {
		if errors.Cause(err) == user.ErrTwoFactorEnabled {
			return errTwoFactorEnabled
		}
		return errors.Wrap(err, "setting up 2FA")
	}
	return ctx.JSON(http.StatusOK, setup)
}

func (api *authApi) verify2FA(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data TwoFactorVerifyRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TwoFactorVerifyRequest")
	}

	err = api.svc.Verify2FA(ctx.Request().Context(), usr, data.Token, ctx.RealIP(), ctx.Request().UserAgent())
	if err != nil {
		switch errors.Cause(err) {
		case user.ErrTwoFactorNotSetup:
			return errTwoFactorNotSetup
		case user.ErrInvalidTwoFactor:
			return errInvalidTwoFactor
		}
		return errors.Wrap(err, "verifying 2FA")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "2FA enabled"})
}

func (api *authApi) disable2FA(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data TwoFactorDisableRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TwoFactorDisableRequest")
	}

	err = api.svc.Disable2FA(ctx.Request().Context(), usr, data.Password, ctx.RealIP(), ctx.Request().UserAgent())
	if err != nil {
		if errors.Cause(err) == user.ErrInvalidCredentials {
			return errInvalidCredentials
		}
		return errors.Wrap(err, "disabling 2FA")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "2FA disabled"})
}

// issueTokens signs a fresh access/refresh pair for usr and persists the
// refresh token as the account's single valid slot.
func (api *authApi) issueTokens(ctx echo.Context, usr user.User) (AuthResponse, error) {
	access, err := GenerateAccessToken(usr, api.conf)
	if err != nil {
		return AuthResponse{}, err
	}
	refresh, err := GenerateRefreshToken(usr.ID, api.conf)
	if err != nil {
		return AuthResponse{}, err
	}
	usr, err = api.svc.StoreRefreshToken(ctx.Request().Context(), usr, refresh)
	if err != nil {
		return AuthResponse{}, errors.Wrap(err, "storing refresh token")
	}
	return AuthResponse{User: usr, Token: access, RefreshToken: refresh}, nil
}
