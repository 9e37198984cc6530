package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/makena/hesabu/core/activity"
	"github.com/makena/hesabu/core/user"
)

type adminApi struct {
	usrSvc   *user.Service
	auditSvc *activity.Service
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, usrSvc *user.Service, auditSvc *activity.Service) {
	api := adminApi{usrSvc: usrSvc, auditSvc: auditSvc}

	ug := g.Group("/users", jwt, roleMiddleware(user.RoleAdmin, user.RoleSuperAdmin))
	ug.GET("", api.listUsers)
	ug.GET("/:id", api.getUser)
	ug.GET("/:id/activity", api.userActivity, permissionMiddleware(user.PermViewActivityLogs))
}

// Handlers

func (api *adminApi) listUsers(ctx echo.Context) error {
	users, err := api.usrSvc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *adminApi) getUser(ctx echo.Context) error {
	usr, err := api.usrSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *adminApi) userActivity(ctx echo.Context) error {
	entries, err := api.auditSvc.QueryByUser(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying activity")
	}
	return ctx.JSON(http.StatusOK, entries)
}
