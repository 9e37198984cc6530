package echoapi

import (
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/makena/hesabu/core"
	"github.com/makena/hesabu/core/user"
)

const (
	contextClaimsKey = "userClaims"
	contextUserKey   = "user"
	authCookieName   = "token"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Role string `json:"role,omitempty"`
}

func newUserClaims(usr user.User, conf *core.Config) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Role: string(usr.Role),
	}
}

// GenerateAccessToken signs a short-lived token identifying usr.
func GenerateAccessToken(usr user.User, conf *core.Config) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, newUserClaims(usr, conf))
	ss, err := token.SignedString(conf.SecretKey)
	return ss, errors.Wrap(err, "signing access token")
}

// GenerateRefreshToken signs a long-lived token for the single-slot refresh
// scheme. It is signed with a separate secret so it can never pass as an
// access token.
func GenerateRefreshToken(userID string, conf *core.Config) (string, error) {
	now := time.Now()
	// Id makes every mint unique; claims otherwise have second resolution,
	// so two tokens issued within the same second would be identical and
	// rotation would not invalidate the prior one.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &jwt.StandardClaims{
		Id:        uuid.NewString(),
		Issuer:    conf.AppName,
		Subject:   userID,
		ExpiresAt: now.Add(conf.Server.JWTRefreshExpirationDelta).Unix(),
		IssuedAt:  now.Unix(),
	})
	ss, err := token.SignedString(conf.RefreshSecretKey)
	return ss, errors.Wrap(err, "signing refresh token")
}

func parseClaims(tokenStr string, secret []byte) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errUnauthenticated
	}
	return claims, nil
}

// ParseRefreshToken validates a refresh token's signature and expiry and
// returns its claims. The stored-token match is the service's job.
func ParseRefreshToken(tokenStr string, conf *core.Config) (*Claims, error) {
	claims, err := parseClaims(tokenStr, conf.RefreshSecretKey)
	if err != nil {
		return nil, errInvalidRefreshToken
	}
	return claims, nil
}

// extractToken looks for credentials in the Authorization header first,
// then falls back to the "token" cookie.
func extractToken(ctx echo.Context) string {
	header := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := ctx.Cookie(authCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// authMiddleware authenticates the request, loads the account and rejects
// deactivated ones.
func authMiddleware(conf *core.Config, svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			tokenStr := extractToken(ctx)
			if tokenStr == "" {
				return errUnauthenticated
			}
			claims, err := parseClaims(tokenStr, conf.SecretKey)
			if err != nil {
				return err
			}

			usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
			if err != nil {
				return errUnauthenticated
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}

			ctx.Set(contextClaimsKey, *claims)
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(Claims); ok {
		return claims, nil
	}
	return Claims{}, errUnauthenticated
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthenticated
}
