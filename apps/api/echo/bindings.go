package echoapi

import "github.com/makena/hesabu/core/user"

type (
	AuthResponse struct {
		User         user.User `json:"user"`
		Token        string    `json:"token"`
		RefreshToken string    `json:"refresh_token"`
	}

	TokenResponse struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refresh_token"`
	}

	RefreshRequest struct {
		RefreshToken string `json:"refresh_token"`
	}

	TwoFactorVerifyRequest struct {
		Token string `json:"token"`
	}

	TwoFactorDisableRequest struct {
		Password string `json:"password"`
	}

	PaypalVerifyRequest struct {
		OrderID string `json:"order_id"`
	}
)
