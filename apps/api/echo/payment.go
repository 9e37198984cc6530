package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/makena/hesabu/core/payment"
	"github.com/makena/hesabu/core/user"
)

type paymentApi struct {
	svc *payment.Service
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *payment.Service) {
	api := paymentApi{svc: svc}

	pg := g.Group("/payments")

	// provider-facing endpoint, no auth
	pg.POST("/mpesa/callback", api.mpesaCallback)

	// authed endpoints
	sg := pg.Group("", jwt)
	sg.POST("/mpesa/initiate", api.initiateMpesa, roleMiddleware(user.RoleStudent))
	sg.POST("/paypal/initiate", api.initiatePaypal, roleMiddleware(user.RoleStudent))
	sg.POST("/paypal/verify", api.verifyPaypal)
	sg.GET("/history", api.history)
}

// Handlers

func (api *paymentApi) initiateMpesa(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data payment.MpesaInitiation
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MpesaInitiation")
	}
	if err = data.Validate(api.svc); err != nil {
		return err
	}

	pmt, result, err := api.svc.InitiateMpesa(ctx.Request().Context(), usr, data, ctx.RealIP(), ctx.Request().UserAgent())
	if err != nil {
		if errors.Cause(err) == payment.ErrInitiationFailed {
			return errPaymentInitiation
		}
		return errors.Wrap(err, "initiating M-Pesa payment")
	}

	return ctx.JSON(http.StatusOK, echo.Map{
		"payment":             pmt,
		"checkout_request_id": result.CheckoutRequestID,
		"customer_message":    result.CustomerMessage,
	})
}

// mpesaCallback acknowledges every callback with 200 so the provider does
// not retry; unknown or already-settled payments are silent no-ops.
func (api *paymentApi) mpesaCallback(ctx echo.Context) error {
	var cb payment.MpesaCallback
	if err := ctx.Bind(&cb); err == nil {
		api.svc.ResolveMpesaCallback(ctx.Request().Context(), cb)
	}
	return ctx.JSON(http.StatusOK, echo.Map{"ResultCode": 0, "ResultDesc": "Accepted"})
}

func (api *paymentApi) initiatePaypal(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data payment.PaypalInitiation
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PaypalInitiation")
	}
	if err = data.Validate(api.svc); err != nil {
		return err
	}

	pmt, result, err := api.svc.InitiatePaypal(ctx.Request().Context(), usr, data, ctx.RealIP(), ctx.Request().UserAgent())
	if err != nil {
		if errors.Cause(err) == payment.ErrInitiationFailed {
			return errPaymentInitiation
		}
		return errors.Wrap(err, "initiating PayPal payment")
	}

	return ctx.JSON(http.StatusOK, echo.Map{
		"payment":     pmt,
		"order_id":    result.OrderID,
		"approve_url": result.ApproveURL,
	})
}

func (api *paymentApi) verifyPaypal(ctx echo.Context) error {
	var data PaypalVerifyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PaypalVerifyRequest")
	}
	if data.OrderID == "" {
		return errHttpNotFound
	}

	pmt, err := api.svc.VerifyPaypal(ctx.Request().Context(), data.OrderID)
	if err != nil {
		switch errors.Cause(err) {
		case payment.ErrNotFound:
			return errHttpNotFound
		case payment.ErrNotCompleted:
			return errPaymentNotCompleted
		case payment.ErrVerificationFailed:
			return errPaymentVerification
		}
		return errors.Wrap(err, "verifying PayPal payment")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"payment": pmt})
}

func (api *paymentApi) history(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	pmts, err := api.svc.History(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying payment history")
	}
	return ctx.JSON(http.StatusOK, pmts)
}
