package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/makena/hesabu/core/payment"
	"github.com/makena/hesabu/core/user"
)

// raw provider JSON, as Daraja posts it
func stkCallbackBody(checkoutID string, resultCode int, desc, receipt string) []byte {
	metadata := ""
	if receipt != "" {
		metadata = fmt.Sprintf(`,"CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":4500},
			{"Name":"MpesaReceiptNumber","Value":%q},
			{"Name":"PhoneNumber","Value":254712345678}
		]}`, receipt)
	}
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{
		"MerchantRequestID":"mr-1",
		"CheckoutRequestID":%q,
		"ResultCode":%d,
		"ResultDesc":%q%s
	}}}`, checkoutID, resultCode, desc, metadata))
}

func TestPaymentInitiateMpesa(t *testing.T) {
	app := initApp(t)
	student := app.createUser(t, "student@test.test", "V3ryS3cretPwd", user.RoleStudent, true)
	token := app.getToken(t, student)

	app.mpesa.result = payment.STKPushResult{
		CheckoutRequestID: "ws_CO_123",
		CustomerMessage:   "Success. Request accepted for processing",
	}

	body := marchallObj(t, payment.MpesaInitiation{
		PhoneNumber: "+254712345678",
		CourseID:    "cpa-section-1",
		Amount:      4500,
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/mpesa/initiate", token, body)
	app.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Payment           payment.Payment `json:"payment"`
		CheckoutRequestID string          `json:"checkout_request_id"`
		CustomerMessage   string          `json:"customer_message"`
	}
	unmarchallObj(t, rec.Body.Bytes(), &resp)
	assert.Equal(t, "ws_CO_123", resp.CheckoutRequestID)
	assert.Equal(t, payment.StatusPending, resp.Payment.Status)
	assert.Equal(t, payment.MethodMpesa, resp.Payment.Method)
	assert.Equal(t, "KES", resp.Payment.Currency)
	assert.Equal(t, "ws_CO_123", resp.Payment.ExternalID)
	assert.Equal(t, student.ID, resp.Payment.StudentID)

	// missing auth
	req, rec = newRequest(http.MethodPost, "/v1/payments/mpesa/initiate", body)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// admins cannot initiate student payments
	admin := app.createUser(t, "admin@test.test", "V3ryS3cretPwd", user.RoleAdmin, true)
	req, rec = newAuthRequest(http.MethodPost, "/v1/payments/mpesa/initiate", app.getToken(t, admin), body)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// invalid phone number is a field error
	body = marchallObj(t, payment.MpesaInitiation{PhoneNumber: "12345", CourseID: "cpa-section-1", Amount: 4500})
	req, rec = newAuthRequest(http.MethodPost, "/v1/payments/mpesa/initiate", token, body)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "phone_number")
}

func TestPaymentInitiateMpesaProviderDown(t *testing.T) {
	app := initApp(t)
	student := app.createUser(t, "student@test.test", "V3ryS3cretPwd", user.RoleStudent, true)
	app.mpesa.err = fmt.Errorf("daraja: connection refused")

	body := marchallObj(t, payment.MpesaInitiation{
		PhoneNumber: "+254712345678",
		CourseID:    "cpa-section-1",
		Amount:      4500,
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/mpesa/initiate", app.getToken(t, student), body)
	app.server.ServeHTTP(rec, req)

	// provider error detail is never surfaced
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "daraja")
}

func TestPaymentMpesaCallback(t *testing.T) {
	app := initApp(t)
	student := app.createUser(t, "student@test.test", "V3ryS3cretPwd", user.RoleStudent, true)
	token := app.getToken(t, student)

	app.mpesa.result = payment.STKPushResult{CheckoutRequestID: "ws_CO_456"}
	body := marchallObj(t, payment.MpesaInitiation{
		PhoneNumber: "+254712345678",
		CourseID:    "cpa-section-1",
		Amount:      4500,
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/mpesa/initiate", token, body)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// the callback endpoint is public and settles the payment
	req, rec = newRequest(http.MethodPost, "/v1/payments/mpesa/callback", stkCallbackBody("ws_CO_456", 0, "Success", "QK12XYZ"))
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ResultCode":0`)

	usr, err := app.usrSvc.GetByID(context.Background(), student.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	assert.Equal(t, user.PaymentPaid, usr.PaymentStatus)

	req, rec = newAuthRequest(http.MethodGet, "/v1/payments/history", token)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	var pmts []payment.Payment
	unmarchallObj(t, rec.Body.Bytes(), &pmts)
	if assert.Len(t, pmts, 1) {
		assert.Equal(t, payment.StatusCompleted, pmts[0].Status)
		assert.Equal(t, "QK12XYZ", pmts[0].MpesaReceiptNumber)
	}

	// a duplicate callback is acknowledged but changes nothing
	req, rec = newRequest(http.MethodPost, "/v1/payments/mpesa/callback", stkCallbackBody("ws_CO_456", 0, "Success", "OTHER"))
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req, rec = newAuthRequest(http.MethodGet, "/v1/payments/history", token)
	app.server.ServeHTTP(rec, req)
	unmarchallObj(t, rec.Body.Bytes(), &pmts)
	assert.Equal(t, "QK12XYZ", pmts[0].MpesaReceiptNumber)

	// unknown and malformed callbacks are acknowledged too
	req, rec = newRequest(http.MethodPost, "/v1/payments/mpesa/callback", stkCallbackBody("ws_CO_ghost", 0, "Success", "ZZ99"))
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req, rec = newRequest(http.MethodPost, "/v1/payments/mpesa/callback", []byte(`{"Body":{}}`))
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentMpesaCallbackFailure(t *testing.T) {
	app := initApp(t)
	student := app.createUser(t, "student@test.test", "V3ryS3cretPwd", user.RoleStudent, true)
	token := app.getToken(t, student)

	app.mpesa.result = payment.STKPushResult{CheckoutRequestID: "ws_CO_789"}
	body := marchallObj(t, payment.MpesaInitiation{
		PhoneNumber: "+254712345678",
		CourseID:    "cpa-section-1",
		Amount:      4500,
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/mpesa/initiate", token, body)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req, rec = newRequest(http.MethodPost, "/v1/payments/mpesa/callback", stkCallbackBody("ws_CO_789", 1032, "Request cancelled by user", ""))
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req, rec = newAuthRequest(http.MethodGet, "/v1/payments/history", token)
	app.server.ServeHTTP(rec, req)
	var pmts []payment.Payment
	unmarchallObj(t, rec.Body.Bytes(), &pmts)
	if assert.Len(t, pmts, 1) {
		assert.Equal(t, payment.StatusFailed, pmts[0].Status)
		assert.Equal(t, "Request cancelled by user", pmts[0].FailureReason)
	}

	usr, err := app.usrSvc.GetByID(context.Background(), student.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	assert.Equal(t, user.PaymentPending, usr.PaymentStatus)
}

func TestPaymentPaypalFlow(t *testing.T) {
	app := initApp(t)
	student := app.createUser(t, "student@test.test", "V3ryS3cretPwd", user.RoleStudent, true)
	token := app.getToken(t, student)

	app.paypal.order = payment.OrderResult{
		OrderID:    "5O190127TN364715T",
		ApproveURL: "https://www.sandbox.paypal.com/checkoutnow?token=5O190127TN364715T",
	}
	app.paypal.capture = payment.CaptureResult{Status: "COMPLETED", PayerID: "payer-1"}

	body := marchallObj(t, payment.PaypalInitiation{CourseID: "cpa-section-1", Amount: 35})
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/paypal/initiate", token, body)
	app.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var initResp struct {
		Payment    payment.Payment `json:"payment"`
		OrderID    string          `json:"order_id"`
		ApproveURL string          `json:"approve_url"`
	}
	unmarchallObj(t, rec.Body.Bytes(), &initResp)
	assert.Equal(t, "5O190127TN364715T", initResp.OrderID)
	assert.Contains(t, initResp.ApproveURL, "checkoutnow")
	assert.Equal(t, payment.StatusPending, initResp.Payment.Status)
	assert.Equal(t, "USD", initResp.Payment.Currency)

	body = marchallObj(t, PaypalVerifyRequest{OrderID: initResp.OrderID})
	req, rec = newAuthRequest(http.MethodPost, "/v1/payments/paypal/verify", token, body)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	var verifyResp struct {
		Payment payment.Payment `json:"payment"`
	}
	unmarchallObj(t, rec.Body.Bytes(), &verifyResp)
	assert.Equal(t, payment.StatusCompleted, verifyResp.Payment.Status)
	assert.Equal(t, "payer-1", verifyResp.Payment.PaypalPayerID)

	usr, err := app.usrSvc.GetByID(context.Background(), student.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	assert.Equal(t, user.PaymentPaid, usr.PaymentStatus)

	// re-verifying a settled order is idempotent
	req, rec = newAuthRequest(http.MethodPost, "/v1/payments/paypal/verify", token, body)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentPaypalVerifyErrors(t *testing.T) {
	app := initApp(t)
	student := app.createUser(t, "student@test.test", "V3ryS3cretPwd", user.RoleStudent, true)
	token := app.getToken(t, student)

	// unknown order
	body := marchallObj(t, PaypalVerifyRequest{OrderID: "no-such-order"})
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/paypal/verify", token, body)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// missing order id
	req, rec = newAuthRequest(http.MethodPost, "/v1/payments/paypal/verify", token, marchallObj(t, PaypalVerifyRequest{}))
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// declined capture
	app.paypal.order = payment.OrderResult{OrderID: "order-declined", ApproveURL: "https://paypal.test/approve"}
	app.paypal.capture = payment.CaptureResult{Status: "DECLINED"}
	initBody := marchallObj(t, payment.PaypalInitiation{CourseID: "cpa-section-1", Amount: 35})
	req, rec = newAuthRequest(http.MethodPost, "/v1/payments/paypal/initiate", token, initBody)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	body = marchallObj(t, PaypalVerifyRequest{OrderID: "order-declined"})
	req, rec = newAuthRequest(http.MethodPost, "/v1/payments/paypal/verify", token, body)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentHistoryScoping(t *testing.T) {
	app := initApp(t)
	alice := app.createUser(t, "alice@test.test", "V3ryS3cretPwd", user.RoleStudent, true)
	bob := app.createUser(t, "bob@test.test", "V3ryS3cretPwd", user.RoleStudent, true)
	admin := app.createUser(t, "admin@test.test", "V3ryS3cretPwd", user.RoleAdmin, true)

	initBody := marchallObj(t, payment.MpesaInitiation{
		PhoneNumber: "+254712345678",
		CourseID:    "cpa-section-1",
		Amount:      4500,
	})
	for i, usr := range []user.User{alice, bob} {
		app.mpesa.result = payment.STKPushResult{CheckoutRequestID: fmt.Sprintf("ws_CO_%d", i)}
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/mpesa/initiate", app.getToken(t, usr), initBody)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	// students only see their own payments
	req, rec := newAuthRequest(http.MethodGet, "/v1/payments/history", app.getToken(t, alice))
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	var pmts []payment.Payment
	unmarchallObj(t, rec.Body.Bytes(), &pmts)
	if assert.Len(t, pmts, 1) {
		assert.Equal(t, alice.ID, pmts[0].StudentID)
	}

	// admins see everything
	req, rec = newAuthRequest(http.MethodGet, "/v1/payments/history", app.getToken(t, admin))
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	unmarchallObj(t, rec.Body.Bytes(), &pmts)
	assert.Len(t, pmts, 2)
}
