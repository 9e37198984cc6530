package payment

import "context"

type (
	// STKPushResult is the provider acknowledgment of a push-payment request.
	STKPushResult struct {
		CheckoutRequestID string
		CustomerMessage   string
	}

	// MpesaClient submits STK push requests to the M-Pesa Daraja API.
	// Implementations obtain their own provider access token per call.
	MpesaClient interface {
		RequestSTKPush(ctx context.Context, phoneNumber string, amount float64, accountRef string) (STKPushResult, error)
	}

	// OrderResult is the provider acknowledgment of an order creation.
	OrderResult struct {
		OrderID    string
		ApproveURL string
	}

	// CaptureResult is the outcome of capturing an approved order.
	CaptureResult struct {
		Status  string
		PayerID string
	}

	// PaypalClient creates and captures PayPal checkout orders.
	PaypalClient interface {
		CreateOrder(ctx context.Context, amount float64, currency, reference string) (OrderResult, error)
		CaptureOrder(ctx context.Context, orderID string) (CaptureResult, error)
	}
)

// MpesaCallback is the inbound STK push callback payload.
type MpesaCallback struct {
	Body struct {
		STKCallback *struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []MpesaCallbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type MpesaCallbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// ReceiptNumber extracts the MpesaReceiptNumber metadata item, if present.
func (cb MpesaCallback) ReceiptNumber() string {
	if cb.Body.STKCallback == nil {
		return ""
	}
	for _, item := range cb.Body.STKCallback.CallbackMetadata.Item {
		if item.Name == "MpesaReceiptNumber" {
			if s, ok := item.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}
