package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/makena/hesabu/core"
)

// Status is a payment's lifecycle status. The only valid transitions are
// pending→completed and pending→failed; terminal states never change.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Method is the payment provider an account chose.
type Method string

const (
	MethodMpesa      Method = "mpesa"
	MethodPaypal     Method = "paypal"
	MethodFreeAccess Method = "free_access"
)

type Payment struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`

	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Method   Method  `json:"payment_method"`
	Status   Status  `json:"status"`

	// TransactionID is the internally generated id, unique per payment,
	// passed to providers as the account reference.
	TransactionID string `json:"transaction_id"`
	// ExternalID is the provider correlation id (M-Pesa CheckoutRequestID
	// or PayPal order id) used to match callbacks back to this record.
	ExternalID string `json:"external_id,omitempty"`

	MpesaReceiptNumber string `json:"mpesa_receipt_number,omitempty"`
	PhoneNumber        string `json:"phone_number,omitempty"`
	PaypalPayerID      string `json:"paypal_payer_id,omitempty"`
	FailureReason      string `json:"failure_reason,omitempty"`

	IPAddress string `json:"-"`
	UserAgent string `json:"-"`

	InitiatedAt time.Time `json:"initiated_at"`            // UTC
	CompletedAt time.Time `json:"completed_at,omitempty"`  // UTC
	FailedAt    time.Time `json:"failed_at,omitempty"`     // UTC
}

// newTransactionID generates the internal transaction id.
func newTransactionID() string {
	return "TXN-" + uuid.NewString()
}

// MpesaInitiation is an M-Pesa STK push request.
type MpesaInitiation struct {
	PhoneNumber string  `json:"phone_number" validate:"required,msisdn"`
	CourseID    string  `json:"course_id" validate:"required"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
}

func (mi *MpesaInitiation) Validate(svc *Service) error {
	mi.PhoneNumber = core.CleanString(mi.PhoneNumber)
	mi.CourseID = core.CleanString(mi.CourseID)
	return svc.validate.Struct(mi)
}

// PaypalInitiation is a PayPal order creation request.
type PaypalInitiation struct {
	CourseID string  `json:"course_id" validate:"required"`
	Amount   float64 `json:"amount" validate:"required,gt=0"`
}

func (pi *PaypalInitiation) Validate(svc *Service) error {
	pi.CourseID = core.CleanString(pi.CourseID)
	return svc.validate.Struct(pi)
}
