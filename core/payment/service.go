package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/makena/hesabu/core"
	"github.com/makena/hesabu/core/activity"
	"github.com/makena/hesabu/core/progress"
	"github.com/makena/hesabu/core/user"
)

var (
	// errors
	ErrNotFound           = errors.New("payment not found")
	ErrInitiationFailed   = errors.New("failed to initiate payment")
	ErrNotCompleted       = errors.New("payment not completed")
	ErrVerificationFailed = errors.New("failed to verify payment")
)

type (
	Repository interface {
		CreatePayment(ctx context.Context, pmt Payment) (Payment, error)
		GetPaymentByTransactionID(ctx context.Context, txnID string) (Payment, error)
		GetPaymentByExternalID(ctx context.Context, externalID string) (Payment, error)
		// SetExternalID records the provider correlation id on a pending payment.
		SetExternalID(ctx context.Context, paymentID, externalID string) (Payment, error)
		// ResolvePayment applies a terminal status (completed/failed and the
		// accompanying receipt/payer/failure fields) only if the payment is
		// still pending. It reports whether the transition was applied;
		// an already-terminal payment is left untouched.
		ResolvePayment(ctx context.Context, pmt Payment) (Payment, bool, error)
		QueryPaymentsByStudent(ctx context.Context, studentID string) ([]Payment, error)
		QueryAllPayments(ctx context.Context) ([]Payment, error)
	}

	Service struct {
		repo     Repository
		usrSvc   *user.Service
		progSvc  *progress.Service
		audit    *activity.Service
		mpesa    MpesaClient
		paypal   PaypalClient
		validate *validator.Validate
		logger   core.Logger
	}
)

func NewService(
	repo Repository,
	usrSvc *user.Service,
	progSvc *progress.Service,
	audit *activity.Service,
	mpesa MpesaClient,
	paypal PaypalClient,
	validate *validator.Validate,
	logger core.Logger,
) *Service {
	return &Service{
		repo:     repo,
		usrSvc:   usrSvc,
		progSvc:  progSvc,
		audit:    audit,
		mpesa:    mpesa,
		paypal:   paypal,
		validate: validate,
		logger:   logger,
	}
}

// InitiateMpesa creates a pending payment and submits an STK push tagged
// with the internal transaction id. Any provider failure marks the payment
// failed; the provider error is logged, never surfaced.
func (svc *Service) InitiateMpesa(ctx context.Context, usr user.User, mi MpesaInitiation, ip, userAgent string) (Payment, STKPushResult, error) {
	pmt, err := svc.repo.CreatePayment(ctx, Payment{
		ID:            uuid.NewString(),
		StudentID:     usr.ID,
		CourseID:      mi.CourseID,
		Amount:        mi.Amount,
		Currency:      "KES",
		Method:        MethodMpesa,
		Status:        StatusPending,
		TransactionID: newTransactionID(),
		PhoneNumber:   mi.PhoneNumber,
		IPAddress:     ip,
		UserAgent:     userAgent,
		InitiatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return Payment{}, STKPushResult{}, err
	}

	res, err := svc.mpesa.RequestSTKPush(ctx, mi.PhoneNumber, mi.Amount, pmt.TransactionID)
	if err != nil {
		svc.failPayment(ctx, pmt, "M-Pesa initiation failed", fmt.Sprintf("M-Pesa initiation failed: %v", err))
		return Payment{}, STKPushResult{}, ErrInitiationFailed
	}

	pmt, err = svc.repo.SetExternalID(ctx, pmt.ID, res.CheckoutRequestID)
	if err != nil {
		return Payment{}, STKPushResult{}, err
	}

	svc.audit.Record(ctx, activity.Entry{
		UserID:      usr.ID,
		Action:      "PAYMENT_INITIATED",
		Category:    activity.CategoryPayment,
		Description: "M-Pesa payment initiated",
		Metadata: map[string]interface{}{
			"transaction_id": pmt.TransactionID,
			"amount":         pmt.Amount,
			"phone_number":   pmt.PhoneNumber,
		},
		IPAddress: ip,
		UserAgent: userAgent,
	})
	return pmt, res, nil
}

// InitiatePaypal creates a pending payment and a provider order tagged with
// the internal transaction id, returning the approval redirect link.
func (svc *Service) InitiatePaypal(ctx context.Context, usr user.User, pi PaypalInitiation, ip, userAgent string) (Payment, OrderResult, error) {
	pmt, err := svc.repo.CreatePayment(ctx, Payment{
		ID:            uuid.NewString(),
		StudentID:     usr.ID,
		CourseID:      pi.CourseID,
		Amount:        pi.Amount,
		Currency:      "USD",
		Method:        MethodPaypal,
		Status:        StatusPending,
		TransactionID: newTransactionID(),
		IPAddress:     ip,
		UserAgent:     userAgent,
		InitiatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return Payment{}, OrderResult{}, err
	}

	res, err := svc.paypal.CreateOrder(ctx, pi.Amount, "USD", pmt.TransactionID)
	if err != nil {
		svc.failPayment(ctx, pmt, "PayPal initiation failed", fmt.Sprintf("PayPal initiation failed: %v", err))
		return Payment{}, OrderResult{}, ErrInitiationFailed
	}

	pmt, err = svc.repo.SetExternalID(ctx, pmt.ID, res.OrderID)
	if err != nil {
		return Payment{}, OrderResult{}, err
	}

	svc.audit.Record(ctx, activity.Entry{
		UserID:      usr.ID,
		Action:      "PAYMENT_INITIATED",
		Category:    activity.CategoryPayment,
		Description: "PayPal payment initiated",
		Metadata: map[string]interface{}{
			"transaction_id": pmt.TransactionID,
			"amount":         pmt.Amount,
		},
		IPAddress: ip,
		UserAgent: userAgent,
	})
	return pmt, res, nil
}

// ResolveMpesaCallback correlates an inbound STK callback to a payment by
// the checkout-request id and resolves it. It never returns an error: the
// provider must always be acknowledged, and an unknown or already-resolved
// payment is a no-op.
func (svc *Service) ResolveMpesaCallback(ctx context.Context, cb MpesaCallback) {
	stk := cb.Body.STKCallback
	if stk == nil {
		return
	}

	pmt, err := svc.repo.GetPaymentByExternalID(ctx, stk.CheckoutRequestID)
	if err != nil {
		if err != ErrNotFound {
			svc.logger.Error(fmt.Sprintf("mpesa callback lookup: %v", err), err)
		}
		return
	}

	if stk.ResultCode == 0 {
		svc.completePayment(ctx, pmt, func(p *Payment) {
			p.MpesaReceiptNumber = cb.ReceiptNumber()
		}, "M-Pesa payment completed successfully")
		return
	}

	svc.failPayment(ctx, pmt, stk.ResultDesc, fmt.Sprintf("M-Pesa payment failed: %s", stk.ResultDesc))
}

// VerifyPaypal captures the provider order and resolves the matching payment.
// Side effects on success are identical to the M-Pesa callback path.
func (svc *Service) VerifyPaypal(ctx context.Context, orderID string) (Payment, error) {
	pmt, err := svc.repo.GetPaymentByExternalID(ctx, orderID)
	if err != nil {
		if err == ErrNotFound {
			return Payment{}, ErrNotFound
		}
		return Payment{}, errors.Wrap(err, "finding payment by order id")
	}

	// already-terminal payments are not re-resolved; a completed one is
	// simply returned so a repeated verification stays idempotent.
	if pmt.Status == StatusCompleted {
		return pmt, nil
	}
	if pmt.Status == StatusFailed {
		return Payment{}, ErrNotCompleted
	}

	res, err := svc.paypal.CaptureOrder(ctx, orderID)
	if err != nil {
		svc.failPayment(ctx, pmt, "PayPal capture failed", fmt.Sprintf("PayPal capture failed: %v", err))
		return Payment{}, ErrVerificationFailed
	}
	if res.Status != "COMPLETED" {
		desc := fmt.Sprintf("PayPal capture status: %s", res.Status)
		svc.failPayment(ctx, pmt, desc, desc)
		return Payment{}, ErrNotCompleted
	}

	pmt = svc.completePayment(ctx, pmt, func(p *Payment) {
		p.PaypalPayerID = res.PayerID
	}, "PayPal payment completed successfully")
	return pmt, nil
}

// History returns a student's own payments, or all payments for admins.
func (svc *Service) History(ctx context.Context, usr user.User) ([]Payment, error) {
	if usr.IsStudent() {
		return svc.repo.QueryPaymentsByStudent(ctx, usr.ID)
	}
	return svc.repo.QueryAllPayments(ctx)
}

// completePayment transitions pmt to completed if it is still pending and,
// only when this call won the transition, flips the owning account to paid
// and provisions its progress record.
func (svc *Service) completePayment(ctx context.Context, pmt Payment, fill func(*Payment), desc string) Payment {
	pmt.Status = StatusCompleted
	pmt.CompletedAt = time.Now().UTC()
	if fill != nil {
		fill(&pmt)
	}

	resolved, applied, err := svc.repo.ResolvePayment(ctx, pmt)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("resolving payment %s: %v", pmt.TransactionID, err), err)
		return pmt
	}
	if !applied {
		return resolved
	}

	if err = svc.usrSvc.MarkPaid(ctx, resolved.StudentID); err != nil {
		svc.logger.Error(fmt.Sprintf("marking account %s paid: %v", resolved.StudentID, err), err)
	}
	if _, err = svc.progSvc.Enroll(ctx, resolved.StudentID, resolved.CourseID); err != nil {
		svc.logger.Error(fmt.Sprintf("provisioning progress for %s: %v", resolved.StudentID, err), err)
	}

	svc.audit.Record(ctx, activity.Entry{
		UserID:      resolved.StudentID,
		Action:      "PAYMENT_COMPLETED",
		Category:    activity.CategoryPayment,
		Description: desc,
		Metadata: map[string]interface{}{
			"transaction_id": resolved.TransactionID,
			"amount":         resolved.Amount,
		},
	})
	return resolved
}

// failPayment transitions pmt to failed if it is still pending. The reason
// is recorded on the payment as-is; auditDesc carries the detailed variant
// for the audit trail only.
func (svc *Service) failPayment(ctx context.Context, pmt Payment, reason, auditDesc string) bool {
	pmt.Status = StatusFailed
	pmt.FailedAt = time.Now().UTC()
	pmt.FailureReason = reason

	resolved, applied, err := svc.repo.ResolvePayment(ctx, pmt)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("failing payment %s: %v", pmt.TransactionID, err), err)
		return false
	}
	if !applied {
		return false
	}

	svc.audit.Record(ctx, activity.Entry{
		UserID:      resolved.StudentID,
		Action:      "PAYMENT_FAILED",
		Category:    activity.CategoryPayment,
		Description: auditDesc,
		Metadata:    map[string]interface{}{"transaction_id": resolved.TransactionID},
		Status:      activity.StatusFailure,
	})
	return true
}
