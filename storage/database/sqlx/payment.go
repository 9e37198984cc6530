package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/makena/hesabu/core/payment"
)

type paymentRow struct {
	ID                 string       `db:"id"`
	StudentID          string       `db:"student_id"`
	CourseID           string       `db:"course_id"`
	Amount             float64      `db:"amount"`
	Currency           string       `db:"currency"`
	Method             string       `db:"method"`
	Status             string       `db:"status"`
	TransactionID      string       `db:"transaction_id"`
	ExternalID         string       `db:"external_id"`
	MpesaReceiptNumber string       `db:"mpesa_receipt_number"`
	PhoneNumber        string       `db:"phone_number"`
	PaypalPayerID      string       `db:"paypal_payer_id"`
	FailureReason      string       `db:"failure_reason"`
	IPAddress          string       `db:"ip_address"`
	UserAgent          string       `db:"user_agent"`
	InitiatedAt        time.Time    `db:"initiated_at"`
	CompletedAt        sql.NullTime `db:"completed_at"`
	FailedAt           sql.NullTime `db:"failed_at"`
}

func (row paymentRow) toPayment() payment.Payment {
	pmt := payment.Payment{
		ID:                 row.ID,
		StudentID:          row.StudentID,
		CourseID:           row.CourseID,
		Amount:             row.Amount,
		Currency:           row.Currency,
		Method:             payment.Method(row.Method),
		Status:             payment.Status(row.Status),
		TransactionID:      row.TransactionID,
		ExternalID:         row.ExternalID,
		MpesaReceiptNumber: row.MpesaReceiptNumber,
		PhoneNumber:        row.PhoneNumber,
		PaypalPayerID:      row.PaypalPayerID,
		FailureReason:      row.FailureReason,
		IPAddress:          row.IPAddress,
		UserAgent:          row.UserAgent,
		InitiatedAt:        row.InitiatedAt,
	}
	if row.CompletedAt.Valid {
		pmt.CompletedAt = row.CompletedAt.Time
	}
	if row.FailedAt.Valid {
		pmt.FailedAt = row.FailedAt.Time
	}
	return pmt
}

func newPaymentRow(pmt payment.Payment) paymentRow {
	return paymentRow{
		ID:                 pmt.ID,
		StudentID:          pmt.StudentID,
		CourseID:           pmt.CourseID,
		Amount:             pmt.Amount,
		Currency:           pmt.Currency,
		Method:             string(pmt.Method),
		Status:             string(pmt.Status),
		TransactionID:      pmt.TransactionID,
		ExternalID:         pmt.ExternalID,
		MpesaReceiptNumber: pmt.MpesaReceiptNumber,
		PhoneNumber:        pmt.PhoneNumber,
		PaypalPayerID:      pmt.PaypalPayerID,
		FailureReason:      pmt.FailureReason,
		IPAddress:          pmt.IPAddress,
		UserAgent:          pmt.UserAgent,
		InitiatedAt:        pmt.InitiatedAt,
		CompletedAt:        sql.NullTime{Time: pmt.CompletedAt, Valid: !pmt.CompletedAt.IsZero()},
		FailedAt:           sql.NullTime{Time: pmt.FailedAt, Valid: !pmt.FailedAt.IsZero()},
	}
}

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *sqlx.DB) *paymentRepository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) CreatePayment(ctx context.Context, pmt payment.Payment) (payment.Payment, error) {
	q := `
	INSERT INTO payments (
		id, student_id, course_id, amount, currency, method, status,
		transaction_id, external_id, mpesa_receipt_number, phone_number,
		paypal_payer_id, failure_reason, ip_address, user_agent,
		initiated_at, completed_at, failed_at
	) VALUES (
		:id, :student_id, :course_id, :amount, :currency, :method, :status,
		:transaction_id, :external_id, :mpesa_receipt_number, :phone_number,
		:paypal_payer_id, :failure_reason, :ip_address, :user_agent,
		:initiated_at, :completed_at, :failed_at
	)`
	if _, err := repo.db.NamedExecContext(ctx, q, newPaymentRow(pmt)); err != nil {
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return pmt, nil
}

func (repo *paymentRepository) getPayment(ctx context.Context, q string, args ...interface{}) (payment.Payment, error) {
	var row paymentRow
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return payment.Payment{}, payment.ErrNotFound
		}
		return payment.Payment{}, errors.Wrap(err, "querying payment")
	}
	return row.toPayment(), nil
}

func (repo *paymentRepository) GetPaymentByTransactionID(ctx context.Context, txnID string) (payment.Payment, error) {
	return repo.getPayment(ctx, `SELECT * FROM payments WHERE transaction_id = $1`, txnID)
}

func (repo *paymentRepository) GetPaymentByExternalID(ctx context.Context, externalID string) (payment.Payment, error) {
	return repo.getPayment(ctx, `SELECT * FROM payments WHERE external_id = $1`, externalID)
}

func (repo *paymentRepository) SetExternalID(ctx context.Context, paymentID, externalID string) (payment.Payment, error) {
	q := `UPDATE payments SET external_id = $2 WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, q, paymentID, externalID)
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "setting external id")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return payment.Payment{}, payment.ErrNotFound
	}
	return repo.getPayment(ctx, `SELECT * FROM payments WHERE id = $1`, paymentID)
}

// ResolvePayment flips a payment to its terminal state with a conditional
// update; a payment that is no longer pending stays untouched and the
// stored row is returned with applied=false.
func (repo *paymentRepository) ResolvePayment(ctx context.Context, pmt payment.Payment) (payment.Payment, bool, error) {
	row := newPaymentRow(pmt)
	q := `
	UPDATE payments SET
		status = :status,
		mpesa_receipt_number = :mpesa_receipt_number,
		paypal_payer_id = :paypal_payer_id,
		failure_reason = :failure_reason,
		completed_at = :completed_at,
		failed_at = :failed_at
	WHERE id = :id AND status = 'pending'`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return payment.Payment{}, false, errors.Wrap(err, "resolving payment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return payment.Payment{}, false, errors.Wrap(err, "resolving payment")
	}
	if n == 0 {
		stored, err := repo.getPayment(ctx, `SELECT * FROM payments WHERE id = $1`, pmt.ID)
		if err != nil {
			return payment.Payment{}, false, err
		}
		return stored, false, nil
	}
	return pmt, true, nil
}

func (repo *paymentRepository) QueryPaymentsByStudent(ctx context.Context, studentID string) ([]payment.Payment, error) {
	var rows []paymentRow
	q := `SELECT * FROM payments WHERE student_id = $1 ORDER BY initiated_at DESC`
	if err := repo.db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	return toPayments(rows), nil
}

func (repo *paymentRepository) QueryAllPayments(ctx context.Context) ([]payment.Payment, error) {
	var rows []paymentRow
	q := `SELECT * FROM payments ORDER BY initiated_at DESC`
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	return toPayments(rows), nil
}

func toPayments(rows []paymentRow) []payment.Payment {
	pmts := make([]payment.Payment, 0, len(rows))
	for _, row := range rows {
		pmts = append(pmts, row.toPayment())
	}
	return pmts
}
