package inmemdb

import (
	"context"
	"sort"

	"github.com/makena/hesabu/core/payment"
)

type paymentRepository struct {
	db *paymentTable
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *DB) *paymentRepository {
	return &paymentRepository{db: db.payment}
}

func (repo *paymentRepository) query() []payment.Payment {
	pmts := make([]payment.Payment, 0, len(repo.db.table))
	for _, p := range repo.db.table {
		pmts = append(pmts, *p)
	}
	sort.Slice(pmts, func(i, j int) bool { return pmts[i].InitiatedAt.After(pmts[j].InitiatedAt) })
	return pmts
}

func (repo *paymentRepository) CreatePayment(_ context.Context, pmt payment.Payment) (payment.Payment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.table[pmt.ID] = &pmt
	return pmt, nil
}

func (repo *paymentRepository) GetPaymentByTransactionID(_ context.Context, txnID string) (payment.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, pmt := range repo.query() {
		if pmt.TransactionID == txnID {
			return pmt, nil
		}
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) GetPaymentByExternalID(_ context.Context, externalID string) (payment.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, pmt := range repo.query() {
		if pmt.ExternalID != "" && pmt.ExternalID == externalID {
			return pmt, nil
		}
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) SetExternalID(_ context.Context, paymentID, externalID string) (payment.Payment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	pmt, ok := repo.db.table[paymentID]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	pmt.ExternalID = externalID
	return *pmt, nil
}

func (repo *paymentRepository) ResolvePayment(_ context.Context, pmt payment.Payment) (payment.Payment, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.table[pmt.ID]
	if !ok {
		return payment.Payment{}, false, payment.ErrNotFound
	}
	if stored.Status != payment.StatusPending {
		return *stored, false, nil
	}

	stored.Status = pmt.Status
	stored.MpesaReceiptNumber = pmt.MpesaReceiptNumber
	stored.PaypalPayerID = pmt.PaypalPayerID
	stored.FailureReason = pmt.FailureReason
	stored.CompletedAt = pmt.CompletedAt
	stored.FailedAt = pmt.FailedAt
	return *stored, true, nil
}

func (repo *paymentRepository) QueryPaymentsByStudent(_ context.Context, studentID string) ([]payment.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	pmts := make([]payment.Payment, 0)
	for _, pmt := range repo.query() {
		if pmt.StudentID == studentID {
			pmts = append(pmts, pmt)
		}
	}
	return pmts, nil
}

func (repo *paymentRepository) QueryAllPayments(_ context.Context) ([]payment.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(), nil
}
