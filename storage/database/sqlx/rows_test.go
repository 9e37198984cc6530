package sqlxrepos

import (
	"reflect"
	"testing"
	"time"

	"github.com/makena/hesabu/core/activity"
	"github.com/makena/hesabu/core/payment"
	"github.com/makena/hesabu/core/progress"
	"github.com/makena/hesabu/core/user"
)

func TestActivityRowToEntry(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	row := activityRow{
		ID:          "entry-1",
		UserID:      "user-1",
		Action:      "USER_LOGIN",
		Category:    activity.CategoryAuth,
		Description: "User logged in: jeri@test.test",
		Metadata:    []byte(`{"transaction_id":"TXN-1"}`),
		IPAddress:   "10.0.0.1",
		UserAgent:   "test-agent",
		Status:      activity.StatusSuccess,
		Timestamp:   now,
	}

	entry, err := row.toEntry()
	if err != nil {
		t.Fatalf("toEntry() failed: %v", err)
	}
	if entry.Category != activity.CategoryAuth {
		t.Errorf("Category = %q; want %q", entry.Category, activity.CategoryAuth)
	}
	if entry.Status != activity.StatusSuccess {
		t.Errorf("Status = %q; want %q", entry.Status, activity.StatusSuccess)
	}
	if entry.Metadata["transaction_id"] != "TXN-1" {
		t.Errorf("Metadata = %v; want transaction_id TXN-1", entry.Metadata)
	}
	if !entry.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v; want %v", entry.Timestamp, now)
	}

	row.Metadata = []byte("not json")
	if _, err = row.toEntry(); err == nil {
		t.Error("toEntry() with invalid metadata should fail")
	}
}

func TestProgressRowRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	row := progressRow{
		ID:              "prog-1",
		StudentID:       "user-1",
		CourseID:        "cpa-section-1",
		OverallProgress: 42,
		EnrolledAt:      now,
	}

	want := progress.Progress{
		ID:              "prog-1",
		StudentID:       "user-1",
		CourseID:        "cpa-section-1",
		OverallProgress: 42,
		EnrolledAt:      now,
	}
	if got := row.toProgress(); !reflect.DeepEqual(got, want) {
		t.Errorf("toProgress() = %+v; want %+v", got, want)
	}
}

func TestPaymentRowRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	pmt := payment.Payment{
		ID:                 "pmt-1",
		StudentID:          "user-1",
		CourseID:           "cpa-section-1",
		Amount:             4500,
		Currency:           "KES",
		Method:             payment.MethodMpesa,
		Status:             payment.StatusCompleted,
		TransactionID:      "TXN-1",
		ExternalID:         "ws_CO_1",
		MpesaReceiptNumber: "QK12XYZ",
		PhoneNumber:        "+254712345678",
		IPAddress:          "10.0.0.1",
		UserAgent:          "test-agent",
		InitiatedAt:        now,
		CompletedAt:        now,
	}

	row := newPaymentRow(pmt)
	if !row.CompletedAt.Valid {
		t.Error("CompletedAt should be valid")
	}
	if row.FailedAt.Valid {
		t.Error("FailedAt should be NULL for a completed payment")
	}
	if got := row.toPayment(); !reflect.DeepEqual(got, pmt) {
		t.Errorf("toPayment() = %+v; want %+v", got, pmt)
	}

	// a pending payment has no terminal timestamps
	pending := newPaymentRow(payment.Payment{Status: payment.StatusPending, InitiatedAt: now})
	if pending.CompletedAt.Valid || pending.FailedAt.Valid {
		t.Error("pending payment should have NULL terminal timestamps")
	}
}

func TestUserRowRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	usr := user.User{
		ID:               "user-1",
		Email:            "jeri@test.test",
		FirstName:        "Jeri",
		LastName:         "Makena",
		Role:             user.RoleAdmin,
		Permissions:      []string{user.PermViewActivityLogs},
		IsActive:         true,
		PaymentStatus:    user.PaymentPaid,
		PasswordHash:     "$argon2id$...",
		TwoFactorEnabled: true,
		TwoFactorSecret:  "SECRET",
		RefreshToken:     "refresh-1",
		LoginHistory: []user.LoginRecord{
			{Timestamp: now, IPAddress: "10.0.0.1", UserAgent: "test-agent"},
		},
		LastLogin: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	row, err := newUserRow(usr)
	if err != nil {
		t.Fatalf("newUserRow() failed: %v", err)
	}
	if !row.LastLogin.Valid {
		t.Error("LastLogin should be valid")
	}
	if row.PasswordChangedAt.Valid {
		t.Error("PasswordChangedAt should be NULL when never changed")
	}

	got, err := row.toUser()
	if err != nil {
		t.Fatalf("toUser() failed: %v", err)
	}
	if !reflect.DeepEqual(got, usr) {
		t.Errorf("toUser() = %+v; want %+v", got, usr)
	}

	// default history encodes as an empty JSON array
	emptyRow, err := newUserRow(user.User{ID: "user-2", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("newUserRow() failed: %v", err)
	}
	if string(emptyRow.LoginHistory) != "[]" {
		t.Errorf("LoginHistory = %s; want []", emptyRow.LoginHistory)
	}
}
