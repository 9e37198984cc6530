package activity

import "time"

// Categories
const (
	CategoryAuth    = "auth"
	CategoryPayment = "payment"
	CategoryAdmin   = "admin"
	CategoryUser    = "user"
	CategorySystem  = "system"
)

// Statuses
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusWarning = "warning"
)

// Entry is a single append-only audit record of a security- or
// payment-relevant event.
type Entry struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"user_id,omitempty"`
	Action      string                 `json:"action"`
	Category    string                 `json:"category"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	IPAddress   string                 `json:"ip_address,omitempty"`
	UserAgent   string                 `json:"user_agent,omitempty"`
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"` // UTC
}
