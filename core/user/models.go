package user

import (
	"time"

	"github.com/makena/hesabu/core"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleStudent    Role = "student"
)

var AllRoles = []Role{RoleSuperAdmin, RoleAdmin, RoleStudent}

// Named permissions grantable to admin accounts.
const (
	PermViewActivityLogs = "view_activity_logs"
)

func (r Role) Valid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// PaymentStatus tracks whether an account has paid for course access.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentPaid       PaymentStatus = "paid"
	PaymentFreeAccess PaymentStatus = "free_access"
)

// loginHistoryLimit bounds User.LoginHistory to the most recent entries.
const loginHistoryLimit = 10

// LoginRecord is a single entry in an account's login history.
type LoginRecord struct {
	Timestamp time.Time `json:"timestamp"` // UTC
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
}

type User struct {
	ID              string        `json:"id"`
	Email           string        `json:"email"`
	FirstName       string        `json:"first_name"`
	LastName        string        `json:"last_name"`
	Phone           string        `json:"phone,omitempty"`
	Role            Role          `json:"role"`
	Permissions     []string      `json:"permissions,omitempty"`
	IsActive        bool          `json:"is_active"`
	IsEmailVerified bool          `json:"is_email_verified"`
	PaymentStatus   PaymentStatus `json:"payment_status"`

	PasswordHash      string    `json:"-"`
	PasswordChangedAt time.Time `json:"-"`

	TwoFactorEnabled bool   `json:"two_factor_enabled"`
	TwoFactorSecret  string `json:"-"`

	// RefreshToken is the single currently-valid refresh token;
	// rotated on every login/refresh, cleared on logout.
	RefreshToken string        `json:"-"`
	LoginHistory []LoginRecord `json:"-"`

	LastLogin time.Time `json:"last_login,omitempty"` // UTC
	CreatedAt time.Time `json:"created_at"`           // UTC
	UpdatedAt time.Time `json:"updated_at"`           // UTC
}

// SetPassword hashes pwd with Argon2id and stores the encoded hash.
func (u *User) SetPassword(pwd string) error {
	hash, err := hashPassword(pwd)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = time.Now().UTC()
	return nil
}

// CheckPassword verifies pwd against the stored hash.
func (u *User) CheckPassword(pwd string) error {
	return verifyPassword(u.PasswordHash, pwd)
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

func (u *User) IsSuperAdmin() bool { return u.Role == RoleSuperAdmin }
func (u *User) IsAdmin() bool      { return u.Role == RoleAdmin || u.Role == RoleSuperAdmin }
func (u *User) IsStudent() bool    { return u.Role == RoleStudent }

// HasAnyRole reports whether the account's role is in roles.
func (u *User) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if u.Role == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether the account may perform the named action.
// super_admin bypasses all permission checks.
func (u *User) HasPermission(perm string) bool {
	if u.IsSuperAdmin() {
		return true
	}
	for _, p := range u.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// RecordLogin appends a login-history entry, keeping only the
// loginHistoryLimit most recent ones, and updates LastLogin.
func (u *User) RecordLogin(ip, userAgent string, at time.Time) {
	u.LoginHistory = append(u.LoginHistory, LoginRecord{Timestamp: at, IPAddress: ip, UserAgent: userAgent})
	if excess := len(u.LoginHistory) - loginHistoryLimit; excess > 0 {
		u.LoginHistory = u.LoginHistory[excess:]
	}
	u.LastLogin = at
}

// NewUser contains information needed to register a new account.
type NewUser struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"required,max=50"`
	LastName  string `json:"last_name" validate:"required,max=50"`
	Phone     string `json:"phone" validate:"omitempty,msisdn"`
}

func (nu *NewUser) Validate(svc *Service) error {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Phone = core.CleanString(nu.Phone)

	if err := svc.validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(nu.Email)
}

// Credentials is a login request.
type Credentials struct {
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required"`
	TwoFactorToken string `json:"two_factor_token"`
}

func (c *Credentials) Validate(svc *Service) error {
	c.Email = core.CleanString(c.Email, true /* lower */)
	c.TwoFactorToken = core.CleanString(c.TwoFactorToken)
	return svc.validate.Struct(c)
}

// ChangePassword carries a password change request.
type ChangePassword struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

func (cp *ChangePassword) Validate(svc *Service) error {
	return svc.validate.Struct(cp)
}
