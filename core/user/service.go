package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/makena/hesabu/core"
	"github.com/makena/hesabu/core/activity"
)

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDeactivated = errors.New("account has been deactivated")
	ErrTwoFactorRequired  = errors.New("2FA token required")
	ErrInvalidTwoFactor   = errors.New("invalid 2FA token")
	ErrTwoFactorEnabled   = errors.New("2FA is already enabled")
	ErrTwoFactorNotSetup  = errors.New("2FA not set up")
	ErrRefreshMismatch    = errors.New("invalid or expired refresh token")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		QueryAllUsers(ctx context.Context) ([]User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		// GetUserByEmail does a case-insensitive exact match.
		GetUserByEmail(ctx context.Context, email string) (User, error)
		GetUserByRole(ctx context.Context, role Role) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo     Repository
		mailSvc  core.EmailService
		audit    *activity.Service
		validate *validator.Validate
		conf     *core.Config
	}
)

func NewService(repo Repository, mailSvc core.EmailService, audit *activity.Service, validate *validator.Validate, conf *core.Config) *Service {
	return &Service{
		repo:     repo,
		mailSvc:  mailSvc,
		audit:    audit,
		validate: validate,
		conf:     conf,
	}
}

func (svc *Service) checkUniqueness(email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(context.Background(), email, exclUsers...); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Register creates a new student account. The caller issues the token pair
// and persists the refresh token via StoreRefreshToken.
func (svc *Service) Register(ctx context.Context, nu NewUser, ip, userAgent string) (User, error) {
	now := time.Now().UTC()
	usr := User{
		ID:            uuid.NewString(),
		Email:         nu.Email,
		FirstName:     nu.FirstName,
		LastName:      nu.LastName,
		Phone:         nu.Phone,
		Role:          RoleStudent,
		IsActive:      true,
		PaymentStatus: PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		// concurrent registrations can slip past the uniqueness pre-check
		// and surface the duplicate from the insert itself
		if err == ErrEmailExists {
			return User{}, core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return User{}, errors.Wrap(err, "creating user")
	}

	svc.audit.Record(ctx, activity.Entry{
		UserID:      usr.ID,
		Action:      "USER_REGISTERED",
		Category:    activity.CategoryAuth,
		Description: fmt.Sprintf("New user registered: %s", usr.Email),
		IPAddress:   ip,
		UserAgent:   userAgent,
	})
	svc.sendWelcomeEmail(usr)
	return usr, nil
}

// Authenticate performs the full login check: credentials, active flag and,
// when enabled, the time-based second factor. On success the login history
// is appended (bounded) and persisted.
func (svc *Service) Authenticate(ctx context.Context, creds Credentials, ip, userAgent string) (User, error) {
	usr, err := svc.repo.GetUserByEmail(ctx, creds.Email)
	if err != nil {
		if err == ErrNotFound {
			svc.recordLoginFailure(ctx, creds.Email, ip, userAgent)
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(creds.Password); err != nil {
		svc.recordLoginFailure(ctx, creds.Email, ip, userAgent)
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}

	if usr.TwoFactorEnabled && usr.TwoFactorSecret != "" {
		if creds.TwoFactorToken == "" {
			return User{}, ErrTwoFactorRequired
		}
		if !verifyTwoFactorCode(creds.TwoFactorToken, usr.TwoFactorSecret, time.Now()) {
			return User{}, ErrInvalidTwoFactor
		}
	}

	usr.RecordLogin(ip, userAgent, time.Now().UTC())
	usr.UpdatedAt = time.Now().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "saving login history")
	}

	svc.audit.Record(ctx, activity.Entry{
		UserID:      usr.ID,
		Action:      "USER_LOGIN",
		Category:    activity.CategoryAuth,
		Description: fmt.Sprintf("User logged in: %s", usr.Email),
		IPAddress:   ip,
		UserAgent:   userAgent,
	})
	return usr, nil
}

func (svc *Service) recordLoginFailure(ctx context.Context, email, ip, userAgent string) {
	svc.audit.Record(ctx, activity.Entry{
		Action:      "LOGIN_FAILED",
		Category:    activity.CategoryAuth,
		Description: fmt.Sprintf("Failed login attempt for email: %s", email),
		IPAddress:   ip,
		UserAgent:   userAgent,
		Status:      activity.StatusFailure,
	})
}

// StoreRefreshToken persists token as the account's single valid refresh
// token, invalidating any previously issued one.
func (svc *Service) StoreRefreshToken(ctx context.Context, usr User, token string) (User, error) {
	usr.RefreshToken = token
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// RotateRefreshToken exchanges the presented refresh token for newToken.
// The presented token must exactly match the account's stored token;
// a rotated-out token is rejected. All failures are uniform.
func (svc *Service) RotateRefreshToken(ctx context.Context, userID, presented, newToken string) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, userID)
	if err != nil {
		return User{}, ErrRefreshMismatch
	}
	if !usr.IsActive || usr.RefreshToken == "" || usr.RefreshToken != presented {
		return User{}, ErrRefreshMismatch
	}
	return svc.StoreRefreshToken(ctx, usr, newToken)
}

// Logout clears the account's refresh token.
func (svc *Service) Logout(ctx context.Context, usr User, ip, userAgent string) error {
	if _, err := svc.StoreRefreshToken(ctx, usr, ""); err != nil {
		return err
	}
	svc.audit.Record(ctx, activity.Entry{
		UserID:      usr.ID,
		Action:      "USER_LOGOUT",
		Category:    activity.CategoryAuth,
		Description: "User logged out",
		IPAddress:   ip,
		UserAgent:   userAgent,
	})
	return nil
}

// Setup2FA generates a new random secret bound to the account and a
// scannable provisioning payload. The secret is stored but not yet enabled;
// Verify2FA flips the enabled flag.
func (svc *Service) Setup2FA(ctx context.Context, usr User) (TwoFactorSetup, error) {
	if usr.TwoFactorEnabled {
		return TwoFactorSetup{}, ErrTwoFactorEnabled
	}

	key, err := generateTwoFactorKey(svc.conf.AppName, usr.Email)
	if err != nil {
		return TwoFactorSetup{}, errors.Wrap(err, "generating 2FA secret")
	}
	qr, err := qrCodeDataURL(key)
	if err != nil {
		return TwoFactorSetup{}, errors.Wrap(err, "rendering QR code")
	}

	usr.TwoFactorSecret = key.Secret()
	usr.UpdatedAt = time.Now().UTC()
	if _, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return TwoFactorSetup{}, err
	}

	return TwoFactorSetup{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCode:          qr,
	}, nil
}

// Verify2FA checks a caller-supplied code against the pending secret and
// enables two-factor authentication on success.
func (svc *Service) Verify2FA(ctx context.Context, usr User, code, ip, userAgent string) error {
	if usr.TwoFactorSecret == "" {
		return ErrTwoFactorNotSetup
	}
	if !verifyTwoFactorCode(code, usr.TwoFactorSecret, time.Now()) {
		return ErrInvalidTwoFactor
	}

	usr.TwoFactorEnabled = true
	usr.UpdatedAt = time.Now().UTC()
	if _, err := svc.repo.UpdateUser(ctx, usr); err != nil {
		return err
	}

	svc.audit.Record(ctx, activity.Entry{
		UserID:      usr.ID,
		Action:      "2FA_ENABLED",
		Category:    activity.CategoryAuth,
		Description: "Two-factor authentication enabled",
		IPAddress:   ip,
		UserAgent:   userAgent,
	})
	return nil
}

// Disable2FA requires re-proving the account password before clearing the
// secret and the enabled flag.
func (svc *Service) Disable2FA(ctx context.Context, usr User, password, ip, userAgent string) error {
	if err := usr.CheckPassword(password); err != nil {
		return ErrInvalidCredentials
	}

	usr.TwoFactorEnabled = false
	usr.TwoFactorSecret = ""
	usr.UpdatedAt = time.Now().UTC()
	if _, err := svc.repo.UpdateUser(ctx, usr); err != nil {
		return err
	}

	svc.audit.Record(ctx, activity.Entry{
		UserID:      usr.ID,
		Action:      "2FA_DISABLED",
		Category:    activity.CategoryAuth,
		Description: "Two-factor authentication disabled",
		IPAddress:   ip,
		UserAgent:   userAgent,
		Status:      activity.StatusWarning,
	})
	return nil
}

// ChangePassword re-hashes the password after re-proving the current one.
func (svc *Service) ChangePassword(ctx context.Context, usr User, cp ChangePassword, ip, userAgent string) error {
	if err := usr.CheckPassword(cp.OldPassword); err != nil {
		return ErrInvalidCredentials
	}
	if err := usr.SetPassword(cp.NewPassword); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err := svc.repo.UpdateUser(ctx, usr); err != nil {
		return err
	}

	svc.audit.Record(ctx, activity.Entry{
		UserID:      usr.ID,
		Action:      "PASSWORD_CHANGED",
		Category:    activity.CategoryAuth,
		Description: "User changed their password",
		IPAddress:   ip,
		UserAgent:   userAgent,
	})
	return nil
}

// MarkPaid flips the account's payment status to paid.
func (svc *Service) MarkPaid(ctx context.Context, userID string) error {
	usr, err := svc.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	usr.PaymentStatus = PaymentPaid
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryAllUsers(ctx)
}

func (svc *Service) sendWelcomeEmail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject: "Welcome to " + svc.conf.AppName,
		BodyStr: fmt.Sprintf(
			"Hi %s,\n\nYour account has been created. Log in at %s to start preparing for your CPA exams.\n",
			usr.FirstName, svc.conf.FrontendBaseURL,
		),
	})
}
