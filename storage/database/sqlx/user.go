package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/makena/hesabu/core/user"
)

type userRow struct {
	ID                string         `db:"id"`
	Email             string         `db:"email"`
	FirstName         string         `db:"first_name"`
	LastName          string         `db:"last_name"`
	Phone             string         `db:"phone"`
	Role              string         `db:"role"`
	Permissions       pq.StringArray `db:"permissions"`
	IsActive          bool           `db:"is_active"`
	IsEmailVerified   bool           `db:"is_email_verified"`
	PaymentStatus     string         `db:"payment_status"`
	PasswordHash      string         `db:"password_hash"`
	PasswordChangedAt sql.NullTime   `db:"password_changed_at"`
	TwoFactorEnabled  bool           `db:"two_factor_enabled"`
	TwoFactorSecret   string         `db:"two_factor_secret"`
	RefreshToken      string         `db:"refresh_token"`
	LoginHistory      []byte         `db:"login_history"`
	LastLogin         sql.NullTime   `db:"last_login"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (row userRow) toUser() (user.User, error) {
	usr := user.User{
		ID:               row.ID,
		Email:            row.Email,
		FirstName:        row.FirstName,
		LastName:         row.LastName,
		Phone:            row.Phone,
		Role:             user.Role(row.Role),
		Permissions:      row.Permissions,
		IsActive:         row.IsActive,
		IsEmailVerified:  row.IsEmailVerified,
		PaymentStatus:    user.PaymentStatus(row.PaymentStatus),
		PasswordHash:     row.PasswordHash,
		TwoFactorEnabled: row.TwoFactorEnabled,
		TwoFactorSecret:  row.TwoFactorSecret,
		RefreshToken:     row.RefreshToken,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
	if row.PasswordChangedAt.Valid {
		usr.PasswordChangedAt = row.PasswordChangedAt.Time
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time
	}
	if len(row.LoginHistory) > 0 {
		if err := json.Unmarshal(row.LoginHistory, &usr.LoginHistory); err != nil {
			return user.User{}, errors.Wrap(err, "decoding login history")
		}
	}
	return usr, nil
}

func newUserRow(usr user.User) (userRow, error) {
	history := []byte("[]")
	if usr.LoginHistory != nil {
		var err error
		if history, err = json.Marshal(usr.LoginHistory); err != nil {
			return userRow{}, errors.Wrap(err, "encoding login history")
		}
	}
	perms := usr.Permissions
	if perms == nil {
		perms = []string{}
	}
	return userRow{
		ID:                usr.ID,
		Email:             usr.Email,
		FirstName:         usr.FirstName,
		LastName:          usr.LastName,
		Phone:             usr.Phone,
		Role:              string(usr.Role),
		Permissions:       perms,
		IsActive:          usr.IsActive,
		IsEmailVerified:   usr.IsEmailVerified,
		PaymentStatus:     string(usr.PaymentStatus),
		PasswordHash:      usr.PasswordHash,
		PasswordChangedAt: sql.NullTime{Time: usr.PasswordChangedAt, Valid: !usr.PasswordChangedAt.IsZero()},
		TwoFactorEnabled:  usr.TwoFactorEnabled,
		TwoFactorSecret:   usr.TwoFactorSecret,
		RefreshToken:      usr.RefreshToken,
		LoginHistory:      history,
		LastLogin:         sql.NullTime{Time: usr.LastLogin, Valid: !usr.LastLogin.IsZero()},
		CreatedAt:         usr.CreatedAt,
		UpdatedAt:         usr.UpdatedAt,
	}, nil
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	exclIDs := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		exclIDs = append(exclIDs, usr.ID)
	}

	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1) AND id <> ALL($2))`
	if err := repo.db.GetContext(ctx, &exists, q, email, pq.Array(exclIDs)); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	row, err := newUserRow(usr)
	if err != nil {
		return user.User{}, err
	}

	q := `
	INSERT INTO users (
		id, email, first_name, last_name, phone, role, permissions, is_active,
		is_email_verified, payment_status, password_hash, password_changed_at,
		two_factor_enabled, two_factor_secret, refresh_token, login_history,
		last_login, created_at, updated_at
	) VALUES (
		:id, :email, :first_name, :last_name, :phone, :role, :permissions, :is_active,
		:is_email_verified, :payment_status, :password_hash, :password_changed_at,
		:two_factor_enabled, :two_factor_secret, :refresh_token, :login_history,
		:last_login, :created_at, :updated_at
	)`
	if _, err = repo.db.NamedExecContext(ctx, q, row); err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var rows []userRow
	q := `SELECT * FROM users ORDER BY created_at`
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		usr, err := row.toUser()
		if err != nil {
			return nil, err
		}
		users = append(users, usr)
	}
	return users, nil
}

func (repo *userRepository) getUser(ctx context.Context, q string, args ...interface{}) (user.User, error) {
	var row userRow
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "querying user")
	}
	return row.toUser()
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getUser(ctx, `SELECT * FROM users WHERE id = $1`, id)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, `SELECT * FROM users WHERE LOWER(email) = LOWER($1)`, email)
}

func (repo *userRepository) GetUserByRole(ctx context.Context, role user.Role) (user.User, error) {
	return repo.getUser(ctx, `SELECT * FROM users WHERE role = $1 ORDER BY created_at LIMIT 1`, string(role))
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	row, err := newUserRow(usr)
	if err != nil {
		return user.User{}, err
	}

	q := `
	UPDATE users SET
		email = :email,
		first_name = :first_name,
		last_name = :last_name,
		phone = :phone,
		role = :role,
		permissions = :permissions,
		is_active = :is_active,
		is_email_verified = :is_email_verified,
		payment_status = :payment_status,
		password_hash = :password_hash,
		password_changed_at = :password_changed_at,
		two_factor_enabled = :two_factor_enabled,
		two_factor_secret = :two_factor_secret,
		refresh_token = :refresh_token,
		login_history = :login_history,
		last_login = :last_login,
		updated_at = :updated_at
	WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}
