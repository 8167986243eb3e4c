package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/db"
)

type User struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Role          string     `json:"role"`
	IsActive      bool       `json:"is_active"`
	LoginAttempts int        `json:"-"`
	LockUntil     *time.Time `json:"-"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`

	// ResetTokenHash is the hex SHA-256 of an outstanding password reset
	// token; the token itself is never stored.
	ResetTokenHash string     `json:"-"`
	ResetExpire    *time.Time `json:"-"`
}

type UserStore struct{ db *sql.DB }

func NewUserStore(dbh *sql.DB) *UserStore { return &UserStore{db: dbh} }

const userCols = `id, name, email, password_hash, role, is_active, login_attempts, lock_until, last_login, created_at,
	reset_password_token, reset_password_expire`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var (
		u                 User
		lock, last, reset sql.NullInt64
		resetToken        sql.NullString
		createdAtMs       int64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive,
		&u.LoginAttempts, &lock, &last, &createdAtMs, &resetToken, &reset); err != nil {
		return User{}, err
	}
	u.ResetTokenHash = resetToken.String
	u.ResetExpire = db.TimePtr(reset)
	u.LockUntil = db.TimePtr(lock)
	u.LastLogin = db.TimePtr(last)
	u.CreatedAt = db.FromMillis(createdAtMs)
	return u, nil
}

func (s *UserStore) Create(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (`+userCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		u.ID, u.Name, strings.ToLower(u.Email), u.PasswordHash, u.Role, u.IsActive, u.LoginAttempts,
		db.NullMillis(u.LockUntil), db.NullMillis(u.LastLogin), db.Millis(u.CreatedAt),
		nullString(u.ResetTokenHash), db.NullMillis(u.ResetExpire))
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("user already exists")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) one(ctx context.Context, where string, arg string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) Get(ctx context.Context, id string) (User, error) {
	return s.one(ctx, `id=$1`, id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.one(ctx, `email=$1`, strings.ToLower(strings.TrimSpace(email)))
}

// GetByResetToken finds the user holding the hashed reset token. Expiry is
// checked by the caller.
func (s *UserStore) GetByResetToken(ctx context.Context, tokenHash string) (User, error) {
	if tokenHash == "" {
		return User{}, apperr.NotFound("user not found")
	}
	return s.one(ctx, `reset_password_token=$1`, tokenHash)
}

// Save writes every mutable column of u.
func (s *UserStore) Save(ctx context.Context, u User) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users
		SET name=$1, email=$2, password_hash=$3, role=$4, is_active=$5, login_attempts=$6, lock_until=$7, last_login=$8,
			reset_password_token=$9, reset_password_expire=$10
		WHERE id=$11`,
		u.Name, strings.ToLower(u.Email), u.PasswordHash, u.Role, u.IsActive, u.LoginAttempts,
		db.NullMillis(u.LockUntil), db.NullMillis(u.LastLogin),
		nullString(u.ResetTokenHash), db.NullMillis(u.ResetExpire), u.ID)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("email already in use")
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

func (s *UserStore) List(ctx context.Context, role string, limit, offset int) ([]User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	q := `SELECT ` + userCols + ` FROM users`
	args := []any{}
	if role != "" {
		q += ` WHERE role=$1 ORDER BY created_at LIMIT $2 OFFSET $3`
		args = append(args, role, limit, offset)
	} else {
		q += ` ORDER BY created_at LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *UserStore) CountActiveAdmins(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role=$1 AND is_active=$2`, "admin", true).Scan(&n)
	return n, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
