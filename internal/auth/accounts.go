package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/logger"
	"github.com/mind-engage/coursetrack/internal/rbac"
)

// Accounts handles registration, login and account administration.
type Accounts struct {
	users  *UserStore
	tokens *Service
	policy LockoutPolicy
	log    *logger.Logger

	Now func() time.Time
}

func NewAccounts(users *UserStore, tokens *Service, policy LockoutPolicy, log *logger.Logger) *Accounts {
	if log == nil {
		log = logger.Nop()
	}
	return &Accounts{users: users, tokens: tokens, policy: policy, log: log.With("service", "Accounts"), Now: time.Now}
}

type Registration struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// Register creates a student or instructor account and returns a token.
func (a *Accounts) Register(ctx context.Context, in Registration) (User, string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 50 {
		return User{}, "", apperr.InvalidInput("name is required and must be at most 50 characters")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, "", apperr.InvalidInput("please add a valid email")
	}
	role := in.Role
	if role == "" {
		role = rbac.RoleStudent
	}
	if role != rbac.RoleStudent && role != rbac.RoleInstructor {
		return User{}, "", apperr.InvalidInput("role must be student or instructor")
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, "", err
	}
	u := User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    a.Now().UTC(),
	}
	if err := a.users.Create(ctx, u); err != nil {
		return User{}, "", err
	}
	tok, err := a.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return User{}, "", err
	}
	a.log.Info("user registered", "user_id", u.ID, "role", u.Role)
	return u, tok, nil
}

// Login checks credentials under the lockout policy.
func (a *Accounts) Login(ctx context.Context, email, password string) (User, string, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return User{}, "", apperr.InvalidInput("please provide an email and password")
	}
	u, err := a.users.GetByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return User{}, "", apperr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return User{}, "", err
	}
	now := a.Now().UTC()
	if u.IsLocked(now) {
		return User{}, "", apperr.Locked("account is temporarily locked, try again later")
	}
	if !u.IsActive {
		return User{}, "", apperr.Unauthorized("account has been deactivated")
	}

	ok := CheckPassword(u.PasswordHash, password)
	u = Attempt(u, ok, now, a.policy)
	if err := a.users.Save(ctx, u); err != nil {
		return User{}, "", err
	}
	if !ok {
		if u.IsLocked(now) {
			a.log.Warn("account locked", "user_id", u.ID)
			return User{}, "", apperr.Locked("too many failed attempts, account locked")
		}
		return User{}, "", apperr.Unauthorized("invalid credentials")
	}
	tok, err := a.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return User{}, "", err
	}
	return u, tok, nil
}

func (a *Accounts) Me(ctx context.Context, id string) (User, error) {
	return a.users.Get(ctx, id)
}

func (a *Accounts) ChangePassword(ctx context.Context, id, oldPw, newPw string) error {
	u, err := a.users.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CheckPassword(u.PasswordHash, oldPw) {
		return apperr.Forbidden("incorrect old password")
	}
	hash, err := HashPassword(newPw)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return a.users.Save(ctx, u)
}

// ResetTokenTTL bounds how long a forgot-password token stays usable.
const ResetTokenTTL = 10 * time.Minute

func hashResetToken(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}

// ForgotPassword issues a reset token for the account and returns it in the
// clear. Only its SHA-256 is stored. Delivery is up to the caller.
func (a *Accounts) ForgotPassword(ctx context.Context, email string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", apperr.InvalidInput("please provide an email")
	}
	u, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	tok := hex.EncodeToString(buf)
	exp := a.Now().UTC().Add(ResetTokenTTL)
	u.ResetTokenHash = hashResetToken(tok)
	u.ResetExpire = &exp
	if err := a.users.Save(ctx, u); err != nil {
		return "", err
	}
	a.log.Info("password reset requested", "user_id", u.ID)
	return tok, nil
}

// ResetPassword consumes a reset token, sets the new password and signs the
// user in. Unknown and expired tokens are rejected alike.
func (a *Accounts) ResetPassword(ctx context.Context, token, newPw string) (User, string, error) {
	invalid := apperr.InvalidInput("invalid or expired reset token")
	u, err := a.users.GetByResetToken(ctx, hashResetToken(strings.TrimSpace(token)))
	if errors.Is(err, apperr.ErrNotFound) {
		return User{}, "", invalid
	}
	if err != nil {
		return User{}, "", err
	}
	if u.ResetExpire == nil || !a.Now().Before(*u.ResetExpire) {
		return User{}, "", invalid
	}
	if !u.IsActive {
		return User{}, "", apperr.Unauthorized("account has been deactivated")
	}
	hash, err := HashPassword(newPw)
	if err != nil {
		return User{}, "", err
	}
	u.PasswordHash = hash
	u.ResetTokenHash = ""
	u.ResetExpire = nil
	u.LoginAttempts = 0
	u.LockUntil = nil
	if err := a.users.Save(ctx, u); err != nil {
		return User{}, "", err
	}
	tok, err := a.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return User{}, "", err
	}
	a.log.Info("password reset", "user_id", u.ID)
	return u, tok, nil
}

type ProfilePatch struct {
	Name  *string
	Email *string
}

// UpdateProfile changes the caller's own name or email.
func (a *Accounts) UpdateProfile(ctx context.Context, id string, p ProfilePatch) (User, error) {
	u, err := a.users.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" || len(name) > 50 {
			return User{}, apperr.InvalidInput("name is required and must be at most 50 characters")
		}
		u.Name = name
	}
	if p.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*p.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return User{}, apperr.InvalidInput("please add a valid email")
		}
		u.Email = email
	}
	if err := a.users.Save(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (a *Accounts) List(ctx context.Context, role string, limit, offset int) ([]User, error) {
	return a.users.List(ctx, role, limit, offset)
}

type UserPatch struct {
	Role     *string
	IsActive *bool
}

// Update changes role or active flag. The last active admin cannot be
// demoted or deactivated.
func (a *Accounts) Update(ctx context.Context, id string, p UserPatch) (User, error) {
	u, err := a.users.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	next := u
	if p.Role != nil {
		if !rbac.ValidRole(*p.Role) {
			return User{}, apperr.InvalidInput("unknown role %q", *p.Role)
		}
		next.Role = *p.Role
	}
	if p.IsActive != nil {
		next.IsActive = *p.IsActive
	}
	losesAdmin := u.Role == rbac.RoleAdmin && u.IsActive && (next.Role != rbac.RoleAdmin || !next.IsActive)
	if losesAdmin {
		n, err := a.users.CountActiveAdmins(ctx)
		if err != nil {
			return User{}, err
		}
		if n <= 1 {
			return User{}, apperr.Conflict("cannot demote or deactivate the last admin")
		}
	}
	if err := a.users.Save(ctx, next); err != nil {
		return User{}, err
	}
	a.log.Info("user updated", "user_id", id, "role", next.Role, "is_active", next.IsActive)
	return next, nil
}

// Bootstrap creates an admin account when none exists; the gateway calls it
// at startup with operator-provided credentials.
func (a *Accounts) Bootstrap(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	n, err := a.users.CountActiveAdmins(ctx)
	if err != nil || n > 0 {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	err = a.users.Create(ctx, User{
		ID:           uuid.NewString(),
		Name:         "Administrator",
		Email:        strings.ToLower(email),
		PasswordHash: hash,
		Role:         rbac.RoleAdmin,
		IsActive:     true,
		CreatedAt:    a.Now().UTC(),
	})
	if err == nil {
		a.log.Info("admin account bootstrapped", "email", email)
	}
	return err
}
