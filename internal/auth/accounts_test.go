package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/db"
	"github.com/mind-engage/coursetrack/internal/rbac"
)

func init() { BcryptCost = bcrypt.MinCost }

func newAccounts(t *testing.T) (*Accounts, *UserStore, *Service) {
	t.Helper()
	dbh, err := db.OpenMemory(context.Background(), "auth_"+strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })
	users := NewUserStore(dbh)
	svc := NewService("test-secret", time.Hour)
	return NewAccounts(users, svc, LockoutPolicy{MaxAttempts: 3, LockFor: 30 * time.Minute}, nil), users, svc
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	acc, _, svc := newAccounts(t)

	u, tok, err := acc.Register(ctx, Registration{Name: "Ada", Email: "Ada@Example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleStudent, u.Role)
	assert.Equal(t, "ada@example.com", u.Email)
	claims, err := svc.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Sub)

	_, _, err = acc.Register(ctx, Registration{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	got, _, err := acc.Login(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.NotNil(t, got.LastLogin)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	acc, _, _ := newAccounts(t)
	cases := []Registration{
		{Name: "", Email: "a@b.co", Password: "secret1"},
		{Name: "A", Email: "not-an-email", Password: "secret1"},
		{Name: "A", Email: "a@b.co", Password: "123"},
		{Name: "A", Email: "a@b.co", Password: "secret1", Role: rbac.RoleAdmin},
	}
	for _, in := range cases {
		_, _, err := acc.Register(ctx, in)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput, "%+v", in)
	}
}

func TestLoginLockout(t *testing.T) {
	ctx := context.Background()
	acc, _, _ := newAccounts(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	acc.Now = func() time.Time { return now }

	_, _, err := acc.Register(ctx, Registration{Name: "Bo", Email: "bo@example.com", Password: "right-pw"})
	require.NoError(t, err)

	_, _, err = acc.Login(ctx, "bo@example.com", "wrong")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, _, err = acc.Login(ctx, "bo@example.com", "wrong")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, _, err = acc.Login(ctx, "bo@example.com", "wrong")
	assert.ErrorIs(t, err, apperr.ErrLocked)

	// correct password is refused while locked
	_, _, err = acc.Login(ctx, "bo@example.com", "right-pw")
	assert.ErrorIs(t, err, apperr.ErrLocked)

	now = now.Add(31 * time.Minute)
	_, _, err = acc.Login(ctx, "bo@example.com", "right-pw")
	assert.NoError(t, err)

	_, _, err = acc.Login(ctx, "nobody@example.com", "x")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	acc, _, _ := newAccounts(t)
	u, _, err := acc.Register(ctx, Registration{Name: "Cy", Email: "cy@example.com", Password: "first-pw"})
	require.NoError(t, err)

	assert.ErrorIs(t, acc.ChangePassword(ctx, u.ID, "bad", "second-pw"), apperr.ErrForbidden)
	require.NoError(t, acc.ChangePassword(ctx, u.ID, "first-pw", "second-pw"))
	_, _, err = acc.Login(ctx, "cy@example.com", "second-pw")
	assert.NoError(t, err)
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	acc, users, svc := newAccounts(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	acc.Now = func() time.Time { return now }

	u, _, err := acc.Register(ctx, Registration{Name: "Ev", Email: "ev@example.com", Password: "old-pass"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, _, _ = acc.Login(ctx, "ev@example.com", "wrong")
	}

	_, err = acc.ForgotPassword(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	tok, err := acc.ForgotPassword(ctx, " EV@example.com ")
	require.NoError(t, err)
	assert.Len(t, tok, 40)
	stored, err := users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, hashResetToken(tok), stored.ResetTokenHash)
	assert.NotEqual(t, tok, stored.ResetTokenHash)
	require.NotNil(t, stored.ResetExpire)
	assert.True(t, stored.ResetExpire.Equal(now.Add(ResetTokenTTL)))

	_, _, err = acc.ResetPassword(ctx, "not-a-token", "new-pass")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, _, err = acc.ResetPassword(ctx, tok, "short")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	got, jwtTok, err := acc.ResetPassword(ctx, tok, "new-pass")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	claims, err := svc.Parse(jwtTok)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)

	// the lock from the failed logins is cleared and the token is spent
	_, _, err = acc.Login(ctx, "ev@example.com", "new-pass")
	assert.NoError(t, err)
	_, _, err = acc.ResetPassword(ctx, tok, "other-pass")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	tok, err = acc.ForgotPassword(ctx, "ev@example.com")
	require.NoError(t, err)
	now = now.Add(ResetTokenTTL + time.Second)
	_, _, err = acc.ResetPassword(ctx, tok, "late-pass")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, _, err = acc.Login(ctx, "ev@example.com", "new-pass")
	assert.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	acc, _, _ := newAccounts(t)
	u, _, err := acc.Register(ctx, Registration{Name: "Fay", Email: "fay@example.com", Password: "fay-pass"})
	require.NoError(t, err)
	_, _, err = acc.Register(ctx, Registration{Name: "Gil", Email: "gil@example.com", Password: "gil-pass"})
	require.NoError(t, err)

	name, email := "  Fay Lee ", "Fay.Lee@Example.com"
	got, err := acc.UpdateProfile(ctx, u.ID, ProfilePatch{Name: &name, Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "Fay Lee", got.Name)
	assert.Equal(t, "fay.lee@example.com", got.Email)
	_, _, err = acc.Login(ctx, "fay.lee@example.com", "fay-pass")
	assert.NoError(t, err)

	taken := "gil@example.com"
	_, err = acc.UpdateProfile(ctx, u.ID, ProfilePatch{Email: &taken})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	blank, bad := " ", "not-an-email"
	_, err = acc.UpdateProfile(ctx, u.ID, ProfilePatch{Name: &blank})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = acc.UpdateProfile(ctx, u.ID, ProfilePatch{Email: &bad})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = acc.UpdateProfile(ctx, "missing", ProfilePatch{Name: &name})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateKeepsLastAdmin(t *testing.T) {
	ctx := context.Background()
	acc, users, _ := newAccounts(t)
	require.NoError(t, acc.Bootstrap(ctx, "root@example.com", "root-pw"))
	admins, err := acc.List(ctx, rbac.RoleAdmin, 0, 0)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	root := admins[0]

	student := rbac.RoleStudent
	_, err = acc.Update(ctx, root.ID, UserPatch{Role: &student})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	off := false
	_, err = acc.Update(ctx, root.ID, UserPatch{IsActive: &off})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	u, _, err := acc.Register(ctx, Registration{Name: "Di", Email: "di@example.com", Password: "di-pass"})
	require.NoError(t, err)
	adminRole := rbac.RoleAdmin
	_, err = acc.Update(ctx, u.ID, UserPatch{Role: &adminRole})
	require.NoError(t, err)

	_, err = acc.Update(ctx, root.ID, UserPatch{Role: &student})
	require.NoError(t, err)
	got, err := users.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleStudent, got.Role)

	bogus := "superuser"
	_, err = acc.Update(ctx, u.ID, UserPatch{Role: &bogus})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	// bootstrap is a no-op once an admin exists
	require.NoError(t, acc.Bootstrap(ctx, "other@example.com", "other-pw"))
	admins, err = acc.List(ctx, rbac.RoleAdmin, 0, 0)
	require.NoError(t, err)
	assert.Len(t, admins, 1)
}

func TestJWTMiddleware(t *testing.T) {
	ctx := context.Background()
	acc, users, svc := newAccounts(t)
	u, tok, err := acc.Register(ctx, Registration{Name: "Ed", Email: "ed@example.com", Password: "ed-pass", Role: rbac.RoleInstructor})
	require.NoError(t, err)

	var seen struct{ sub, role string }
	h := JWTMiddleware(svc, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromContext(r.Context())
		seen.sub, seen.role = p.UserID, p.Role
		w.WriteHeader(http.StatusOK)
	}))

	do := func(header string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do(""))
	assert.Equal(t, http.StatusUnauthorized, do("Bearer garbage"))
	forged, err := NewService("other-secret", time.Hour).Issue(u.ID, rbac.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer "+forged))

	assert.Equal(t, http.StatusOK, do("Bearer "+tok))
	assert.Equal(t, u.ID, seen.sub)
	assert.Equal(t, rbac.RoleInstructor, seen.role)

	// the stored role wins over a stale claim
	stale, err := svc.Issue(u.ID, rbac.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do("Bearer "+stale))
	assert.Equal(t, rbac.RoleInstructor, seen.role)

	u.IsActive = false
	require.NoError(t, users.Save(ctx, u))
	assert.Equal(t, http.StatusUnauthorized, do("Bearer "+tok))
}
