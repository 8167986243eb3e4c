package http

import (
	nethttp "net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/coursetrack/internal/auth"
)

type session struct {
	Token string    `json:"token"`
	User  auth.User `json:"user"`
}

func RegisterHandler(acc *auth.Accounts) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req struct {
			Name     string `json:"name" validate:"notblank,max=50"`
			Email    string `json:"email" validate:"required,email"`
			Password string `json:"password" validate:"required,min=6"`
			Role     string `json:"role" validate:"omitempty,oneof=student instructor"`
		}
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		u, tok, err := acc.Register(r.Context(), auth.Registration{
			Name: req.Name, Email: req.Email, Password: req.Password, Role: req.Role,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusCreated, session{Token: tok, User: u})
	}
}

func LoginHandler(acc *auth.Accounts) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req struct {
			Email    string `json:"email" validate:"required"`
			Password string `json:"password" validate:"required"`
		}
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		u, tok, err := acc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, session{Token: tok, User: u})
	}
}

func MeHandler(acc *auth.Accounts) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		u, err := acc.Me(r.Context(), auth.SubjectFromContext(r.Context()))
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, u)
	}
}

func ChangePasswordHandler(acc *auth.Accounts) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req struct {
			CurrentPassword string `json:"current_password" validate:"required"`
			NewPassword     string `json:"new_password" validate:"required,min=6"`
		}
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		if err := acc.ChangePassword(r.Context(), auth.SubjectFromContext(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
			fail(w, r, err)
			return
		}
		okMessage(w, "password updated")
	}
}

// ForgotPasswordHandler returns the reset token in the response body; no
// mail is sent.
func ForgotPasswordHandler(acc *auth.Accounts) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req struct {
			Email string `json:"email" validate:"required,email"`
		}
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		tok, err := acc.ForgotPassword(r.Context(), req.Email)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, map[string]string{"reset_token": tok})
	}
}

func ResetPasswordHandler(acc *auth.Accounts) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req struct {
			Password string `json:"password" validate:"required,min=6"`
		}
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		u, tok, err := acc.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, session{Token: tok, User: u})
	}
}

func UpdateProfileHandler(acc *auth.Accounts) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req struct {
			Name  *string `json:"name" validate:"omitempty,notblank,max=50"`
			Email *string `json:"email" validate:"omitempty,email"`
		}
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		u, err := acc.UpdateProfile(r.Context(), auth.SubjectFromContext(r.Context()), auth.ProfilePatch{Name: req.Name, Email: req.Email})
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, u)
	}
}

func ListUsersHandler(acc *auth.Accounts) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		users, err := acc.List(r.Context(), r.URL.Query().Get("role"), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
		if err != nil {
			fail(w, r, err)
			return
		}
		okList(w, users)
	}
}

func UpdateUserHandler(acc *auth.Accounts) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req struct {
			Role     *string `json:"role" validate:"omitempty,role"`
			IsActive *bool   `json:"is_active"`
		}
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		u, err := acc.Update(r.Context(), chi.URLParam(r, "userID"), auth.UserPatch{Role: req.Role, IsActive: req.IsActive})
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, u)
	}
}
