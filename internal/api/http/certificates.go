package http

import (
	nethttp "net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/auth"
	"github.com/mind-engage/coursetrack/internal/certificate"
)

func ListCertificatesHandler(store certificate.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		certs, err := store.ListByLearner(r.Context(), auth.SubjectFromContext(r.Context()))
		if err != nil {
			fail(w, r, err)
			return
		}
		okList(w, certs)
	}
}

// GetCertificateHandler returns a certificate to its owner or an admin.
func GetCertificateHandler(store certificate.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		c, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		p := auth.PrincipalFromContext(r.Context())
		if c.LearnerID != p.UserID && !p.IsAdmin() {
			fail(w, r, apperr.Forbidden("not authorized to access this certificate"))
			return
		}
		ok(w, nethttp.StatusOK, c)
	}
}

// VerifyCertificateHandler is public: anyone holding a certificate id can
// confirm it was issued.
func VerifyCertificateHandler(v *certificate.Verifier) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		c, err := v.Verify(r.Context(), chi.URLParam(r, "certificateID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, map[string]any{"valid": true, "certificate": c})
	}
}
