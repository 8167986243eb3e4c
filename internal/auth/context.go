package auth

import (
	"context"

	"github.com/mind-engage/coursetrack/internal/gate"
	"github.com/mind-engage/coursetrack/internal/rbac"
)

type ctxKey string

const ctxKeySub ctxKey = "sub"

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKeySub, sub)
}

func SubjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeySub).(string); ok {
		return s
	}
	return ""
}

// PrincipalFromContext is the caller as seen by the enrollment gate.
func PrincipalFromContext(ctx context.Context) gate.Principal {
	return gate.Principal{UserID: SubjectFromContext(ctx), Role: rbac.RoleFromContext(ctx)}
}
