package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeKVs(t *testing.T) {
	got := sanitizeKVs([]interface{}{"user_id", "u1", "password", "hunter2", "Access_Token", "abc", "dangling"})
	assert.Equal(t, []interface{}{"user_id", "u1", "password", "[REDACTED]", "Access_Token", "[REDACTED]", "dangling"}, got)
}

func TestLoggerRedactsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("service", "test").Info("login", "email", "a@b.c", "password", "secret")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "test", fields["service"])
		assert.Equal(t, "a@b.c", fields["email"])
		assert.Equal(t, "[REDACTED]", fields["password"])
	}
}
