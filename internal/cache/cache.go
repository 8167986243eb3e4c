// Package cache is a small byte cache used for read-mostly lookups such as
// public certificate verification.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get reports a miss with ok=false and a nil error.
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
