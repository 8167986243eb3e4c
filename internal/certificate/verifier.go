package certificate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mind-engage/coursetrack/internal/cache"
	"github.com/mind-engage/coursetrack/internal/logger"
)

// Verifier answers public lookups by certificate id. Certificates are never
// mutated, so cached entries cannot go stale; only hits are cached.
type Verifier struct {
	store Store
	cache cache.Cache
	ttl   time.Duration
	log   *logger.Logger
}

func NewVerifier(store Store, c cache.Cache, ttl time.Duration, log *logger.Logger) *Verifier {
	if c == nil {
		c = cache.Noop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Verifier{store: store, cache: c, ttl: ttl, log: log.With("service", "CertificateVerifier")}
}

func cacheKey(certificateID string) string { return "cert:" + certificateID }

func (v *Verifier) Verify(ctx context.Context, certificateID string) (Certificate, error) {
	key := cacheKey(certificateID)
	if raw, ok, err := v.cache.Get(ctx, key); err != nil {
		v.log.Warn("certificate cache get failed", "error", err)
	} else if ok {
		var c Certificate
		if err := json.Unmarshal(raw, &c); err == nil {
			return c, nil
		}
		v.log.Warn("certificate cache entry unreadable", "key", key)
	}

	c, err := v.store.GetByCertificateID(ctx, certificateID)
	if err != nil {
		return Certificate{}, err
	}
	if raw, err := json.Marshal(c); err == nil {
		if err := v.cache.Set(ctx, key, raw, v.ttl); err != nil {
			v.log.Warn("certificate cache set failed", "error", err)
		}
	}
	return c, nil
}
