package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/branchbase/cli-auth-server/internal/audit"
	apperrors "github.com/branchbase/cli-auth-server/internal/errors"
	"github.com/branchbase/cli-auth-server/internal/httputil"
	"github.com/branchbase/cli-auth-server/internal/service"
)

// KeyRateLimitMiddleware bounds request rates per publishable client key.
// Polling is the hot path: a misbehaving CLI that ignores the polling
// interval gets throttled here instead of hammering the store.
type KeyRateLimitMiddleware struct {
	limiter *service.RateLimiter
	limit   int
	window  time.Duration
	prefix  string
}

func NewKeyRateLimitMiddleware(limiter *service.RateLimiter, limit int, window time.Duration, prefix string) *KeyRateLimitMiddleware {
	return &KeyRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
	}
}

func (m *KeyRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck := GetClientKey(r.Context())
		if ck == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("pck:%s:%s", m.prefix, ck.ID)
		allowed, resetAt := m.limiter.CheckLimit(r.Context(), key, m.limit, m.window)

		if !allowed {
			audit.LogFromRequest(r, audit.Event{
				Type:      audit.EventRateLimitExceed,
				ProjectID: ck.ProjectID,
				Details:   map[string]interface{}{"scope": m.prefix},
			})
			secondsLeft := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secondsLeft))
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
