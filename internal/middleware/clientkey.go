package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/branchbase/cli-auth-server/internal/audit"
	apperrors "github.com/branchbase/cli-auth-server/internal/errors"
	"github.com/branchbase/cli-auth-server/internal/httputil"
	"github.com/branchbase/cli-auth-server/internal/model"
	"github.com/branchbase/cli-auth-server/internal/repository"
	"github.com/branchbase/cli-auth-server/internal/util"
)

type contextKey string

const ClientKeyContextKey contextKey = "clientKey"

// ClientKeyHeader carries the publishable client key on public entry points.
const ClientKeyHeader = "X-Publishable-Client-Key"

// GetClientKey returns the resolved publishable client key, or nil when the
// request did not pass through the client key middleware.
func GetClientKey(ctx context.Context) *model.PublishableClientKey {
	if ck, ok := ctx.Value(ClientKeyContextKey).(*model.PublishableClientKey); ok {
		return ck
	}
	return nil
}

// GetTenancy returns the tenancy scope resolved from the client key.
func GetTenancy(ctx context.Context) (model.Tenancy, bool) {
	if ck := GetClientKey(ctx); ck != nil {
		return ck.Tenancy(), true
	}
	return model.Tenancy{}, false
}

// ClientKeyMiddleware gates the public device-session entry points: a caller
// must present a valid, unrevoked publishable key before it may create or
// poll sessions. This blocks session creation and enumeration by parties
// that do not control a client identity for the project, and it is how the
// session's tenancy scope is resolved at creation time.
type ClientKeyMiddleware struct {
	keyRepo repository.PublishableClientKeyRepository
}

func NewClientKeyMiddleware(keyRepo repository.PublishableClientKeyRepository) *ClientKeyMiddleware {
	return &ClientKeyMiddleware{keyRepo: keyRepo}
}

func (m *ClientKeyMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractClientKey(r)
		if key == "" {
			httputil.WriteError(w, apperrors.MissingRequired("Publishable client key"))
			return
		}

		ck, err := m.keyRepo.FindByKey(r.Context(), key)
		if err != nil {
			log.Error().Err(err).Msg("client key middleware: database error")
			httputil.WriteError(w, apperrors.Database(err))
			return
		}

		if ck == nil || ck.Revoked() {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventInvalidClientKey,
				Details: map[string]interface{}{"key": util.MaskCode(key)},
			})
			httputil.WriteError(w, apperrors.InvalidClientKey())
			return
		}

		ctx := context.WithValue(r.Context(), ClientKeyContextKey, ck)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractClientKey(r *http.Request) string {
	if key := r.Header.Get(ClientKeyHeader); key != "" {
		return key
	}
	return r.URL.Query().Get("publishableClientKey")
}
