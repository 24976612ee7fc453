package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branchbase/cli-auth-server/internal/model"
)

type stubKeyRepo struct {
	keys map[string]*model.PublishableClientKey
	err  error
}

func (r *stubKeyRepo) FindByKey(ctx context.Context, key string) (*model.PublishableClientKey, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.keys[key], nil
}

func (r *stubKeyRepo) Create(ctx context.Context, params model.CreatePublishableClientKeyParams) (*model.PublishableClientKey, error) {
	return nil, nil
}

func (r *stubKeyRepo) Revoke(ctx context.Context, id string) error {
	return nil
}

func (r *stubKeyRepo) DeleteRevoked(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func clientKeyTestHandler(t *testing.T, repo *stubKeyRepo) (http.Handler, *model.Tenancy) {
	t.Helper()
	var seen model.Tenancy
	mw := NewClientKeyMiddleware(repo)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenancy, ok := GetTenancy(r.Context())
		require.True(t, ok)
		seen = tenancy
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &seen
}

func TestClientKeyMiddleware(t *testing.T) {
	validKey := &model.PublishableClientKey{
		ID:        "pck-1",
		Key:       "pck_valid",
		ProjectID: "proj-1",
		BranchID:  "main",
	}

	t.Run("valid header key resolves tenancy", func(t *testing.T) {
		repo := &stubKeyRepo{keys: map[string]*model.PublishableClientKey{"pck_valid": validKey}}
		handler, seen := clientKeyTestHandler(t, repo)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(ClientKeyHeader, "pck_valid")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, model.Tenancy{ProjectID: "proj-1", BranchID: "main"}, *seen)
	})

	t.Run("query parameter works for browser redirects", func(t *testing.T) {
		repo := &stubKeyRepo{keys: map[string]*model.PublishableClientKey{"pck_valid": validKey}}
		handler, _ := clientKeyTestHandler(t, repo)

		req := httptest.NewRequest(http.MethodGet, "/?publishableClientKey=pck_valid", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing key is 400", func(t *testing.T) {
		handler, _ := clientKeyTestHandler(t, &stubKeyRepo{})

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown key is 401", func(t *testing.T) {
		handler, _ := clientKeyTestHandler(t, &stubKeyRepo{})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(ClientKeyHeader, "pck_unknown")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("revoked key is 401", func(t *testing.T) {
		revokedAt := time.Now()
		revoked := &model.PublishableClientKey{
			ID:        "pck-2",
			Key:       "pck_revoked",
			ProjectID: "proj-1",
			BranchID:  "main",
			RevokedAt: &revokedAt,
		}
		repo := &stubKeyRepo{keys: map[string]*model.PublishableClientKey{"pck_revoked": revoked}}
		handler, _ := clientKeyTestHandler(t, repo)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(ClientKeyHeader, "pck_revoked")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("storage failure is 500", func(t *testing.T) {
		handler, _ := clientKeyTestHandler(t, &stubKeyRepo{err: errors.New("connection refused")})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(ClientKeyHeader, "pck_valid")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
