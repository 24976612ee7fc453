package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branchbase/cli-auth-server/internal/token"
)

type stubDecoder struct {
	valid map[string]*token.Claims
}

func (d *stubDecoder) Decode(raw string) (*token.Claims, error) {
	if claims, ok := d.valid[raw]; ok {
		return claims, nil
	}
	return nil, token.ErrInvalidToken
}

func TestAuthMiddleware(t *testing.T) {
	claims := &token.Claims{
		ProjectID: "proj-1",
		BranchID:  "main",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user-9",
		},
	}
	decoder := &stubDecoder{valid: map[string]*token.Claims{"good-token": claims}}
	mw := NewAuthMiddleware(decoder)

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := GetIdentity(r.Context())
		require.NotNil(t, identity)
		assert.Equal(t, "user-9", identity.UserID())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid bearer token passes identity through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing header is 401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non-bearer scheme is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("undecodable token is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer forged")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
