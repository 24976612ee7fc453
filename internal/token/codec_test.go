package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branchbase/cli-auth-server/internal/model"
)

func testCodec() *Codec {
	return NewCodec(Config{
		Issuer:     "cli-auth",
		Audience:   "test-clients",
		AccessTTL:  15 * time.Minute,
		SigningKey: []byte("test-signing-secret"),
	})
}

func TestCodecRoundTrip(t *testing.T) {
	codec := testCodec()
	tenancy := model.Tenancy{ProjectID: "proj-1", BranchID: "main"}

	raw, err := codec.Issue("user-9", tenancy)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-9", claims.UserID())
	assert.Equal(t, tenancy, claims.Tenancy())
}

func TestCodecDecode(t *testing.T) {
	codec := testCodec()

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := codec.Decode("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects token signed with a different secret", func(t *testing.T) {
		other := NewCodec(Config{
			Issuer:     "cli-auth",
			Audience:   "test-clients",
			AccessTTL:  15 * time.Minute,
			SigningKey: []byte("some-other-secret"),
		})

		raw, err := other.Issue("user-9", model.Tenancy{ProjectID: "proj-1", BranchID: "main"})
		require.NoError(t, err)

		_, err = codec.Decode(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		issuedAt := time.Now().Add(-time.Hour)
		issuer := testCodec()
		issuer.now = func() time.Time { return issuedAt }

		raw, err := issuer.Issue("user-9", model.Tenancy{ProjectID: "proj-1", BranchID: "main"})
		require.NoError(t, err)

		_, err = codec.Decode(raw)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("rejects wrong issuer", func(t *testing.T) {
		other := NewCodec(Config{
			Issuer:     "someone-else",
			Audience:   "test-clients",
			AccessTTL:  15 * time.Minute,
			SigningKey: []byte("test-signing-secret"),
		})

		raw, err := other.Issue("user-9", model.Tenancy{ProjectID: "proj-1", BranchID: "main"})
		require.NoError(t, err)

		_, err = codec.Decode(raw)
		assert.Error(t, err)
	})

	t.Run("rejects token without tenancy claims", func(t *testing.T) {
		now := time.Now()
		bare := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Issuer:    "cli-auth",
			Audience:  jwt.ClaimStrings{"test-clients"},
			Subject:   "user-9",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		})
		raw, err := bare.SignedString([]byte("test-signing-secret"))
		require.NoError(t, err)

		_, err = codec.Decode(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects unsigned token", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"sub": "user-9", "projectId": "proj-1", "branchId": "main",
			"iss": "cli-auth", "aud": "test-clients",
		})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = codec.Decode(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
