package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHexKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestNewCipher(t *testing.T) {
	t.Run("empty key returns nil cipher", func(t *testing.T) {
		c, err := NewCipher("")
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("rejects non-hex key", func(t *testing.T) {
		_, err := NewCipher("not-hex")
		assert.Error(t, err)
	})

	t.Run("rejects short key", func(t *testing.T) {
		_, err := NewCipher("0001020304")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "32 bytes")
	})
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher(testHexKey)
	require.NoError(t, err)

	t.Run("decrypt recovers plaintext", func(t *testing.T) {
		sealed, err := c.Encrypt("refresh-token-value")
		require.NoError(t, err)
		assert.NotEqual(t, "refresh-token-value", sealed)

		plain, err := c.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, "refresh-token-value", plain)
	})

	t.Run("encryption is randomized", func(t *testing.T) {
		a, err := c.Encrypt("same input")
		require.NoError(t, err)
		b, err := c.Encrypt("same input")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("tampered ciphertext fails", func(t *testing.T) {
		sealed, err := c.Encrypt("secret")
		require.NoError(t, err)

		tampered := strings.Map(func(r rune) rune {
			if r == 'A' {
				return 'B'
			}
			return 'A'
		}, sealed[:1]) + sealed[1:]

		_, err = c.Decrypt(tampered)
		assert.Error(t, err)
	})

	t.Run("rejects truncated ciphertext", func(t *testing.T) {
		_, err := c.Decrypt("AAAA")
		assert.Error(t, err)
	})
}

func TestNilCipherPassthrough(t *testing.T) {
	var c *Cipher

	sealed, err := c.Encrypt("value")
	require.NoError(t, err)
	assert.Equal(t, "value", sealed)

	plain, err := c.Decrypt("value")
	require.NoError(t, err)
	assert.Equal(t, "value", plain)
}
