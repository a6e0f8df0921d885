package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCryptorRoundTrip(t *testing.T) {
	c, err := newCryptor("test passphrase")
	require.NoError(t, err)

	plaintext := []byte(`{"id":"u1","email":"a@x.com"}`)
	sealed, err := c.encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := c.decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestCryptorNoncesDiffer(t *testing.T) {
	c, err := newCryptor("test passphrase")
	require.NoError(t, err)

	a, err := c.encrypt([]byte("same payload"))
	require.NoError(t, err)
	b, err := c.encrypt([]byte("same payload"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestCryptorWrongKey(t *testing.T) {
	c1, err := newCryptor("key one")
	require.NoError(t, err)
	c2, err := newCryptor("key two")
	require.NoError(t, err)

	sealed, err := c1.encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = c2.decrypt(sealed)
	assert.Error(t, err)
}

func TestCryptorCorruptedCiphertext(t *testing.T) {
	c, err := newCryptor("test passphrase")
	require.NoError(t, err)

	sealed, err := c.encrypt([]byte("secret"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = c.decrypt(sealed)
	assert.Error(t, err)
}

func TestCryptorTruncatedPayload(t *testing.T) {
	c, err := newCryptor("test passphrase")
	require.NoError(t, err)

	_, err = c.decrypt([]byte("short"))
	assert.Error(t, err)
}

func TestCryptorDeterministicKeyDerivation(t *testing.T) {
	// Two instances with the same passphrase must interoperate, or
	// records would be unreadable after a restart
	c1, err := newCryptor("shared passphrase")
	require.NoError(t, err)
	c2, err := newCryptor("shared passphrase")
	require.NoError(t, err)

	sealed, err := c1.encrypt([]byte("persisted record"))
	require.NoError(t, err)

	opened, err := c2.decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted record"), opened)
}
