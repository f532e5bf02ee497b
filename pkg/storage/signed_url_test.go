package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLSignerRoundTrip(t *testing.T) {
	signer := NewURLSigner("secret", time.Minute)

	token, expiresAt, err := signer.Generate("acme/doc-1/report.pdf", 0)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	key, parsedExp, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "acme/doc-1/report.pdf", key)
	assert.WithinDuration(t, expiresAt, parsedExp, time.Second)
}

func TestURLSignerRejectsTampering(t *testing.T) {
	signer := NewURLSigner("secret", time.Minute)

	token, _, err := signer.Generate("acme/doc-1/report.pdf", 0)
	require.NoError(t, err)

	_, _, err = signer.Parse(token + "x")
	assert.Error(t, err)

	other := NewURLSigner("different", time.Minute)
	_, _, err = other.Parse(token)
	assert.Error(t, err)
}

func TestURLSignerRejectsExpired(t *testing.T) {
	signer := NewURLSigner("secret", time.Minute)

	token, _, err := signer.Generate("key", -time.Minute)
	require.NoError(t, err)

	_, _, err = signer.Parse(token)
	assert.Error(t, err)
}

func TestURLSignerRequiresKeyAndSecret(t *testing.T) {
	signer := NewURLSigner("secret", time.Minute)
	_, _, err := signer.Generate("", 0)
	assert.Error(t, err)

	empty := NewURLSigner("", time.Minute)
	_, _, err = empty.Generate("key", 0)
	assert.Error(t, err)
}
