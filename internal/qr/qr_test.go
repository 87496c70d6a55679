package qr

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	p, err := Decode(`{"token":"tok-12345678","ref":"emp-001","email":"a@x.com","name":"Alice"}`)
	require.NoError(t, err)
	assert.Equal(t, "tok-12345678", p.Token)
	assert.Equal(t, "emp-001", p.Ref)
	assert.Equal(t, "a@x.com", p.Email)
	assert.Equal(t, "Alice", p.Name)
}

func TestDecodeBase64JSON(t *testing.T) {
	raw := base64.RawURLEncoding.EncodeToString([]byte(`{"token":"tok-abcdefgh","ref":"7"}`))
	p, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "tok-abcdefgh", p.Token)
	assert.Equal(t, "7", p.Ref)

	padded := base64.StdEncoding.EncodeToString([]byte(`{"token":"tok-abcdefgh"}`))
	p, err = Decode(padded)
	require.NoError(t, err)
	assert.Equal(t, "tok-abcdefgh", p.Token)
}

func TestDecodeURL(t *testing.T) {
	p, err := Decode("enroll://scan?token=tok-00000001&email=b%40x.com")
	require.NoError(t, err)
	assert.Equal(t, "tok-00000001", p.Token)
	assert.Equal(t, "b@x.com", p.Email)
}

func TestDecodeBareToken(t *testing.T) {
	p, err := Decode("  abcdEFGH1234  ")
	require.NoError(t, err)
	assert.Equal(t, "abcdEFGH1234", p.Token)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"short",
		"{not json",
		`{"ref":"no-token"}`,
		"https://host/scan?ref=1",
		"has spaces inside token",
	} {
		_, err := Decode(raw)
		assert.ErrorIs(t, err, ErrMalformed, "payload %q", raw)
	}
}
