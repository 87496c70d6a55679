// Package qr decodes the payload printed in enrollment QR codes.
//
// Three encodings are accepted:
//
//   - a JSON object {"token": "...", "ref": "...", "email": "...", "name": "..."}
//   - the same object base64 encoded (std or url alphabet, padded or not)
//   - a URL whose query carries token, ref, email and name
//
// A bare token string is accepted as well.
package qr

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

// ErrMalformed is returned for payloads that cannot be decoded into a token.
var ErrMalformed = errors.New("qr: malformed payload")

const maxPayloadSize = 4096

// Payload is the decoded QR content. Hints are advisory: the identity
// gateway is authoritative.
type Payload struct {
	Token string `json:"token"`
	Ref   string `json:"ref,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Decode parses raw into a Payload.
func Decode(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxPayloadSize {
		return Payload{}, ErrMalformed
	}

	switch {
	case strings.HasPrefix(raw, "{"):
		return decodeJSON([]byte(raw))
	case strings.Contains(raw, "://") || strings.HasPrefix(raw, "?"):
		return decodeURL(raw)
	}

	if data, ok := decodeBase64(raw); ok && len(data) > 0 && data[0] == '{' {
		return decodeJSON(data)
	}

	if isBareToken(raw) {
		return Payload{Token: raw}, nil
	}
	return Payload{}, ErrMalformed
}

func decodeJSON(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, ErrMalformed
	}
	return p.validate()
}

func decodeURL(raw string) (Payload, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Payload{}, ErrMalformed
	}
	q := u.Query()
	p := Payload{
		Token: q.Get("token"),
		Ref:   q.Get("ref"),
		Email: q.Get("email"),
		Name:  q.Get("name"),
	}
	return p.validate()
}

func decodeBase64(raw string) ([]byte, bool) {
	encodings := []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	}
	for _, enc := range encodings {
		if data, err := enc.DecodeString(raw); err == nil {
			return data, true
		}
	}
	return nil, false
}

func (p Payload) validate() (Payload, error) {
	p.Token = strings.TrimSpace(p.Token)
	p.Ref = strings.TrimSpace(p.Ref)
	p.Email = strings.TrimSpace(p.Email)
	p.Name = strings.TrimSpace(p.Name)
	if !isBareToken(p.Token) {
		return Payload{}, ErrMalformed
	}
	return p, nil
}

func isBareToken(s string) bool {
	if len(s) < 8 || len(s) > 512 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == '~' || r == '=' || r == '+' || r == '/':
		default:
			return false
		}
	}
	return true
}
