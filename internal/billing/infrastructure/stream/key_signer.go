// Package stream issues playback credentials for Cloudflare Stream videos.
package stream

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/reformer/internal/billing/application"
	"github.com/golang-jwt/jwt/v5"
)

// KeySigner mints signed playback tokens locally with a Stream signing key.
type KeySigner struct {
	keyID string
	key   *rsa.PrivateKey
	now   func() time.Time
}

var _ application.PlaybackSigner = (*KeySigner)(nil)

// NewKeySigner parses a base64-encoded PEM RSA key as issued by the Stream
// keys API. An empty key id or key yields a disabled signer.
func NewKeySigner(keyID, encodedPEM string) (*KeySigner, error) {
	s := &KeySigner{keyID: keyID, now: time.Now}
	if keyID == "" || encodedPEM == "" {
		return s, nil
	}
	pemBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encodedPEM))
	if err != nil {
		return nil, fmt.Errorf("decode stream signing key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse stream signing key: %w", err)
	}
	s.key = key
	return s, nil
}

func (s *KeySigner) Name() string  { return "signing-key" }
func (s *KeySigner) Enabled() bool { return s != nil && s.key != nil }

// Sign returns an RS256 token whose subject is the playback id.
func (s *KeySigner) Sign(_ context.Context, playbackID string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("signing key not configured")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": playbackID,
		"kid": s.keyID,
		"nbf": now.Add(-time.Minute).Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	token.Header["kid"] = s.keyID
	return token.SignedString(s.key)
}
