// Package signing implements the HLS public URL signature scheme from
// spec §4.4: expires=<unix seconds, TTL in the future>,
// sig=hex(HMAC-SHA256("<camera_id>:<expires>", secret)). Validation
// happens at an external edge component (spec §4.4); this package only
// produces signatures, plus a Verify used by tests.
//
// The now() dependency is injectable (Design Notes open question "URL
// signing with ambient timestamp") so expiry-crossing behavior is
// deterministic to test.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Clock returns the current time; production code uses time.Now,
// tests substitute a fixed or advancing clock.
type Clock func() time.Time

type Signer struct {
	Secret string
	TTL    time.Duration
	Now    Clock
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{Secret: secret, TTL: ttl, Now: time.Now}
}

func (s *Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Sign returns the expires timestamp and hex signature for cameraID,
// with expiry TTL from now.
func (s *Signer) Sign(cameraID string) (expires int64, sig string) {
	expires = s.now().Add(s.TTL).Unix()
	return expires, signPayload(cameraID, expires, s.Secret)
}

// SignedURL appends ?expires=...&sig=... to base (the camera's
// playlist.m3u8 public URL).
func (s *Signer) SignedURL(base, cameraID string) string {
	expires, sig := s.Sign(cameraID)
	sep := "?"
	if containsQuery(base) {
		sep = "&"
	}
	return fmt.Sprintf("%s%sexpires=%d&sig=%s", base, sep, expires, sig)
}

func containsQuery(url string) bool {
	for i := 0; i < len(url); i++ {
		if url[i] == '?' {
			return true
		}
	}
	return false
}

func signPayload(cameraID string, expires int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%s:%d", cameraID, expires)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is the correct signature for cameraID and
// expires under secret, and whether now is still before expires. Both
// must hold for the URL to be considered valid.
func Verify(cameraID string, expires int64, sig, secret string, now time.Time) bool {
	want := signPayload(cameraID, expires, secret)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return false
	}
	return now.Unix() < expires
}
