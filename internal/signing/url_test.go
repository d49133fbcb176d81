package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestSignAndVerify_ValidBeforeExpiry(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	signer := &Signer{Secret: "shh", TTL: 10 * time.Minute, Now: fixedClock(base)}

	expires, sig := signer.Sign("cam-1")

	assert.True(t, Verify("cam-1", expires, sig, "shh", base.Add(5*time.Minute)))
}

func TestVerify_FailsAfterExpiry(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	signer := &Signer{Secret: "shh", TTL: 10 * time.Minute, Now: fixedClock(base)}

	expires, sig := signer.Sign("cam-1")

	assert.False(t, Verify("cam-1", expires, sig, "shh", base.Add(11*time.Minute)))
}

func TestVerify_FailsOnWrongSecret(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	signer := &Signer{Secret: "shh", TTL: 10 * time.Minute, Now: fixedClock(base)}

	expires, sig := signer.Sign("cam-1")

	assert.False(t, Verify("cam-1", expires, sig, "other-secret", base.Add(time.Minute)))
}

func TestVerify_FailsOnTamperedCameraID(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	signer := &Signer{Secret: "shh", TTL: 10 * time.Minute, Now: fixedClock(base)}

	expires, sig := signer.Sign("cam-1")

	assert.False(t, Verify("cam-2", expires, sig, "shh", base.Add(time.Minute)))
}

func TestSignedURL_AppendsQueryCorrectly(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	signer := &Signer{Secret: "shh", TTL: time.Hour, Now: fixedClock(base)}

	noQuery := signer.SignedURL("https://cdn.example.com/cam-1/playlist.m3u8", "cam-1")
	assert.Contains(t, noQuery, "?expires=")

	withQuery := signer.SignedURL("https://cdn.example.com/cam-1/playlist.m3u8?foo=bar", "cam-1")
	assert.Contains(t, withQuery, "&expires=")
}
