package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrSignatureMismatch is returned when the computed digest does not
	// match the presented one.
	ErrSignatureMismatch = errors.New("signature mismatch")
	// ErrTimestampOutOfTolerance is returned when the signed timestamp is
	// too far from the verifier's clock (replay protection).
	ErrTimestampOutOfTolerance = errors.New("timestamp out of tolerance")
)

// Verifier validates keyed-HMAC webhook signatures computed over
// timestamp + "." + body.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a Verifier with the given shared secret and
// timestamp tolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	return &Verifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Sign computes the hex HMAC-SHA256 digest of timestamp + "." + body.
func (v *Verifier) Sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the presented signature against the body and unix-seconds
// timestamp. The comparison is timing-safe and timestamps outside the
// tolerance window are rejected regardless of the digest.
func (v *Verifier) Verify(timestamp string, body []byte, presented string) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", timestamp, err)
	}

	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return ErrTimestampOutOfTolerance
	}

	expected := v.Sign(timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(presented)) {
		return ErrSignatureMismatch
	}
	return nil
}
