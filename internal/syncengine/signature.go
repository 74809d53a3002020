package syncengine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature is the distinct client-error class for webhook
// deliveries that fail verification.  Callers map it to a 400.
var ErrInvalidSignature = errors.New("webhook signature verification failed")

// ComputeSignature produces the hex encoded hmac-sha256 over
// "<timestamp>.<payload>" the remote platform signs deliveries with.
func ComputeSignature(timestamp time.Time, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// BuildSignatureHeader renders a signature header the way the remote platform
// does.  Used by tests and the local delivery tooling.
func BuildSignatureHeader(timestamp time.Time, payload []byte, secret string) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp.Unix(), ComputeSignature(timestamp, payload, secret))
}

// VerifySignature checks a delivery's signature header against the signing
// secret.  The header carries a timestamp and one or more candidate
// signatures; the delivery is valid when any candidate matches and the
// timestamp is within the tolerance window.
func VerifySignature(payload []byte, signatureHeader string, secret string, tolerance time.Duration) error {

	if signatureHeader == "" {
		return fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	var timestamp time.Time
	var candidates []string

	for _, pair := range strings.Split(signatureHeader, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}

		switch parts[0] {
		case "t":
			seconds, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: malformed timestamp", ErrInvalidSignature)
			}
			timestamp = time.Unix(seconds, 0)
		case "v1":
			candidates = append(candidates, parts[1])
		}
	}

	if timestamp.IsZero() || len(candidates) == 0 {
		return fmt.Errorf("%w: malformed signature header", ErrInvalidSignature)
	}

	if tolerance > 0 && time.Since(timestamp) > tolerance {
		return fmt.Errorf("%w: timestamp outside of tolerance window", ErrInvalidSignature)
	}

	expected := ComputeSignature(timestamp, payload, secret)
	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return nil
		}
	}

	return fmt.Errorf("%w: no matching signature found", ErrInvalidSignature)
}
