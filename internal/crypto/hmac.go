package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Request signature headers.
const (
	HeaderTimestamp = "X-Slot-Timestamp"
	HeaderSignature = "X-Slot-Signature"
)

var (
	ErrSignatureMissing = errors.New("crypto: request signature missing")
	ErrSignatureInvalid = errors.New("crypto: request signature invalid")
	ErrSignatureExpired = errors.New("crypto: request timestamp outside allowed skew")
)

// RequestSigner signs and verifies write requests with a shared secret. The
// signature is base64(HMAC-SHA256(secret, timestamp+method+path+body)).
type RequestSigner struct {
	secret  []byte
	maxSkew time.Duration
}

// NewRequestSigner creates a signer. maxSkew bounds how far a request
// timestamp may drift from the server clock.
func NewRequestSigner(secret string, maxSkew time.Duration) *RequestSigner {
	return &RequestSigner{secret: []byte(secret), maxSkew: maxSkew}
}

// Headers returns the signature headers for a request sent now.
func (s *RequestSigner) Headers(method, path, body string) map[string]string {
	return s.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is Headers with a caller-supplied unix timestamp.
func (s *RequestSigner) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderTimestamp: ts,
		HeaderSignature: s.sign(ts + method + path + body),
	}
}

// Verify checks sig against the request and its timestamp against now.
func (s *RequestSigner) Verify(method, path, body, ts, sig string, now time.Time) error {
	if ts == "" || sig == "" {
		return ErrSignatureMissing
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrSignatureInvalid, ts)
	}
	if s.maxSkew > 0 {
		drift := now.Sub(time.Unix(unix, 0))
		if drift < 0 {
			drift = -drift
		}
		if drift > s.maxSkew {
			return ErrSignatureExpired
		}
	}
	want := s.sign(ts + method + path + body)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrSignatureInvalid
	}
	return nil
}

func (s *RequestSigner) sign(message string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
