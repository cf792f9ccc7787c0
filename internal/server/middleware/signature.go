package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/slotengine/internal/crypto"
)

// maxSignedBody bounds the request body read for verification.
const maxSignedBody = 64 << 10

// Signed rejects mutating requests whose HMAC signature headers do not verify
// against signer. A nil signer disables the check. The body is restored for
// the next handler.
func Signed(signer *crypto.RequestSigner, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if signer == nil || !Mutating(r) {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
			r.Body.Close()
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "unreadable request body")
				return
			}
			if len(body) > maxSignedBody {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			err = signer.Verify(r.Method, r.URL.Path, string(body),
				r.Header.Get(crypto.HeaderTimestamp), r.Header.Get(crypto.HeaderSignature), now())
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, crypto.ErrSignatureMissing):
				writeJSONError(w, http.StatusUnauthorized, "missing request signature")
			case errors.Is(err, crypto.ErrSignatureExpired):
				writeJSONError(w, http.StatusUnauthorized, "request signature expired")
			default:
				writeJSONError(w, http.StatusUnauthorized, "invalid request signature")
			}
		})
	}
}
