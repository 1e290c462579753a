package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/crypto"
)

const (
	callerHeader    = "X-Caller-Address"
	signatureHeader = "X-Caller-Signature"
	timestampHeader = "X-Caller-Timestamp"

	maxSignedBody = 1 << 20
)

// CallerSignature returns middleware that checks an EIP-712 signature over
// the request method, path and body against the address in
// X-Caller-Address.
// Requests without a caller pass through. A caller without a signature is
// rejected only when required is set; a signature that is present is always
// checked. A nil verifier disables the middleware.
func CallerSignature(v *crypto.Verifier, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := r.Header.Get(callerHeader)
			sig := r.Header.Get(signatureHeader)
			if caller == "" || r.Method == http.MethodOptions || (sig == "" && !required) {
				next.ServeHTTP(w, r)
				return
			}
			if sig == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing caller signature")
				return
			}
			if !common.IsHexAddress(caller) {
				writeJSONError(w, http.StatusUnauthorized, "invalid caller address")
				return
			}
			ts, err := strconv.ParseInt(r.Header.Get(timestampHeader), 10, 64)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid caller timestamp")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "unreadable request body")
				return
			}
			if len(body) > maxSignedBody {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			err = v.Verify(crypto.Authorization{
				Caller:    common.HexToAddress(caller),
				Timestamp: ts,
				Method:    r.Method,
				Path:      r.URL.Path,
				BodyHash:  crypto.BodyHash(body),
			}, sig)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, crypto.ErrExpired):
				writeJSONError(w, http.StatusUnauthorized, "caller signature expired")
			default:
				writeJSONError(w, http.StatusUnauthorized, "invalid caller signature")
			}
		})
	}
}
