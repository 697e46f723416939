package httpapi

import (
	"net/http"

	"github.com/adred-codev/pulsewire/internal/signing"
)

// verifySignature validates the auth_key/auth_timestamp/auth_version/
// auth_signature/body_md5 query contract against secret for the request
// identified by (method, path). body_md5 is read verbatim from the query
// string, not recomputed from the actual request body: the canonical
// string only needs to be internally consistent with what the caller
// claims to have hashed, matching the reference contract exactly.
func verifySignature(r *http.Request, secret string) *APIError {
	q := r.URL.Query()

	authKey := q.Get("auth_key")
	authTimestamp := q.Get("auth_timestamp")
	authVersion := q.Get("auth_version")
	authSignature := q.Get("auth_signature")

	if authKey == "" || authTimestamp == "" || authVersion == "" || authSignature == "" {
		return ErrMissingParameters
	}

	timestampMs, err := signing.ParseTimestampMs(authTimestamp)
	if err != nil {
		return ErrMissingParameters
	}

	toSign := signing.CanonicalString(r.Method, r.URL.Path, authKey, timestampMs, signing.NormalizeVersion(authVersion), q.Get("body_md5"))

	ok, malformed := signing.Verify(secret, toSign, authSignature)
	if malformed {
		return ErrAuthSignatureError
	}
	if !ok {
		return ErrAuthKeyMismatch
	}
	return nil
}
