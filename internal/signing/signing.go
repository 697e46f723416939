// Package signing implements the HMAC request-signing contract shared by the
// HTTP control plane and the WebSocket upgrade auth route.
package signing

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
)

// Sign computes the lowercase-hex HMAC-SHA256 of toSign, keyed by secret.
func Sign(secret, toSign string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(toSign))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the correct hex-encoded HMAC-SHA256 of
// toSign under secret. It never short-circuits on the comparison itself.
func Verify(secret, toSign, signature string) (ok bool, malformed bool) {
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return false, true
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(toSign))
	expected := mac.Sum(nil)
	return subtle.ConstantTimeCompare(decoded, expected) == 1, false
}

// BodyMD5 returns the lowercase-hex MD5 digest of body. Callers must omit
// this entirely from the canonical string when body is empty rather than
// calling BodyMD5("").
func BodyMD5(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

// CanonicalString builds the signing input:
//
//	<METHOD>\n<PATH>\nauth_key=<K>&auth_timestamp=<T_ms>&auth_version=<V>[&body_md5=<M>]
func CanonicalString(method, path, authKey string, authTimestampMs int64, authVersion string, bodyMD5 string) string {
	s := fmt.Sprintf("%s\n%s\nauth_key=%s&auth_timestamp=%d&auth_version=%s",
		method, path, authKey, authTimestampMs, authVersion)
	if bodyMD5 != "" {
		s += "&body_md5=" + bodyMD5
	}
	return s
}

// NormalizeVersion renders the auth_version query value the way the
// canonical string expects it: "1.0" when the value is exactly 1.0,
// otherwise the plain decimal representation. A value that does not parse
// as a number is returned unchanged.
func NormalizeVersion(raw string) string {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	if v == 1.0 {
		return "1.0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

const socketIDDigits = 16

// GenerateSocketID returns a socket-id shaped as two 16-digit decimal
// strings joined by '.', each digit drawn from a cryptographically seeded
// source.
func GenerateSocketID() (string, error) {
	p1, err := randomDigits(socketIDDigits)
	if err != nil {
		return "", err
	}
	p2, err := randomDigits(socketIDDigits)
	if err != nil {
		return "", err
	}
	return p1 + "." + p2, nil
}

func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + d.Int64())
	}
	return string(digits), nil
}

// ParseTimestampMs parses the auth_timestamp query parameter as milliseconds
// since the Unix epoch.
func ParseTimestampMs(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
