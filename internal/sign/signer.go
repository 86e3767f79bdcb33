// Package sign implements the gateway's request signing protocol:
// a canonical string over the signed request fields, HMAC-SHA256 in
// lowercase hex, and constant-time signature comparison.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Canonical builds the canonical signing string. The five fields are
// uppercased method, request path (no query string), the hex body
// digest (empty when the body is absent), the decimal timestamp, and
// the nonce, joined by single newlines. Absent fields contribute an
// empty string so client and gateway always agree on field count.
func Canonical(method, path, contentSHA256, timestamp, nonce string) string {
	return strings.ToUpper(method) + "\n" +
		path + "\n" +
		contentSHA256 + "\n" +
		timestamp + "\n" +
		nonce
}

// HMACSHA256Hex computes HMAC-SHA256 over data with the given key and
// returns the 64-character lowercase hex digest.
func HMACSHA256Hex(data, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
// Used for the request body digest carried in x-content-sha256.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify compares a provided signature against the expected one in
// constant time. A length mismatch is a failed verification, never a
// timing oracle.
func Verify(provided, expected string) bool {
	if len(provided) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
