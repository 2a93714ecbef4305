package httpapi

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"strings"
)

// SignatureHeader carries the HMAC of the request body
const SignatureHeader = "X-Sdkbridge-Signature"

// Sign computes the sha256 signature header value for body
func Sign(body []byte, secret string) string {
	return "sha256=" + computeHMAC(sha256.New, body, secret)
}

// verifySignature checks a "<algorithm>=<hex>" header against body.
// A header without a prefix is treated as sha256.
func verifySignature(body []byte, header, secret string) bool {
	algorithm, digest, ok := strings.Cut(header, "=")
	if !ok {
		algorithm, digest = "sha256", header
	}

	var expected string
	switch algorithm {
	case "sha256":
		expected = computeHMAC(sha256.New, body, secret)
	case "sha1":
		expected = computeHMAC(sha1.New, body, secret)
	default:
		return false
	}

	return subtle.ConstantTimeCompare([]byte(digest), []byte(expected)) == 1
}

func computeHMAC(h func() hash.Hash, body []byte, secret string) string {
	mac := hmac.New(h, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
