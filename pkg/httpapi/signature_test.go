package httpapi

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignatureSHA256(t *testing.T) {
	body := []byte(`{"test": "data"}`)
	secret := "my-secret-key"

	valid := Sign(body, secret)
	assert.Contains(t, valid, "sha256=")

	assert.True(t, verifySignature(body, valid, secret))
	assert.False(t, verifySignature(body, "sha256=invalid", secret))
	assert.False(t, verifySignature(body, valid, "wrong-secret"))
	assert.False(t, verifySignature([]byte("different body"), valid, secret))
}

func TestVerifySignatureSHA1(t *testing.T) {
	body := []byte(`{"test": "data"}`)
	secret := "my-secret-key"

	valid := "sha1=" + computeHMAC(sha1.New, body, secret)
	assert.True(t, verifySignature(body, valid, secret))
	assert.False(t, verifySignature(body, valid, "wrong-secret"))
}

func TestVerifySignatureBareDigest(t *testing.T) {
	body := []byte("payload")
	signed := Sign(body, "k")

	assert.True(t, verifySignature(body, signed[len("sha256="):], "k"))
}

func TestVerifySignatureUnknownAlgorithm(t *testing.T) {
	assert.False(t, verifySignature([]byte("x"), "md5=abc", "k"))
}
