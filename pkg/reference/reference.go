package reference

import (
	"crypto/rand"
	"fmt"
)

// Kind selects the prefix of a generated reference.
type Kind string

const (
	KindPayment     Kind = "pay"
	KindTransaction Kind = "txn"
	KindPayout      Kind = "po"
	KindInvoice     Kind = "inv"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// payloadLen gives log2(62^21) ≈ 125 bits of entropy per reference
	payloadLen = 21
	// secretLen is used for API secrets (≈190 bits)
	secretLen = 32
)

var randRead = rand.Read

// New returns a prefixed opaque reference, e.g. pay_h7Jq9XkPzR0mWd2TbYcLn
func New(kind Kind) (string, error) {
	payload, err := randomString(payloadLen)
	if err != nil {
		return "", err
	}
	return string(kind) + "_" + payload, nil
}

// NewAPIKeyPair returns a public key id and a secret for the given environment
// (pk_{env}_<21 chars>, sk_{env}_<32 chars>).
func NewAPIKeyPair(env string) (keyID, secret string, err error) {
	id, err := randomString(payloadLen)
	if err != nil {
		return "", "", err
	}
	sec, err := randomString(secretLen)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("pk_%s_%s", env, id), fmt.Sprintf("sk_%s_%s", env, sec), nil
}

// randomString draws n characters from the alphanumeric alphabet using a
// CSPRNG. Rejection sampling keeps the distribution uniform.
func randomString(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := randRead(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			// 248 is the largest multiple of 62 below 256
			if b >= 248 {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
