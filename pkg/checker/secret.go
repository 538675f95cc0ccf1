package checker

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveSigningKey expands a domain's long-lived deliberation secret
// into a fixed-length HMAC key scoped to this purpose, rather than
// signing JWTs directly with the raw secret on file. The info string
// binds the derived key to "brane-checker-jwt" so the same master
// secret can't be replayed against an unrelated HMAC use elsewhere in
// the domain's key material.
func DeriveSigningKey(masterSecret []byte, domain string) ([]byte, error) {
	reader := hkdf.New(sha256.New, masterSecret, []byte(domain), []byte("brane-checker-jwt"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
