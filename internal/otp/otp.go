// Package otp generates and checks the numeric one-time passcodes that
// authorize a cheque handover. Codes are only ever persisted as hashes.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
)

// CodeDigits is the fixed length of a handover code.
const CodeDigits = 6

var ten = big.NewInt(10)

// GenerateCode returns a uniformly random 6-digit numeric code (e.g. "004217").
func GenerateCode() (string, error) {
	s := make([]byte, CodeDigits)
	for i := range s {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		s[i] = '0' + byte(n.Int64())
	}
	return string(s), nil
}

// HashCode returns the hex-encoded SHA-256 of code.
func HashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// CodeEqual compares the hash of provided against storedHash in constant time.
// An empty code never matches.
func CodeEqual(provided, storedHash string) bool {
	if provided == "" || storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashCode(provided)), []byte(storedHash)) == 1
}
