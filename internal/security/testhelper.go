package security

import "time"

// NewTestTokenProvider returns a TokenProvider over a freshly generated key.
// For tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	signer, pub, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(signer, pub, "test-issuer", "test-audience", 15*time.Minute), nil
}
