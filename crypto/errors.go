package crypto

import "errors"

// Error taxonomy shared by every component of the protocol.
//
// Callers should test with errors.Is; the wrapped detail is for logs only and
// never distinguishes between authentication failures.
var (
	// ErrConfiguration reports bad or missing key material. It is fatal for the
	// affected operation and must not be retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrMalformedInput reports bad encodings or wrong-length fields. No
	// cryptographic work is attempted on malformed input.
	ErrMalformedInput = errors.New("malformed input")
	// ErrAuthentication reports that a ciphertext failed to authenticate.
	ErrAuthentication = errors.New("authentication failed")
)
