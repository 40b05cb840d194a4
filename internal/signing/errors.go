package signing

import (
	"errors"
	"fmt"
)

var (
	// ErrSignatureMalformed indicates signature text that cannot be decoded.
	// A decodable signature that does not match is not an error.
	ErrSignatureMalformed = errors.New("signing: signature malformed")

	// ErrUnsupportedKey indicates a PEM block holding a non-RSA key
	ErrUnsupportedKey = errors.New("signing: unsupported key type")
)

// KeyLoadError reports a key file that is missing, unreadable or malformed.
// It is fatal to the calling operation and is not retried automatically.
type KeyLoadError struct {
	Path string
	Op   string
	Err  error
}

func (e *KeyLoadError) Error() string {
	return fmt.Sprintf("failed to %s key %s: %v", e.Op, e.Path, e.Err)
}

func (e *KeyLoadError) Unwrap() error {
	return e.Err
}
