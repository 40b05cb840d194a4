package license

import "fmt"

// FormatError reports license key text that does not match the key grammar
type FormatError struct {
	Key    string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid license key format %q: %s", e.Key, e.Reason)
}

// KeyExhaustionError reports that no unique key was found within the attempt
// limit. It points at a generator defect, not bad luck, and is not retryable.
type KeyExhaustionError struct {
	ProductCode string
	Attempts    int
}

func (e *KeyExhaustionError) Error() string {
	return fmt.Sprintf("could not generate unique license key for product %q after %d attempts", e.ProductCode, e.Attempts)
}
