package objstore

import (
	"errors"
	"fmt"
)

// ErrMissingCredentials means the destination has no usable credentials.
// It is fatal for a run: no later upload could succeed either.
var ErrMissingCredentials = errors.New("objstore: missing or invalid destination credentials")

// Error records the operation and key of a failed store call.
type Error struct {
	Op  string // "exists" or "upload"
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("objstore: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// credentialErrorCodes are the S3 error codes that mean the request was not
// signed with valid keys.
var credentialErrorCodes = map[string]bool{
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"InvalidToken":          true,
	"ExpiredToken":          true,
}

// wrapCredentialError tags err with ErrMissingCredentials when code is a
// credential failure.
func wrapCredentialError(code string, err error) error {
	if credentialErrorCodes[code] {
		return fmt.Errorf("%w: %w", ErrMissingCredentials, err)
	}

	return err
}
