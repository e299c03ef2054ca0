package models

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks a request the caller can fix.
var ErrInvalidInput = errors.New("invalid input")

// ErrConflictingState marks a mutation that contradicts existing data,
// such as a field slip code already linked to a different observation.
var ErrConflictingState = errors.New("conflicting state")

// NotFoundError reports an unknown image key.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("image not found: %s", e.Key)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ClaimDeniedError reports that an image is held by another reviewer.
type ClaimDeniedError struct {
	Key    string
	Holder string
}

func (e *ClaimDeniedError) Error() string {
	return fmt.Sprintf("image %s is claimed by %s", e.Key, e.Holder)
}

// IsClaimDenied reports whether err wraps a ClaimDeniedError.
func IsClaimDenied(err error) bool {
	var cd *ClaimDeniedError
	return errors.As(err, &cd)
}
