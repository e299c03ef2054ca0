package mo

import (
	"errors"
	"fmt"
)

// ErrorKind classifies upstream API failures so handlers can map them to
// HTTP status codes.
type ErrorKind int

const (
	// KindGeneric is any API failure without a more specific class.
	KindGeneric ErrorKind = iota
	// KindAuth means the API key was rejected.
	KindAuth
	// KindNotFound means the addressed resource does not exist.
	KindNotFound
	// KindConflict means the request collides with existing data, such as
	// a duplicate field slip code.
	KindConflict
	// KindTransient covers timeouts and network failures worth retrying.
	KindTransient
)

// Error is a classified Mushroom Observer API failure.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("mo api: %s (%s)", e.Message, e.Code)
	}
	return "mo api: " + e.Message
}

func kindOf(err error) (ErrorKind, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return KindGeneric, false
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindAuth
}

// IsNotFound reports whether err is a missing-resource failure.
func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

// IsConflict reports whether err is a data conflict.
func IsConflict(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConflict
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTransient
}
