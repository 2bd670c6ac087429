// Package errors provides the typed error taxonomy shared by every
// arcadewatchd component, plus thin wrap/unwrap helpers so call sites
// never need to import both this package and the standard errors package.
package errors

import (
	"fmt"
	"errors"

	pkgerrors "github.com/pkg/errors"
)

func Is(err, target error) bool             { return errors.Is(err, target) }
func As(err error, target interface{}) bool { return errors.As(err, target) }
func New(message string) error              { return pkgerrors.New(message) }

// Wrap wraps err with a message, preserving its stack trace and preserving
// err for errors.Is/As/Unwrap.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, message)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, format, args...)
}

// Kind classifies an error for retry/notify decisions: transient network,
// remote rejection, local filesystem, database, invariant violation, fatal.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork      // transient: timeout, connect failure
	KindRemote       // non-2xx or explicit error envelope field
	KindFilesystem   // local I/O failure other than "not found"
	KindDatabase
	KindInvariant // e.g. GameEnded with no current play
	KindFatal     // startup-only: bad config, unreachable db, missing LED device
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "NetworkError"
	case KindRemote:
		return "RemoteError"
	case KindFilesystem:
		return "FilesystemError"
	case KindDatabase:
		return "DatabaseError"
	case KindInvariant:
		return "InvariantError"
	case KindFatal:
		return "FatalError"
	default:
		return "UnknownError"
	}
}

// TypedError carries a Kind alongside the usual message/cause.
type TypedError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *TypedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TypedError) Unwrap() error { return e.Err }

func NewNetworkError(message string, err error) error {
	return &TypedError{Kind: KindNetwork, Message: message, Err: err}
}

func NewRemoteError(message string, err error) error {
	return &TypedError{Kind: KindRemote, Message: message, Err: err}
}

func NewFilesystemError(message string, err error) error {
	return &TypedError{Kind: KindFilesystem, Message: message, Err: err}
}

func NewDatabaseError(message string, err error) error {
	return &TypedError{Kind: KindDatabase, Message: message, Err: err}
}

func NewInvariantError(message string) error {
	return &TypedError{Kind: KindInvariant, Message: message}
}

func NewFatalError(message string, err error) error {
	return &TypedError{Kind: KindFatal, Message: message, Err: err}
}

func kindOf(err error) (Kind, bool) {
	var typed *TypedError
	if As(err, &typed) {
		return typed.Kind, true
	}
	return KindUnknown, false
}

// IsNetworkError reports whether err (or something it wraps) is network-shaped:
// a TypedError of KindNetwork, or a raw error exposing a Timeout() method.
func IsNetworkError(err error) bool {
	if k, ok := kindOf(err); ok {
		return k == KindNetwork
	}
	var timeoutish interface{ Timeout() bool }
	if As(err, &timeoutish) {
		return true
	}
	return false
}

func IsRemoteError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindRemote
}

func IsFilesystemError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindFilesystem
}

// IsNotFound reports whether err wraps ErrNotFound, the "row not found"
// result of a database lookup. It does not match filesystem not-exist
// errors; callers check those with os.IsNotExist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ErrNotFound is returned by database lookups that found no matching row.
var ErrNotFound = errors.New("not found")
