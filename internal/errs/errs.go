package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can react to the failure class
// without parsing message text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindFilesystem covers I/O failures, missing files and copy errors.
	KindFilesystem
	// KindNotFound indicates a required artifact or record does not exist.
	KindNotFound
	// KindBackup wraps a failure reported by a package's own create procedure.
	KindBackup
	// KindRestore wraps a failure reported by a package's own restore procedure.
	KindRestore
	// KindSerialization covers envelope encode/decode failures.
	KindSerialization
	// KindDatabase covers store read/write failures.
	KindDatabase
	// KindParseDBField indicates a malformed stored field read back from the database.
	KindParseDBField
	// KindValidatePackage indicates a package manifest procedure failed validation.
	KindValidatePackage
)

func (k Kind) String() string {
	switch k {
	case KindFilesystem:
		return "filesystem"
	case KindNotFound:
		return "not-found"
	case KindBackup:
		return "backup"
	case KindRestore:
		return "restore"
	case KindSerialization:
		return "serialization"
	case KindDatabase:
		return "database"
	case KindParseDBField:
		return "parse-db-field"
	case KindValidatePackage:
		return "validate-package"
	default:
		return "unknown"
	}
}

// Error carries a kind alongside the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a kinded error from a message.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to an existing error. A nil err returns nil.
// If err already carries a kind it is preserved.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// Wrapf attaches a kind and context to an existing error.
func Wrapf(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: fmt.Errorf(format+": %w", append(args, err)...)}
}

// KindOf extracts the kind from an error chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
