// Package isarerr defines the tagged error kinds surfaced across the engine.
//
// Every fallible operation in collection, index, link, query and txn returns
// (or wraps) an *Error so callers can branch on Kind rather than string
// matching, mirroring how the rest of this codebase classifies failures.
package isarerr

import (
	"errors"
	"fmt"
)

func as(err error, target **Error) bool {
	return errors.As(err, target)
}

// Kind classifies an error so callers can branch on intent.
type Kind int

const (
	// IllegalArgument covers schema mismatches, malformed object bytes, and
	// references to an unknown index or link.
	IllegalArgument Kind = iota
	// UniqueViolation is returned when a unique index conflicts with an
	// existing, different id and replace-on-conflict was not requested.
	UniqueViolation
	// DbFull indicates the underlying map is exhausted. Recoverable by
	// reopening the instance with a larger MaxSizeBytes.
	DbFull
	// DbCorrupted indicates an on-disk invariant was violated: a missing
	// backlink, a missing link target, or a malformed stored object.
	DbCorrupted
	// TransactionPoisoned indicates a prior error left the write
	// transaction indeterminate; only Abort is legal afterward.
	TransactionPoisoned
	// VersionError indicates a schema or file version mismatch on open.
	VersionError
	// DbError wraps an unmapped failure surfaced by the KV layer.
	DbError
)

func (k Kind) String() string {
	switch k {
	case IllegalArgument:
		return "IllegalArgument"
	case UniqueViolation:
		return "UniqueViolation"
	case DbFull:
		return "DbFull"
	case DbCorrupted:
		return "DbCorrupted"
	case TransactionPoisoned:
		return "TransactionPoisoned"
	case VersionError:
		return "VersionError"
	case DbError:
		return "DbError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a typed error with an optional underlying cause and, for
// UniqueViolation, the offending index name.
type Error struct {
	Kind      Kind
	Msg       string
	IndexName string // set only for UniqueViolation
	Err       error  // optional underlying cause
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Msg
	if e.Kind == UniqueViolation && e.IndexName != "" {
		msg = fmt.Sprintf("%s (index %q)", msg, e.IndexName)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Of reports whether err is an *Error of the given kind.
func Of(err error, kind Kind) bool {
	var e *Error
	if !as(err, &e) {
		return false
	}
	return e.Kind == kind
}

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Unique builds a UniqueViolation error naming the conflicting index.
func Unique(indexName string) *Error {
	return &Error{Kind: UniqueViolation, Msg: "unique index violation", IndexName: indexName}
}
