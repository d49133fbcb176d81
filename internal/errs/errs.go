// Package errs implements the error taxonomy from spec §7 as a closed
// set of kinds, not a hierarchy of types. Call sites that need to branch
// on "what kind of failure was this" use Kind(err); everything else just
// propagates the wrapped error with github.com/pkg/errors context.
package errs

import (
	"github.com/pkg/errors"
)

type ErrKind int

const (
	Unknown ErrKind = iota
	TransientNetwork
	RemoteRejected
	SpawnFailed
	SourceUnreachable
	ExitedUnexpectedly
	PermanentFailed
	Cancelled
)

func (k ErrKind) String() string {
	switch k {
	case TransientNetwork:
		return "transient_network"
	case RemoteRejected:
		return "remote_rejected"
	case SpawnFailed:
		return "spawn_failed"
	case SourceUnreachable:
		return "source_unreachable"
	case ExitedUnexpectedly:
		return "exited_unexpectedly"
	case PermanentFailed:
		return "permanent_failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type kindedError struct {
	kind ErrKind
	err  error
}

func (e *kindedError) Error() string { return e.err.Error() }
func (e *kindedError) Cause() error  { return e.err }
func (e *kindedError) Unwrap() error { return e.err }

// New wraps err (which may be nil, in which case a bare kind error is
// produced from msg) with the given kind and a message, using
// github.com/pkg/errors so the original stack/cause survives.
func New(kind ErrKind, msg string, cause error) error {
	var wrapped error
	if cause != nil {
		wrapped = errors.Wrap(cause, msg)
	} else {
		wrapped = errors.New(msg)
	}
	return &kindedError{kind: kind, err: wrapped}
}

// Kind extracts the ErrKind attached to err, walking Cause()/Unwrap()
// chains. Returns Unknown if neither err nor anything in its chain was
// produced via New.
func Kind(err error) ErrKind {
	for err != nil {
		if ke, ok := err.(*kindedError); ok {
			return ke.kind
		}
		cause := errors.Unwrap(err)
		if cause == nil {
			break
		}
		err = cause
	}
	return Unknown
}

// Is reports whether err's kind equals k.
func Is(err error, k ErrKind) bool {
	return Kind(err) == k
}

// Transient reports whether err represents a condition the caller should
// retry on the next periodic tick rather than treat as a budget-consuming
// failure (spec §7: TransientNetwork, SourceUnreachable).
func Transient(err error) bool {
	k := Kind(err)
	return k == TransientNetwork || k == SourceUnreachable
}
