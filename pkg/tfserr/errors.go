// Package tfserr defines the error taxonomy shared by every TFS component:
// the block store, the storage-node agent, and the coordinator's registry,
// heartbeat manager, plan engine, oplog replicator and HA controller all
// return errors through this package so callers can branch on kind with
// errors.Is/errors.As instead of string matching.
package tfserr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the taxonomy entries from the error
// handling design. It never carries operation-specific detail; that lives
// in Error.Err.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindAlreadyExists     Kind = "already_exists"
	KindBusy              Kind = "busy"
	KindStaleVersion      Kind = "stale_version"
	KindCrcError          Kind = "crc_error"
	KindCapacityExhausted Kind = "capacity_exhausted"
	KindIoError           Kind = "io_error"
	KindNetwork           Kind = "network"
	KindNotLeader         Kind = "not_leader"
	KindUnauthorized      Kind = "unauthorized"
	KindInvalidArgument   Kind = "invalid_argument"
)

// Error wraps an underlying cause with a Kind and the operation that
// produced it, following the op/kind/err shape used throughout the
// coordinator and block store.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, tfserr.NotFound) succeed for any error built with
// the NotFound kind, regardless of Op or the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for use with errors.Is. They carry no Op or Err and exist only
// to be matched against.
var (
	NotFound          = &Error{Kind: KindNotFound}
	AlreadyExists     = &Error{Kind: KindAlreadyExists}
	Busy              = &Error{Kind: KindBusy}
	StaleVersion      = &Error{Kind: KindStaleVersion}
	CrcError          = &Error{Kind: KindCrcError}
	CapacityExhausted = &Error{Kind: KindCapacityExhausted}
	IoError           = &Error{Kind: KindIoError}
	Network           = &Error{Kind: KindNetwork}
	NotLeader         = &Error{Kind: KindNotLeader}
	Unauthorized      = &Error{Kind: KindUnauthorized}
	InvalidArgument   = &Error{Kind: KindInvalidArgument}
)

// Wrap attaches kind and op to an existing error.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// New builds a leaf error of the given kind.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// KindOf extracts the Kind from err, walking Unwrap chains. It returns the
// empty Kind if err is nil or carries no *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
