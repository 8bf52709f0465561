// Package errs defines the stable error taxonomy shared by every core
// component (spec §7): Integrity, Concurrency, Storage, Determinism,
// ExternalAPI and Config classes, each surfaced as a typed, wrappable error
// so callers can branch on Kind without string-matching messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind names one of the taxonomy's error classes.
type Kind string

const (
	KindIntegrity    Kind = "integrity"
	KindConcurrency  Kind = "concurrency"
	KindStorage      Kind = "storage"
	KindDeterminism  Kind = "determinism"
	KindExternalAPI  Kind = "external_api"
	KindConfig       Kind = "config"
)

// Error is the concrete type behind every error this module returns for a
// classified failure. Code is taxonomy-specific (e.g. a K8S_* code for
// KindExternalAPI, empty for the others unless the caller sets one).
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, errs.KindIntegrity) style checks work by comparing
// against a bare *Error carrying only a Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return true
}

func new_(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, code string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Integrity reports a hash-chain break, seq gap, pointer mismatch, signature
// failure, or checkpoint hash mismatch. Never recovered automatically.
func Integrity(format string, args ...any) *Error { return new_(KindIntegrity, "", format, args...) }

// IntegrityWrap wraps an underlying cause as an Integrity error.
func IntegrityWrap(err error, format string, args ...any) *Error {
	return wrap(KindIntegrity, "", err, format, args...)
}

// Concurrency reports a CAS append conflict.
func Concurrency(format string, args ...any) *Error {
	return new_(KindConcurrency, "", format, args...)
}

// Storage reports I/O failure, missing files, or an unreachable backend.
func Storage(format string, args ...any) *Error { return new_(KindStorage, "", format, args...) }

// StorageWrap wraps an underlying cause as a Storage error.
func StorageWrap(err error, format string, args ...any) *Error {
	return wrap(KindStorage, "", err, format, args...)
}

// Determinism reports an unknown event type in strict mode, or a
// non-representable value (float, unordered set, non-UTF-8) reaching the
// canonical codec.
func Determinism(format string, args ...any) *Error {
	return new_(KindDeterminism, "", format, args...)
}

// ExternalAPI lowers an external resource-API failure into the stable code
// set (K8S_NOT_FOUND, K8S_CONFLICT, K8S_FORBIDDEN, K8S_UNAUTHORIZED,
// K8S_INVALID, K8S_SERVER_ERROR, K8S_ERROR, UNKNOWN). Raw error strings and
// stack traces are deliberately not embedded beyond Message.
func ExternalAPI(code string, status int, reason string) *Error {
	return &Error{
		Kind:    KindExternalAPI,
		Code:    code,
		Message: fmt.Sprintf("external api error: status=%d reason=%s", status, reason),
	}
}

// Config reports a hash-version disagreement or bad key file. Surfaced at
// startup; never retried.
func Config(format string, args ...any) *Error { return new_(KindConfig, "", format, args...) }

// ConfigWrap wraps an underlying cause as a Config error.
func ConfigWrap(err error, format string, args ...any) *Error {
	return wrap(KindConfig, "", err, format, args...)
}

// Is reports whether err is classified under kind, walking the chain.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
