// Package apperr implements the error-kind taxonomy from spec §7:
// Validation, NotFound, Conflict, BusinessRule, Provisioning, Transport,
// Integrity and Internal. Every error the orchestration engine returns
// across a public operation boundary should be, or wrap, one of these so
// callers can branch on kind with errors.As instead of string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation-policy purposes (§7).
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindBusinessRule Kind = "business_rule"
	KindProvisioning Kind = "provisioning"
	KindTransport    Kind = "transport"
	KindIntegrity    Kind = "integrity"
	KindInternal     Kind = "internal"
)

// ProvisioningSubkind enumerates the §4.4 ProvisioningError variants.
type ProvisioningSubkind string

const (
	ProvPoolNotFound          ProvisioningSubkind = "pool_not_found"
	ProvInsufficientCapacity  ProvisioningSubkind = "insufficient_capacity"
	ProvBackendUnavailable    ProvisioningSubkind = "backend_unavailable"
	ProvQuotaExceeded         ProvisioningSubkind = "quota_exceeded"
	ProvTimeout               ProvisioningSubkind = "timeout"
	ProvBadSpec               ProvisioningSubkind = "bad_spec"
)

// Error is the concrete error type carried across the engine. Subkind is
// only meaningful when Kind == KindProvisioning.
type Error struct {
	Kind    Kind
	Subkind ProvisioningSubkind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, target) match any *Error of target's Kind (and
// Subkind, when target sets one), so a bare-kind target constructed with
// New(kind, "", "") works as a sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Subkind != "" && t.Subkind != e.Subkind {
		return false
	}
	return true
}

// New builds an *Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap builds an *Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Provisioning builds a Provisioning-kind error with a subkind, per §4.4.
func Provisioning(op string, subkind ProvisioningSubkind, message string) *Error {
	return &Error{Kind: KindProvisioning, Subkind: subkind, Op: op, Message: message}
}

// NotFound, Conflict, Validation and BusinessRule are convenience
// constructors for the propagation-policy classes that are surfaced
// verbatim to callers per §7.
func NotFound(op, message string) *Error     { return New(KindNotFound, op, message) }
func Conflict(op, message string) *Error     { return New(KindConflict, op, message) }
func Validation(op, message string) *Error   { return New(KindValidation, op, message) }
func BusinessRule(op, message string) *Error { return New(KindBusinessRule, op, message) }
func Transport(op, message string) *Error    { return New(KindTransport, op, message) }
func Integrity(op, message string) *Error    { return New(KindIntegrity, op, message) }
func Internal(op string, err error) *Error   { return Wrap(KindInternal, op, err) }

// KindOf extracts the Kind of err if it is, or wraps, an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Retryable reports whether a Provisioning error's subkind is one the
// coordinator's retry policy (§4.8, §7) should re-queue rather than fail
// the job outright: transient backend conditions, not malformed requests.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindTransport:
		return true
	case KindProvisioning:
		switch e.Subkind {
		case ProvBackendUnavailable, ProvTimeout, ProvInsufficientCapacity:
			return true
		default:
			return false
		}
	default:
		return false
	}
}
