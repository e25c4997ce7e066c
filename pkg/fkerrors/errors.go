// Package fkerrors defines fetchkit's error-kind taxonomy (spec.md §7):
// network, timeout, cancel, client, server, parse, validation,
// condition-unmet, quota, and unknown failures, all wrapped in one error
// type so callers can branch on Kind with errors.As while still getting a
// normal %w-wrapped chain back to the underlying cause.
//
// Grounded on the teacher's error style across cache-manager, invalidation,
// and warming: exported sentinel errors, fmt.Errorf("...: %w", err)
// wrapping, no panics crossing a package boundary.
package fkerrors

import (
	"errors"
	"fmt"
)

// Kind classifies why a fetchkit operation failed.
type Kind string

const (
	KindNetwork         Kind = "network"
	KindTimeout         Kind = "timeout"
	KindCancel          Kind = "cancel"
	KindClient          Kind = "client"
	KindServer          Kind = "server"
	KindParse           Kind = "parse"
	KindValidation      Kind = "validation"
	KindConditionUnmet  Kind = "condition-unmet"
	KindQuota           Kind = "quota"
	KindUnknown         Kind = "unknown"
)

// Error is fetchkit's uniform error type. Kind is always set; Err, when
// present, is the wrapped underlying cause and is returned by Unwrap so
// errors.Is/errors.As keep working against it.
type Error struct {
	Kind        Kind
	Fingerprint string
	Err         error
}

func (e *Error) Error() string {
	if e.Fingerprint != "" {
		if e.Err != nil {
			return fmt.Sprintf("fetchkit: %s [%s]: %v", e.Kind, e.Fingerprint, e.Err)
		}
		return fmt.Sprintf("fetchkit: %s [%s]", e.Kind, e.Fingerprint)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetchkit: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("fetchkit: %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, fkerrors.New(KindTimeout, nil)) match any *Error
// with the same Kind, independent of the wrapped cause or fingerprint.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given kind wrapping err (which may be nil).
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// WithFingerprint attaches the fingerprint an error occurred under.
func (e *Error) WithFingerprint(fp string) *Error {
	return &Error{Kind: e.Kind, Fingerprint: fp, Err: e.Err}
}

// Wrap builds an *Error, formatting err with additional context the way the
// teacher's fmt.Errorf("...: %w", err) call sites do.
func Wrap(kind Kind, format string, err error) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format+": %w", err)}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else
// KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Sentinel errors for conditions that are not wrapping an external cause.
var (
	ErrConditionUnmet = &Error{Kind: KindConditionUnmet, Err: errors.New("shouldFetch returned false and no stale fallback is available")}
	ErrValidationFailed = &Error{Kind: KindValidation, Err: errors.New("validator rejected the fetched value")}
	ErrQuotaExceeded    = &Error{Kind: KindQuota, Err: errors.New("persistence backend is over its size quota")}
	ErrTimeout          = &Error{Kind: KindTimeout, Err: errors.New("operation exceeded its deadline")}
	ErrCanceled         = &Error{Kind: KindCancel, Err: errors.New("operation was canceled")}
	ErrEmptyFallbackChain = &Error{Kind: KindUnknown, Err: errors.New("fallback chain requires at least one backend")}
	ErrInvalidCombination = &Error{Kind: KindValidation, Err: errors.New("invalidateAll and exactMatch cannot both be set")}
)
