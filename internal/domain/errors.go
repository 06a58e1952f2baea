package domain

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the stable, caller-facing classification of a failure.
// Callers branch on kind, never on the error source.
type Kind string

const (
	KindInvalidIdentifier    Kind = "InvalidIdentifier"
	KindInvalidLocation      Kind = "InvalidLocation"
	KindPathViolation        Kind = "PathViolation"
	KindInvalidSpec          Kind = "InvalidSpec"
	KindNotFound             Kind = "NotFound"
	KindArtifactTooLarge     Kind = "ArtifactTooLarge"
	KindArtifactMissing      Kind = "ArtifactMissing"
	KindClosureNotSatisfied  Kind = "ClosureNotSatisfied"
	KindAlreadyShipped       Kind = "AlreadyShipped"
	KindAlreadyRejected      Kind = "AlreadyRejected"
	KindRaceLost             Kind = "RaceLost"
	KindSinkTransportFailure Kind = "SinkTransportFailure"
	KindUnknownSink          Kind = "UnknownSink"
	KindStorageFailure       Kind = "StorageFailure"
	KindManifestPersist      Kind = "ManifestPersistFailed"
	KindReceiptWriteFailed   Kind = "ReceiptWriteFailed"
	KindDeadlineExceeded     Kind = "DeadlineExceeded"
	KindInternal             Kind = "Internal"
)

// Error carries a stable kind plus a human-readable detail. The wrapped
// cause never crosses the API boundary; only kind and detail do.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E constructs a kinded error with a formatted detail.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// WrapE wraps an underlying cause with a kind and detail.
func WrapE(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, walking the wrap chain.
// Non-kinded errors report KindInternal; context deadline errors report
// KindDeadlineExceeded.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindDeadlineExceeded
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
