package models

import (
	"errors"
	"fmt"
)

// RejectReason is the closed set of reasons a request can be refused.
// Every reason is a recoverable, caller-visible condition with a stable code.
type RejectReason string

const (
	ReasonMalformedInterval    RejectReason = "malformed_interval"
	ReasonNotice               RejectReason = "notice"
	ReasonAdvance              RejectReason = "advance"
	ReasonCancellationNotice   RejectReason = "cancellation_notice"
	ReasonOutsideAvailability  RejectReason = "outside_availability"
	ReasonOverlap              RejectReason = "overlap"
	ReasonNotFound             RejectReason = "not_found"
	ReasonForbidden            RejectReason = "forbidden"
	ReasonCancellationDisabled RejectReason = "cancellation_disabled"
	ReasonConflict             RejectReason = "conflict"
)

// Rejection is a typed refusal of a request. It is an error so it can travel
// normal return paths, but it is never wrapped into a generic failure: the
// boundary layer inspects Reason and maps it to a response code.
type Rejection struct {
	Reason RejectReason
	Detail string
}

// NewRejection builds a rejection with a human-readable detail.
func NewRejection(reason RejectReason, detail string) *Rejection {
	return &Rejection{Reason: reason, Detail: detail}
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// AsRejection extracts a *Rejection from err, nil when err is not one.
func AsRejection(err error) *Rejection {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej
	}
	return nil
}

// StoreError marks a durable-store failure that is not attributable to any
// domain rejection. The boundary maps it to a retryable response.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err with the failed operation name.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}
