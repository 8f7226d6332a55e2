package models

import (
	"encoding/json"
	"time"

	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// InvocationStatus is the lifecycle state of one operation invocation.
type InvocationStatus string

// Invocation states. STARTING and IN_PROGRESS are transient; the rest are
// terminal.
const (
	StatusStarting   InvocationStatus = "STARTING"
	StatusInProgress InvocationStatus = "IN_PROGRESS"
	StatusSuccess    InvocationStatus = "SUCCESS"
	StatusProblem    InvocationStatus = "PROBLEM"
	StatusDibsDenied InvocationStatus = "DIBS_DENIED"
)

// Terminal reports whether the status admits no further transitions.
func (s InvocationStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusProblem, StatusDibsDenied:
		return true
	}
	return false
}

// CanTransitionTo enforces the invocation state machine.
func (s InvocationStatus) CanTransitionTo(next InvocationStatus) bool {
	switch s {
	case StatusStarting:
		return next == StatusInProgress || next == StatusDibsDenied || next == StatusProblem
	case StatusInProgress:
		return next == StatusSuccess || next == StatusProblem
	}
	return false
}

// OperationInvocation is the persisted record of one operation call, from
// STARTING through its terminal state.
type OperationInvocation struct {
	// ID is a UUID string assigned at creation.
	ID string

	Status InvocationStatus

	// OperationName is the full wire name, e.g. "BOX:list_root_items".
	OperationName string

	Args   json.RawMessage
	Result json.RawMessage

	ErrorKind    string
	ErrorMessage string

	// ErrorContext holds a truncated trace for operator debugging; never
	// returned over the wire.
	ErrorContext string

	ByUserID            int64
	AuthorizedAccountID int64
	ConfiguredAddonID   *int64

	Created  time.Time
	Modified time.Time
}

// Transition moves the invocation to the next status, rejecting illegal
// moves.
func (inv *OperationInvocation) Transition(next InvocationStatus) error {
	if !inv.Status.CanTransitionTo(next) {
		return gverrors.Newf(gverrors.KindUnexpectedAddonError,
			"invocation %s cannot move %s -> %s", inv.ID, inv.Status, next)
	}
	inv.Status = next
	return nil
}
