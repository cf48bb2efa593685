package domain

import "errors"

var (
	ErrTaskNotFound = errors.New("task: not found")

	// ErrTransitionNoOp signals that a conditional update left the task
	// untouched because it no longer accepts the event.
	ErrTransitionNoOp = errors.New("task: transition dropped")

	ErrIllegalTransition = errors.New("task: illegal transition")
)
