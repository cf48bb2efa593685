package domain

import "fmt"

// TaskEvent is something that happens to a task and may move it to a new status.
type TaskEvent string

const (
	EventCreated           TaskEvent = "created"
	EventDispatchStarted   TaskEvent = "dispatch_started"
	EventDispatchFailed    TaskEvent = "dispatch_failed"
	EventCallbackCompleted TaskEvent = "callback_completed"
)

// TaskEvents lists the events that drive transitions. EventCreated only
// announces a new record and is not part of the table.
var TaskEvents = []TaskEvent{
	EventDispatchStarted,
	EventDispatchFailed,
	EventCallbackCompleted,
}

func (e TaskEvent) String() string {
	return string(e)
}

type transitionKey struct {
	from  TaskStatus
	event TaskEvent
}

// transitions is the full state machine. Anything missing is illegal.
var transitions = map[transitionKey]TaskStatus{
	{TaskStatusPending, EventDispatchStarted}: TaskStatusProcessing,

	{TaskStatusPending, EventDispatchFailed}:    TaskStatusFailed,
	{TaskStatusProcessing, EventDispatchFailed}: TaskStatusFailed,

	// A callback may overtake the processing marker.
	{TaskStatusPending, EventCallbackCompleted}:    TaskStatusCompleted,
	{TaskStatusProcessing, EventCallbackCompleted}: TaskStatusCompleted,
}

// Transition returns the status a task in from moves to when event happens.
// Terminal sources yield ErrTransitionNoOp; other missing pairs yield
// ErrIllegalTransition.
func Transition(from TaskStatus, event TaskEvent) (TaskStatus, error) {
	if from.IsTerminal() {
		return from, fmt.Errorf("%w: %s is terminal, %s dropped", ErrTransitionNoOp, from, event)
	}
	to, ok := transitions[transitionKey{from, event}]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, event, from)
	}
	return to, nil
}

// Target is the status event leads to from any legal source.
func (e TaskEvent) Target() (TaskStatus, error) {
	for key, to := range transitions {
		if key.event == e {
			return to, nil
		}
	}
	return "", fmt.Errorf("%w: unknown event %q", ErrIllegalTransition, e)
}

// AllowedFrom lists the statuses event may be applied to, in lifecycle order.
// It never contains a terminal status.
func (e TaskEvent) AllowedFrom() []TaskStatus {
	var from []TaskStatus
	for _, s := range TaskStatuses {
		if _, ok := transitions[transitionKey{s, e}]; ok {
			from = append(from, s)
		}
	}
	return from
}

// Accepts reports whether event may be applied to a task currently in s.
func (e TaskEvent) Accepts(s TaskStatus) bool {
	_, ok := transitions[transitionKey{s, e}]
	return ok
}
