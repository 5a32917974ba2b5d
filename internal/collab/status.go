package collab

// SessionStatus models the session lifecycle state machine.
type SessionStatus string

// Lifecycle states. Transitions are monotone along
// scheduled -> active <-> paused -> ended -> archived; nothing moves
// backward past ended.
const (
	StatusScheduled SessionStatus = "scheduled"
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusEnded     SessionStatus = "ended"
	StatusArchived  SessionStatus = "archived"
)

// Valid reports whether the value is a known lifecycle state.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusActive, StatusPaused, StatusEnded, StatusArchived:
		return true
	}
	return false
}

// Terminal reports whether the session stopped accepting joins and mutations.
func (s SessionStatus) Terminal() bool {
	return s == StatusEnded || s == StatusArchived
}

// CanTransitionTo reports whether moving to next is a legal lifecycle step.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case StatusScheduled:
		return next == StatusActive
	case StatusActive:
		return next == StatusPaused || next == StatusEnded
	case StatusPaused:
		return next == StatusActive || next == StatusEnded
	case StatusEnded:
		return next == StatusArchived
	default:
		return false
	}
}
