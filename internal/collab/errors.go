package collab

import "errors"

// Sentinel errors surfaced by the registry and hub. Handlers translate these
// into API error codes; the gateway mirrors them onto error frames.
var (
	// ErrSessionNotFound indicates no session was ever registered with the backing store.
	ErrSessionNotFound = errors.New("collab: session not found")
	// ErrSessionFull indicates the active participant limit has been reached.
	ErrSessionFull = errors.New("collab: session full")
	// ErrSessionEnded indicates the session no longer accepts joins or mutations.
	ErrSessionEnded = errors.New("collab: session ended")
	// ErrInvalidTransition indicates an out-of-order lifecycle command.
	ErrInvalidTransition = errors.New("collab: invalid status transition")
	// ErrMalformedFrame indicates an inbound payload that could not be decoded.
	ErrMalformedFrame = errors.New("collab: malformed frame")
	// ErrHubClosed indicates the hub mailbox is no longer accepting commands.
	ErrHubClosed = errors.New("collab: hub closed")
)
