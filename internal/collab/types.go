package collab

import "time"

// ParticipantInfo describes one participant of a session. Active is derived
// from whether a live connection is currently registered for the participant.
type ParticipantInfo struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
	Active      bool      `json:"is_active"`
}

// ChatMessageRecord is a committed, sequenced chat message.
type ChatMessageRecord struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	ContentType    string    `json:"content_type"`
	SequenceNumber uint64    `json:"sequence_number"`
	CreatedAt      time.Time `json:"created_at"`
}

// SessionInfo is the hub-visible description of a session.
type SessionInfo struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	OwnerID         string        `json:"owner_id"`
	Status          SessionStatus `json:"status"`
	MaxParticipants int           `json:"max_participants"`
	Features        []string      `json:"features_enabled,omitempty"`
	ActiveCount     int           `json:"active_participants"`
	LastActivityAt  time.Time     `json:"last_activity_at"`
}

// HubSeed is the state a hub boots from, loaded by the persistence
// collaborator: the session row, surviving participant entries, recent chat
// history and current documents.
type HubSeed struct {
	Session      SessionInfo
	Participants []ParticipantInfo
	Messages     []ChatMessageRecord
	Documents    []DocumentState
}

// EventStore durably records events committed by a hub. Implementations must
// not block: the hub invokes these from its processing turn. The gorm-backed
// implementation queues internally and writes from its own worker.
type EventStore interface {
	RecordMessage(msg ChatMessageRecord)
	RecordDocument(sessionID string, doc DocumentState)
	RecordParticipant(sessionID string, participant ParticipantInfo)
	RecordStatus(sessionID string, status SessionStatus, at time.Time)
}

// NopEventStore discards every event. Used when no persistence collaborator
// is wired, e.g. in tests.
type NopEventStore struct{}

func (NopEventStore) RecordMessage(ChatMessageRecord)               {}
func (NopEventStore) RecordDocument(string, DocumentState)          {}
func (NopEventStore) RecordParticipant(string, ParticipantInfo)     {}
func (NopEventStore) RecordStatus(string, SessionStatus, time.Time) {}

// Conn is the hub's view of a transport connection. The gateway owns the
// socket; the hub only holds this reference and the connection ID.
type Conn interface {
	// ID returns the unique connection identifier.
	ID() string
	// TrySend enqueues a frame without blocking. It returns false when the
	// outbound queue is full; the hub then drops the connection rather than
	// stalling the session.
	TrySend(env Envelope) bool
	// Kick asks the gateway to close the connection.
	Kick(reason string)
}
