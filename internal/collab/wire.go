package collab

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Frame type identifiers shared with clients.
const (
	TypePing         = "ping"
	TypeSendMessage  = "send_message"
	TypeEditDocument = "edit_document"

	TypePong              = "pong"
	TypeSnapshot          = "snapshot"
	TypeNewMessage        = "new_message"
	TypeParticipantJoined = "participant_joined"
	TypeParticipantLeft   = "participant_left"
	TypeDocumentUpdated   = "document_updated"
	TypeStatusChange      = "status_change"
	TypeConflict          = "conflict"
	TypeError             = "error"
)

// Envelope is the transport-agnostic JSON wrapper for every frame.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope wraps a payload into an outbound envelope stamped with now.
// Marshalling outbound payloads never fails for the types this package
// produces, so encoding errors collapse into an error frame.
func NewEnvelope(frameType string, payload any, now time.Time) Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{
			Type:      TypeError,
			Data:      mustMarshal(ErrorPayload{Code: "INTERNAL_ERROR", Message: "payload encoding failed"}),
			Timestamp: now,
		}
	}
	return Envelope{Type: frameType, Data: data, Timestamp: now}
}

func mustMarshal(payload any) json.RawMessage {
	data, _ := json.Marshal(payload)
	return data
}

// Inbound is the closed set of frames clients may send. Every hub-side
// consumer switches over the concrete types exhaustively.
type Inbound interface {
	inboundFrame()
}

// PingFrame requests a pong and refreshes the sender's heartbeat.
type PingFrame struct{}

// SendMessageFrame posts a chat message to the session.
type SendMessageFrame struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// EditDocumentFrame attempts an optimistic write against a shared document.
type EditDocumentFrame struct {
	DocumentID      string `json:"document_id"`
	ExpectedVersion uint64 `json:"expected_version"`
	Content         string `json:"content"`
	Title           string `json:"title,omitempty"`
	ContentType     string `json:"content_type,omitempty"`
}

func (PingFrame) inboundFrame()         {}
func (SendMessageFrame) inboundFrame()  {}
func (EditDocumentFrame) inboundFrame() {}

// DecodeInbound parses a raw payload into one of the recognised inbound
// frames. Unknown types and undecodable payloads report ErrMalformedFrame.
func DecodeInbound(payload []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch strings.ToLower(strings.TrimSpace(env.Type)) {
	case TypePing:
		return PingFrame{}, nil
	case TypeSendMessage:
		var frame SendMessageFrame
		if err := unmarshalData(env.Data, &frame); err != nil {
			return nil, err
		}
		if strings.TrimSpace(frame.Content) == "" {
			return nil, fmt.Errorf("%w: send_message requires content", ErrMalformedFrame)
		}
		return frame, nil
	case TypeEditDocument:
		var frame EditDocumentFrame
		if err := unmarshalData(env.Data, &frame); err != nil {
			return nil, err
		}
		if strings.TrimSpace(frame.DocumentID) == "" {
			return nil, fmt.Errorf("%w: edit_document requires document_id", ErrMalformedFrame)
		}
		return frame, nil
	default:
		return nil, fmt.Errorf("%w: unknown frame type %q", ErrMalformedFrame, env.Type)
	}
}

func unmarshalData(data json.RawMessage, out any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformedFrame)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

// Outbound payloads.

// NewMessagePayload carries a committed chat message.
type NewMessagePayload struct {
	MessageID      string    `json:"message_id"`
	SessionID      string    `json:"session_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	ContentType    string    `json:"content_type"`
	SequenceNumber uint64    `json:"sequence_number"`
	CreatedAt      time.Time `json:"created_at"`
}

// ParticipantJoinedPayload announces a participant connecting.
type ParticipantJoinedPayload struct {
	Participant ParticipantInfo `json:"participant"`
}

// ParticipantLeftPayload announces a participant disconnecting.
type ParticipantLeftPayload struct {
	ParticipantID string `json:"participant_id"`
	Reason        string `json:"reason,omitempty"`
}

// DocumentUpdatedPayload carries the authoritative state after an accepted write.
type DocumentUpdatedPayload struct {
	DocumentID   string    `json:"document_id"`
	Title        string    `json:"title"`
	Version      uint64    `json:"version"`
	Content      string    `json:"content"`
	ContentType  string    `json:"content_type"`
	LastEditedBy string    `json:"last_edited_by"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StatusChangePayload announces a lifecycle transition.
type StatusChangePayload struct {
	Status SessionStatus `json:"status"`
}

// ConflictPayload returns the authoritative document state to a writer whose
// expected version lost the race. The writer rebases and retries.
type ConflictPayload struct {
	DocumentID     string `json:"document_id"`
	CurrentVersion uint64 `json:"current_version"`
	CurrentContent string `json:"current_content"`
}

// ErrorPayload reports a synchronous, per-connection failure.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SnapshotPayload gives a joining connection everything needed to render
// without missing history.
type SnapshotPayload struct {
	SessionID    string              `json:"session_id"`
	Title        string              `json:"title"`
	Status       SessionStatus       `json:"status"`
	Participants []ParticipantInfo   `json:"participants"`
	Messages     []ChatMessageRecord `json:"messages"`
	Documents    []DocumentState     `json:"documents"`
}
