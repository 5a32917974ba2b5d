package models

import (
	"time"

	"gorm.io/datatypes"
)

// Session status values. Transitions only move forward along
// scheduled -> active <-> paused -> ended -> archived.
const (
	SessionStatusScheduled = "scheduled"
	SessionStatusActive    = "active"
	SessionStatusPaused    = "paused"
	SessionStatusEnded     = "ended"
	SessionStatusArchived  = "archived"
)

// Session represents a persisted collaborative session and its lifecycle.
type Session struct {
	BaseModel

	Title           string         `gorm:"type:varchar(255);not null" json:"title"`
	Status          string         `gorm:"type:varchar(32);not null;index" json:"status"`
	OwnerID         string         `gorm:"type:uuid;not null;index" json:"owner_id"`
	MaxParticipants int            `gorm:"not null;default:0" json:"max_participants"`
	FeaturesEnabled datatypes.JSON `gorm:"type:json" json:"features_enabled,omitempty"`
	ScheduledStart  *time.Time     `gorm:"index" json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time     `json:"scheduled_end,omitempty"`
	ActualStart     *time.Time     `json:"actual_start,omitempty"`
	ActualEnd       *time.Time     `json:"actual_end,omitempty"`

	Participants []Participant `gorm:"foreignKey:SessionID" json:"participants,omitempty"`
	Messages     []ChatMessage `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
	Documents    []Document    `gorm:"foreignKey:SessionID" json:"documents,omitempty"`
}

// Participant stores per-user participation metadata. The record outlives any
// single connection so chat attribution and reconnects keep working.
type Participant struct {
	SessionID   string     `gorm:"type:uuid;primaryKey" json:"session_id"`
	UserID      string     `gorm:"type:uuid;primaryKey" json:"user_id"`
	DisplayName string     `gorm:"type:varchar(255);not null" json:"display_name"`
	Role        string     `gorm:"type:varchar(20);not null;index" json:"role"`
	JoinedAt    time.Time  `gorm:"not null;index" json:"joined_at"`
	LeftAt      *time.Time `gorm:"index" json:"left_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Session *Session `gorm:"foreignKey:SessionID" json:"session,omitempty"`
}

// ChatMessage captures a sequenced chat entry. Immutable once sequenced.
type ChatMessage struct {
	BaseModel

	SessionID      string `gorm:"type:uuid;not null;index:idx_chat_session_seq,unique" json:"session_id"`
	SenderID       string `gorm:"type:uuid;not null;index" json:"sender_id"`
	Content        string `gorm:"type:text;not null" json:"content"`
	ContentType    string `gorm:"type:varchar(32);not null;default:text" json:"content_type"`
	SequenceNumber uint64 `gorm:"not null;index:idx_chat_session_seq,unique" json:"sequence_number"`

	Session *Session `gorm:"foreignKey:SessionID" json:"session,omitempty"`
}

// Document stores shared document content with an optimistic version counter.
type Document struct {
	BaseModel

	SessionID    string `gorm:"type:uuid;not null;index" json:"session_id"`
	Title        string `gorm:"type:varchar(255);not null" json:"title"`
	Content      string `gorm:"type:text" json:"content"`
	ContentType  string `gorm:"type:varchar(32);not null;default:text" json:"content_type"`
	Version      uint64 `gorm:"not null;default:0" json:"version"`
	LastEditedBy string `gorm:"type:uuid" json:"last_edited_by,omitempty"`

	Session *Session `gorm:"foreignKey:SessionID" json:"session,omitempty"`
}
