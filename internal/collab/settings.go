package collab

import "time"

// Settings tunes hub and gateway behaviour. Zero values fall back to the
// documented defaults.
type Settings struct {
	// HeartbeatInterval is how often the server pings each connection.
	HeartbeatInterval time.Duration
	// HeartbeatTimeout evicts a connection after this much silence.
	HeartbeatTimeout time.Duration
	// SweepInterval is how often a hub scans for timed-out connections.
	SweepInterval time.Duration
	// SendBuffer bounds each connection's outbound queue, in frames.
	SendBuffer int
	// MailboxSize bounds the hub command mailbox.
	MailboxSize int
	// SnapshotHistory is how many recent chat messages join snapshots carry.
	SnapshotHistory int
	// MaxMessageLength caps chat message content, in runes.
	MaxMessageLength int
	// MaxParticipantsDefault applies when a session was created without a limit.
	MaxParticipantsDefault int
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		HeartbeatInterval:      25 * time.Second,
		HeartbeatTimeout:       60 * time.Second,
		SweepInterval:          10 * time.Second,
		SendBuffer:             64,
		MailboxSize:            256,
		SnapshotHistory:        50,
		MaxMessageLength:       4000,
		MaxParticipantsDefault: 16,
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.HeartbeatInterval <= 0 {
		s.HeartbeatInterval = def.HeartbeatInterval
	}
	if s.HeartbeatTimeout <= 0 {
		s.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if s.SweepInterval <= 0 {
		s.SweepInterval = def.SweepInterval
	}
	if s.SendBuffer <= 0 {
		s.SendBuffer = def.SendBuffer
	}
	if s.MailboxSize <= 0 {
		s.MailboxSize = def.MailboxSize
	}
	if s.SnapshotHistory <= 0 {
		s.SnapshotHistory = def.SnapshotHistory
	}
	if s.MaxMessageLength <= 0 {
		s.MaxMessageLength = def.MaxMessageLength
	}
	if s.MaxParticipantsDefault <= 0 {
		s.MaxParticipantsDefault = def.MaxParticipantsDefault
	}
	return s
}
