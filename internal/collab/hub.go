package collab

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coachsync/coachsync/pkg/logger"
	"github.com/coachsync/coachsync/pkg/metrics"
)

// Hub is the single-writer owner of one session's mutable state. Every
// mutation (join, leave, chat, document edit, status change) is submitted to
// the mailbox and processed one at a time in arrival order on the hub's own
// goroutine; presence, sequencer and document store are only ever touched
// from there. Broadcasting is fire-and-forget per connection so a slow
// consumer never stalls the session.
type Hub struct {
	info     SessionInfo
	settings Settings
	store    EventStore
	log      *zap.Logger
	timeNow  func() time.Time

	participants map[string]*participantState
	conns        map[string]Conn
	connOwner    map[string]string

	presence *PresenceTracker
	seq      *Sequencer
	docs     *DocumentStore
	history  []ChatMessageRecord

	mailbox   chan hubCommand
	closed    chan struct{}
	closeOnce sync.Once
}

type participantState struct {
	info   ParticipantInfo
	connID string
}

// HubOption customises hub construction.
type HubOption func(*Hub)

// WithEventStore wires the persistence collaborator for committed events.
func WithEventStore(store EventStore) HubOption {
	return func(h *Hub) {
		if store != nil {
			h.store = store
		}
	}
}

// WithHubClock overrides the clock used for timestamps (test helper).
func WithHubClock(clock func() time.Time) HubOption {
	return func(h *Hub) {
		if clock != nil {
			h.timeNow = clock
		}
	}
}

// NewHub boots a hub from persisted state and starts its mailbox loop.
func NewHub(seed HubSeed, settings Settings, opts ...HubOption) *Hub {
	settings = settings.withDefaults()

	info := seed.Session
	if info.Status == "" {
		info.Status = StatusScheduled
	}
	if info.MaxParticipants <= 0 {
		info.MaxParticipants = settings.MaxParticipantsDefault
	}

	h := &Hub{
		info:         info,
		settings:     settings,
		store:        NopEventStore{},
		log:          logger.WithModule("collab.hub").With(zap.String("session_id", info.ID)),
		timeNow:      time.Now,
		participants: make(map[string]*participantState),
		conns:        make(map[string]Conn),
		connOwner:    make(map[string]string),
		presence:     NewPresenceTracker(),
		docs:         NewDocumentStore(),
		mailbox:      make(chan hubCommand, settings.MailboxSize),
		closed:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	var lastSeq uint64
	for _, msg := range seed.Messages {
		if msg.SequenceNumber > lastSeq {
			lastSeq = msg.SequenceNumber
		}
		h.history = append(h.history, msg)
	}
	h.seq = NewSequencer(lastSeq)
	h.trimHistory()

	for _, p := range seed.Participants {
		p.Active = false
		h.participants[p.ID] = &participantState{info: p}
	}
	for _, doc := range seed.Documents {
		h.docs.Load(doc)
	}

	h.info.ActiveCount = 0
	h.info.LastActivityAt = h.timeNow()

	go h.run()
	return h
}

// ID returns the session identifier the hub owns.
func (h *Hub) ID() string {
	return h.info.ID
}

// Join registers a connection for the participant. On success the state
// snapshot is enqueued on the hub's own turn as the connection's first frame,
// so every later broadcast the connection observes is newer than the
// snapshot. Errors: ErrSessionEnded, ErrSessionFull, ErrHubClosed.
func (h *Hub) Join(ctx context.Context, conn Conn, participant ParticipantInfo) error {
	reply := make(chan error, 1)
	if err := h.submit(ctx, joinCmd{conn: conn, participant: participant, reply: reply}); err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-h.closed:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect runs the leave protocol for a connection. Safe to call for
// connections the hub no longer knows about.
func (h *Hub) Disconnect(connID, reason string) {
	_ = h.submit(context.Background(), disconnectCmd{connID: connID, reason: reason})
}

// HandleFrame routes a decoded inbound frame into the mailbox. Frames are
// dropped with a log entry when the mailbox is saturated; the client retries
// or is evicted by the heartbeat sweep.
func (h *Hub) HandleFrame(connID string, frame Inbound) {
	select {
	case h.mailbox <- frameCmd{connID: connID, frame: frame}:
	case <-h.closed:
	default:
		h.log.Warn("mailbox full, dropping frame", zap.String("conn_id", connID))
	}
}

// Touch refreshes a connection's heartbeat. Dropped when the mailbox is
// saturated; the next frame or pong touches again.
func (h *Hub) Touch(connID string) {
	select {
	case h.mailbox <- touchCmd{connID: connID}:
	case <-h.closed:
	default:
	}
}

// ChangeStatus drives the lifecycle state machine. Re-applying the current
// terminal status is idempotent and returns nil.
func (h *Hub) ChangeStatus(ctx context.Context, next SessionStatus) error {
	reply := make(chan error, 1)
	if err := h.submit(ctx, statusCmd{next: next, reply: reply}); err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-h.closed:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Info returns a point-in-time view of the session.
func (h *Hub) Info(ctx context.Context) (SessionInfo, error) {
	reply := make(chan SessionInfo, 1)
	if err := h.submit(ctx, infoCmd{reply: reply}); err != nil {
		return SessionInfo{}, err
	}

	select {
	case info := <-reply:
		return info, nil
	case <-h.closed:
		return SessionInfo{}, ErrHubClosed
	case <-ctx.Done():
		return SessionInfo{}, ctx.Err()
	}
}

// Stop shuts the mailbox loop down and closes every remaining connection.
func (h *Hub) Stop() {
	h.closeOnce.Do(func() {
		close(h.closed)
	})
}

func (h *Hub) submit(ctx context.Context, cmd hubCommand) error {
	select {
	case h.mailbox <- cmd:
		return nil
	case <-h.closed:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Mailbox commands form a closed set; run dispatches exhaustively.
type hubCommand interface {
	hubCommand()
}

type joinCmd struct {
	conn        Conn
	participant ParticipantInfo
	reply       chan error
}

type disconnectCmd struct {
	connID string
	reason string
}

type frameCmd struct {
	connID string
	frame  Inbound
}

type statusCmd struct {
	next  SessionStatus
	reply chan error
}

type infoCmd struct {
	reply chan SessionInfo
}

// touchCmd refreshes a connection's heartbeat without any other effect;
// posted by the gateway when a transport-level pong arrives.
type touchCmd struct {
	connID string
}

func (joinCmd) hubCommand()       {}
func (disconnectCmd) hubCommand() {}
func (frameCmd) hubCommand()      {}
func (statusCmd) hubCommand()     {}
func (infoCmd) hubCommand()       {}
func (touchCmd) hubCommand()      {}

func (h *Hub) run() {
	sweep := time.NewTicker(h.settings.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case cmd := <-h.mailbox:
			h.dispatch(cmd)
		case <-sweep.C:
			// The tick is handled on this goroutine like any other mailbox
			// message, preserving single-writer semantics.
			h.handleSweep(h.timeNow())
		case <-h.closed:
			h.shutdown()
			return
		}
	}
}

func (h *Hub) dispatch(cmd hubCommand) {
	switch c := cmd.(type) {
	case joinCmd:
		c.reply <- h.handleJoin(c.conn, c.participant)
	case disconnectCmd:
		h.handleDisconnect(c.connID, c.reason)
	case frameCmd:
		h.handleFrame(c.connID, c.frame)
	case statusCmd:
		c.reply <- h.handleStatus(c.next)
	case infoCmd:
		c.reply <- h.snapshotInfo()
	case touchCmd:
		h.presence.Touch(c.connID, h.timeNow())
	}
}

func (h *Hub) handleJoin(conn Conn, participant ParticipantInfo) error {
	if h.info.Status.Terminal() {
		return ErrSessionEnded
	}

	now := h.timeNow()
	participant.ID = strings.TrimSpace(participant.ID)

	state, rejoining := h.participants[participant.ID]
	if rejoining && state.connID != "" {
		// A second connection for the same participant supersedes the first.
		h.dropConnection(state.connID, "superseded")
	}

	if h.activeCount() >= h.info.MaxParticipants {
		return ErrSessionFull
	}

	if rejoining {
		state.info.Active = true
		if participant.DisplayName != "" {
			state.info.DisplayName = participant.DisplayName
		}
		if participant.Role != "" {
			state.info.Role = participant.Role
		}
	} else {
		participant.JoinedAt = now
		participant.Active = true
		state = &participantState{info: participant}
		h.participants[participant.ID] = state
	}
	state.connID = conn.ID()

	h.conns[conn.ID()] = conn
	h.connOwner[conn.ID()] = participant.ID
	h.presence.Track(conn.ID(), now)
	h.info.LastActivityAt = now
	h.info.ActiveCount = h.activeCount()

	h.store.RecordParticipant(h.info.ID, state.info)

	h.broadcast(NewEnvelope(TypeParticipantJoined, ParticipantJoinedPayload{Participant: state.info}, now), conn.ID())

	// The snapshot is enqueued on this turn, before any later command can
	// broadcast to the new connection, so it is always the joiner's first
	// frame and its base for applying subsequent events.
	h.sendTo(conn.ID(), NewEnvelope(TypeSnapshot, h.buildSnapshot(), now))

	h.log.Debug("participant joined",
		zap.String("participant_id", participant.ID),
		zap.Int("active", h.info.ActiveCount),
	)

	return nil
}

func (h *Hub) handleDisconnect(connID, reason string) {
	conn, ok := h.conns[connID]
	if !ok {
		return
	}

	now := h.timeNow()
	participantID := h.connOwner[connID]

	delete(h.conns, connID)
	delete(h.connOwner, connID)
	h.presence.Forget(connID)

	// The participant entry survives the connection so chat attribution and
	// reconnects keep working.
	if state, ok := h.participants[participantID]; ok && state.connID == connID {
		state.connID = ""
		state.info.Active = false
		h.store.RecordParticipant(h.info.ID, state.info)
	}
	h.info.ActiveCount = h.activeCount()
	h.info.LastActivityAt = now

	conn.Kick(reason)

	h.broadcast(NewEnvelope(TypeParticipantLeft, ParticipantLeftPayload{
		ParticipantID: participantID,
		Reason:        reason,
	}, now), "")

	h.log.Debug("participant left",
		zap.String("participant_id", participantID),
		zap.String("reason", reason),
	)
}

func (h *Hub) handleFrame(connID string, frame Inbound) {
	now := h.timeNow()
	h.presence.Touch(connID, now)

	senderID, ok := h.connOwner[connID]
	if !ok {
		return
	}
	h.info.LastActivityAt = now

	switch f := frame.(type) {
	case PingFrame:
		h.sendTo(connID, NewEnvelope(TypePong, struct{}{}, now))
	case SendMessageFrame:
		h.handleChat(connID, senderID, f, now)
	case EditDocumentFrame:
		h.handleEdit(connID, senderID, f, now)
	}
}

func (h *Hub) handleChat(connID, senderID string, frame SendMessageFrame, now time.Time) {
	if h.info.Status.Terminal() {
		h.sendError(connID, "SESSION_ENDED", "session has ended")
		return
	}

	content := strings.TrimSpace(frame.Content)
	if content == "" {
		return
	}
	if utf8.RuneCountInString(content) > h.settings.MaxMessageLength {
		h.sendError(connID, "BAD_REQUEST", "message content exceeds maximum length")
		return
	}

	contentType := strings.TrimSpace(frame.ContentType)
	if contentType == "" {
		contentType = "text"
	}

	record := ChatMessageRecord{
		ID:             uuid.NewString(),
		SessionID:      h.info.ID,
		SenderID:       senderID,
		Content:        content,
		ContentType:    contentType,
		SequenceNumber: h.seq.Next(),
		CreatedAt:      now,
	}

	h.history = append(h.history, record)
	h.trimHistory()
	h.store.RecordMessage(record)
	metrics.ChatMessages.Inc()

	h.broadcast(NewEnvelope(TypeNewMessage, NewMessagePayload{
		MessageID:      record.ID,
		SessionID:      record.SessionID,
		SenderID:       record.SenderID,
		Content:        record.Content,
		ContentType:    record.ContentType,
		SequenceNumber: record.SequenceNumber,
		CreatedAt:      record.CreatedAt,
	}, now), "")
}

func (h *Hub) handleEdit(connID, editorID string, frame EditDocumentFrame, now time.Time) {
	if h.info.Status.Terminal() {
		h.sendError(connID, "SESSION_ENDED", "session has ended")
		return
	}

	doc, conflict := h.docs.Write(
		frame.DocumentID,
		frame.ExpectedVersion,
		frame.Content,
		frame.Title,
		frame.ContentType,
		editorID,
		now,
	)
	if conflict != nil {
		metrics.DocumentWrites.WithLabelValues("conflict").Inc()
		h.sendTo(connID, NewEnvelope(TypeConflict, ConflictPayload{
			DocumentID:     conflict.DocumentID,
			CurrentVersion: conflict.CurrentVersion,
			CurrentContent: conflict.CurrentContent,
		}, now))
		return
	}

	metrics.DocumentWrites.WithLabelValues("accepted").Inc()
	h.store.RecordDocument(h.info.ID, doc)

	h.broadcast(NewEnvelope(TypeDocumentUpdated, DocumentUpdatedPayload{
		DocumentID:   doc.ID,
		Title:        doc.Title,
		Version:      doc.Version,
		Content:      doc.Content,
		ContentType:  doc.ContentType,
		LastEditedBy: doc.LastEditedBy,
		UpdatedAt:    doc.UpdatedAt,
	}, now), "")
}

func (h *Hub) handleStatus(next SessionStatus) error {
	if !next.Valid() {
		return ErrInvalidTransition
	}
	current := h.info.Status
	if next == current {
		// Re-issuing the current state (e.g. end on Ended) is idempotent.
		return nil
	}
	if !current.CanTransitionTo(next) {
		return ErrInvalidTransition
	}

	now := h.timeNow()
	h.info.Status = next
	h.info.LastActivityAt = now
	h.store.RecordStatus(h.info.ID, next, now)

	h.broadcast(NewEnvelope(TypeStatusChange, StatusChangePayload{Status: next}, now), "")

	h.log.Info("status changed",
		zap.String("from", string(current)),
		zap.String("to", string(next)),
	)

	if next == StatusEnded {
		// Session end cancels pending sends and closes every connection.
		for connID := range h.conns {
			h.dropConnection(connID, "session_ended")
		}
		h.info.ActiveCount = 0
	}

	return nil
}

func (h *Hub) handleSweep(now time.Time) {
	expired := h.presence.Sweep(now, h.settings.HeartbeatTimeout)
	for _, connID := range expired {
		metrics.EvictedConnections.Inc()
		h.handleDisconnect(connID, "heartbeat_timeout")
	}
}

func (h *Hub) shutdown() {
	for connID, conn := range h.conns {
		delete(h.conns, connID)
		delete(h.connOwner, connID)
		conn.Kick("hub_stopped")
	}
	h.log.Debug("hub stopped")
}

// dropConnection removes a connection without running the leave broadcast;
// used when a connection is superseded or the whole session is torn down.
func (h *Hub) dropConnection(connID, reason string) {
	conn, ok := h.conns[connID]
	if !ok {
		return
	}
	delete(h.conns, connID)
	participantID := h.connOwner[connID]
	delete(h.connOwner, connID)
	h.presence.Forget(connID)
	if state, ok := h.participants[participantID]; ok && state.connID == connID {
		state.connID = ""
		state.info.Active = false
	}
	conn.Kick(reason)
}

func (h *Hub) broadcast(env Envelope, exceptConnID string) {
	var stalled []string
	for connID, conn := range h.conns {
		if connID == exceptConnID {
			continue
		}
		if !conn.TrySend(env) {
			stalled = append(stalled, connID)
		}
	}

	// A full outbound queue disconnects that one client instead of
	// backpressuring the session.
	for _, connID := range stalled {
		metrics.DroppedClients.Inc()
		h.handleDisconnect(connID, "backpressure")
	}
}

func (h *Hub) sendTo(connID string, env Envelope) {
	conn, ok := h.conns[connID]
	if !ok {
		return
	}
	if !conn.TrySend(env) {
		metrics.DroppedClients.Inc()
		h.handleDisconnect(connID, "backpressure")
	}
}

func (h *Hub) sendError(connID, code, message string) {
	h.sendTo(connID, NewEnvelope(TypeError, ErrorPayload{Code: code, Message: message}, h.timeNow()))
}

func (h *Hub) buildSnapshot() SnapshotPayload {
	participants := make([]ParticipantInfo, 0, len(h.participants))
	for _, state := range h.participants {
		participants = append(participants, state.info)
	}
	sortParticipants(participants)

	messages := make([]ChatMessageRecord, len(h.history))
	copy(messages, h.history)

	return SnapshotPayload{
		SessionID:    h.info.ID,
		Title:        h.info.Title,
		Status:       h.info.Status,
		Participants: participants,
		Messages:     messages,
		Documents:    h.docs.List(),
	}
}

func (h *Hub) snapshotInfo() SessionInfo {
	info := h.info
	info.ActiveCount = h.activeCount()
	return info
}

func (h *Hub) activeCount() int {
	count := 0
	for _, state := range h.participants {
		if state.connID != "" {
			count++
		}
	}
	return count
}

func (h *Hub) trimHistory() {
	if extra := len(h.history) - h.settings.SnapshotHistory; extra > 0 {
		h.history = append(h.history[:0], h.history[extra:]...)
	}
}

func sortParticipants(participants []ParticipantInfo) {
	sort.SliceStable(participants, func(i, j int) bool {
		if participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].ID < participants[j].ID
		}
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})
}
