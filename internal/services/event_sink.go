package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coachsync/coachsync/internal/collab"
	"github.com/coachsync/coachsync/internal/models"
	"github.com/coachsync/coachsync/pkg/logger"
)

const defaultSinkQueueSize = 512

// EventSink durably records events committed by session hubs. It implements
// collab.EventStore: the Record methods never block the calling hub; writes
// happen on the sink's own worker goroutine. Events are dropped with a log
// entry when the queue saturates, which only widens the replay window a
// reconnecting client observes.
type EventSink struct {
	db      *gorm.DB
	log     *zap.Logger
	timeNow func() time.Time

	queue chan sinkEvent
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

type sinkEventKind int

const (
	sinkMessage sinkEventKind = iota
	sinkDocument
	sinkParticipant
	sinkStatus
)

type sinkEvent struct {
	kind        sinkEventKind
	sessionID   string
	message     collab.ChatMessageRecord
	document    collab.DocumentState
	participant collab.ParticipantInfo
	status      collab.SessionStatus
	at          time.Time
}

// EventSinkOption customises sink construction.
type EventSinkOption func(*EventSink)

// WithSinkQueueSize bounds the in-flight event queue.
func WithSinkQueueSize(size int) EventSinkOption {
	return func(s *EventSink) {
		if size > 0 {
			s.queue = make(chan sinkEvent, size)
		}
	}
}

// WithSinkClock overrides the clock used for derived timestamps (test helper).
func WithSinkClock(clock func() time.Time) EventSinkOption {
	return func(s *EventSink) {
		if clock != nil {
			s.timeNow = clock
		}
	}
}

// NewEventSink constructs the sink and starts its worker.
func NewEventSink(db *gorm.DB, opts ...EventSinkOption) (*EventSink, error) {
	if db == nil {
		return nil, errors.New("event sink: db is required")
	}

	sink := &EventSink{
		db:      db,
		log:     logger.WithModule("collab.sink"),
		timeNow: time.Now,
		queue:   make(chan sinkEvent, defaultSinkQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(sink)
	}

	sink.wg.Add(1)
	go sink.run()

	return sink, nil
}

// RecordMessage implements collab.EventStore.
func (s *EventSink) RecordMessage(msg collab.ChatMessageRecord) {
	s.enqueue(sinkEvent{kind: sinkMessage, sessionID: msg.SessionID, message: msg})
}

// RecordDocument implements collab.EventStore.
func (s *EventSink) RecordDocument(sessionID string, doc collab.DocumentState) {
	s.enqueue(sinkEvent{kind: sinkDocument, sessionID: sessionID, document: doc})
}

// RecordParticipant implements collab.EventStore.
func (s *EventSink) RecordParticipant(sessionID string, participant collab.ParticipantInfo) {
	s.enqueue(sinkEvent{kind: sinkParticipant, sessionID: sessionID, participant: participant})
}

// RecordStatus implements collab.EventStore.
func (s *EventSink) RecordStatus(sessionID string, status collab.SessionStatus, at time.Time) {
	s.enqueue(sinkEvent{kind: sinkStatus, sessionID: sessionID, status: status, at: at})
}

// Close drains outstanding events and stops the worker.
func (s *EventSink) Close() {
	s.once.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

func (s *EventSink) enqueue(ev sinkEvent) {
	select {
	case s.queue <- ev:
	case <-s.done:
	default:
		s.log.Warn("event queue full, dropping event",
			zap.String("session_id", ev.sessionID),
			zap.Int("kind", int(ev.kind)),
		)
	}
}

func (s *EventSink) run() {
	defer s.wg.Done()

	for {
		select {
		case ev := <-s.queue:
			s.apply(ev)
		case <-s.done:
			// Drain whatever was queued before shutdown.
			for {
				select {
				case ev := <-s.queue:
					s.apply(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *EventSink) apply(ev sinkEvent) {
	ctx := context.Background()

	var err error
	switch ev.kind {
	case sinkMessage:
		err = s.applyMessage(ctx, ev.message)
	case sinkDocument:
		err = s.applyDocument(ctx, ev.sessionID, ev.document)
	case sinkParticipant:
		err = s.applyParticipant(ctx, ev.sessionID, ev.participant)
	case sinkStatus:
		err = s.applyStatus(ctx, ev.sessionID, ev.status, ev.at)
	}

	if err != nil {
		s.log.Error("failed to persist event",
			zap.String("session_id", ev.sessionID),
			zap.Int("kind", int(ev.kind)),
			zap.Error(err),
		)
	}
}

func (s *EventSink) applyMessage(ctx context.Context, msg collab.ChatMessageRecord) error {
	record := models.ChatMessage{
		BaseModel:      models.BaseModel{ID: msg.ID, CreatedAt: msg.CreatedAt},
		SessionID:      msg.SessionID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		ContentType:    msg.ContentType,
		SequenceNumber: msg.SequenceNumber,
	}
	// Sequenced messages are immutable; replays after a crash are no-ops.
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
}

func (s *EventSink) applyDocument(ctx context.Context, sessionID string, doc collab.DocumentState) error {
	record := models.Document{
		BaseModel:    models.BaseModel{ID: doc.ID},
		SessionID:    sessionID,
		Title:        doc.Title,
		Content:      doc.Content,
		ContentType:  doc.ContentType,
		Version:      doc.Version,
		LastEditedBy: doc.LastEditedBy,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "content", "content_type", "version", "last_edited_by", "updated_at"}),
	}).Create(&record).Error
}

func (s *EventSink) applyParticipant(ctx context.Context, sessionID string, participant collab.ParticipantInfo) error {
	record := models.Participant{
		SessionID:   sessionID,
		UserID:      participant.ID,
		DisplayName: participant.DisplayName,
		Role:        participant.Role,
		JoinedAt:    participant.JoinedAt,
	}
	if !participant.Active {
		now := s.timeNow()
		record.LeftAt = &now
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "role", "left_at", "updated_at"}),
	}).Create(&record).Error
}

func (s *EventSink) applyStatus(ctx context.Context, sessionID string, status collab.SessionStatus, at time.Time) error {
	updates := map[string]any{"status": string(status)}
	switch status {
	case collab.StatusActive:
		updates["actual_start"] = gorm.Expr("COALESCE(actual_start, ?)", at)
	case collab.StatusEnded:
		updates["actual_end"] = at
	}
	return s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", sessionID).
		Updates(updates).Error
}
