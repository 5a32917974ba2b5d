package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/coachsync/coachsync/internal/collab"
	"github.com/coachsync/coachsync/internal/models"
)

const defaultHistoryLimit = 50

// CreateSessionParams carries the attributes required to schedule a session.
type CreateSessionParams struct {
	Title           string
	OwnerID         string
	MaxParticipants int
	Features        []string
	ScheduledStart  *time.Time
	ScheduledEnd    *time.Time
}

// CreateDocumentParams describes a shared document added to a session.
type CreateDocumentParams struct {
	SessionID   string
	Title       string
	Content     string
	ContentType string
	CreatedBy   string
}

// ListSessionsOptions filters session listings.
type ListSessionsOptions struct {
	Status  string
	OwnerID string
	Limit   int
	Offset  int
}

// SessionService persists sessions, participants, chat history and documents,
// and loads hub seeds for the collaboration registry.
type SessionService struct {
	db           *gorm.DB
	historyLimit int
	timeNow      func() time.Time
}

// SessionServiceOption customises service dependencies.
type SessionServiceOption func(*SessionService)

// WithHistoryLimit adjusts how many chat messages hub seeds replay.
func WithHistoryLimit(limit int) SessionServiceOption {
	return func(s *SessionService) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// WithServiceClock overrides the clock used for timestamps (test helper).
func WithServiceClock(clock func() time.Time) SessionServiceOption {
	return func(s *SessionService) {
		if clock != nil {
			s.timeNow = clock
		}
	}
}

// NewSessionService constructs a session service once the database is supplied.
func NewSessionService(db *gorm.DB, opts ...SessionServiceOption) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}

	svc := &SessionService{
		db:           db,
		historyLimit: defaultHistoryLimit,
		timeNow:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// CreateSession registers a new scheduled session.
func (s *SessionService) CreateSession(ctx context.Context, params CreateSessionParams) (*models.Session, error) {
	if s == nil {
		return nil, errors.New("session service: service not initialised")
	}
	ctx = ensureContext(ctx)

	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, errors.New("session service: title is required")
	}
	ownerID := strings.TrimSpace(params.OwnerID)
	if ownerID == "" {
		return nil, errors.New("session service: owner id is required")
	}

	session := models.Session{
		BaseModel:       models.BaseModel{ID: uuid.NewString()},
		Title:           title,
		Status:          models.SessionStatusScheduled,
		OwnerID:         ownerID,
		MaxParticipants: params.MaxParticipants,
		ScheduledStart:  params.ScheduledStart,
		ScheduledEnd:    params.ScheduledEnd,
	}

	if len(params.Features) > 0 {
		encoded, err := json.Marshal(params.Features)
		if err != nil {
			return nil, err
		}
		session.FeaturesEnabled = datatypes.JSON(encoded)
	}

	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, err
	}

	return &session, nil
}

// GetSession fetches a session by ID.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if s == nil {
		return nil, errors.New("session service: service not initialised")
	}
	ctx = ensureContext(ctx)

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, collab.ErrSessionNotFound
	}

	var session models.Session
	err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, collab.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	return &session, nil
}

// ListSessions returns sessions matching the supplied filters plus the total count.
func (s *SessionService) ListSessions(ctx context.Context, opts ListSessionsOptions) ([]models.Session, int64, error) {
	if s == nil {
		return nil, 0, errors.New("session service: service not initialised")
	}
	ctx = ensureContext(ctx)

	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Session{})
	if status := strings.TrimSpace(opts.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if ownerID := strings.TrimSpace(opts.OwnerID); ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var sessions []models.Session
	err := query.Order("created_at DESC").Limit(limit).Offset(opts.Offset).Find(&sessions).Error
	if err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}

// CreateDocument adds a shared document to a session at version zero.
func (s *SessionService) CreateDocument(ctx context.Context, params CreateDocumentParams) (*models.Document, error) {
	if s == nil {
		return nil, errors.New("session service: service not initialised")
	}
	ctx = ensureContext(ctx)

	if _, err := s.GetSession(ctx, params.SessionID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, errors.New("session service: document title is required")
	}

	contentType := strings.TrimSpace(params.ContentType)
	if contentType == "" {
		contentType = "text"
	}

	document := models.Document{
		BaseModel:    models.BaseModel{ID: uuid.NewString()},
		SessionID:    strings.TrimSpace(params.SessionID),
		Title:        title,
		Content:      params.Content,
		ContentType:  contentType,
		LastEditedBy: strings.TrimSpace(params.CreatedBy),
	}

	if err := s.db.WithContext(ctx).Create(&document).Error; err != nil {
		return nil, err
	}

	return &document, nil
}

// ListMessages returns persisted chat messages ordered by sequence number.
func (s *SessionService) ListMessages(ctx context.Context, sessionID string, limit int, beforeSeq uint64) ([]models.ChatMessage, error) {
	if s == nil {
		return nil, errors.New("session service: service not initialised")
	}
	ctx = ensureContext(ctx)

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, collab.ErrSessionNotFound
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := s.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Order("sequence_number DESC").
		Limit(limit)

	if beforeSeq > 0 {
		query = query.Where("sequence_number < ?", beforeSeq)
	}

	var rows []models.ChatMessage
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	// Reverse to delivery order
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	return rows, nil
}

// LoadSession implements collab.SessionLoader: it assembles the hub seed
// from the session row, surviving participants, recent chat history and
// current documents. Archived sessions never get a hub again.
func (s *SessionService) LoadSession(ctx context.Context, sessionID string) (collab.HubSeed, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return collab.HubSeed{}, err
	}
	if session.Status == models.SessionStatusArchived {
		return collab.HubSeed{}, collab.ErrSessionEnded
	}

	seed := collab.HubSeed{
		Session: collab.SessionInfo{
			ID:              session.ID,
			Title:           session.Title,
			OwnerID:         session.OwnerID,
			Status:          collab.SessionStatus(session.Status),
			MaxParticipants: session.MaxParticipants,
			Features:        decodeFeatures(session.FeaturesEnabled),
		},
	}

	var participants []models.Participant
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Find(&participants).Error; err != nil {
		return collab.HubSeed{}, err
	}
	for _, p := range participants {
		seed.Participants = append(seed.Participants, collab.ParticipantInfo{
			ID:          p.UserID,
			DisplayName: p.DisplayName,
			Role:        p.Role,
			JoinedAt:    p.JoinedAt,
		})
	}

	messages, err := s.ListMessages(ctx, sessionID, s.historyLimit, 0)
	if err != nil {
		return collab.HubSeed{}, err
	}
	for _, m := range messages {
		seed.Messages = append(seed.Messages, collab.ChatMessageRecord{
			ID:             m.ID,
			SessionID:      m.SessionID,
			SenderID:       m.SenderID,
			Content:        m.Content,
			ContentType:    m.ContentType,
			SequenceNumber: m.SequenceNumber,
			CreatedAt:      m.CreatedAt,
		})
	}

	var documents []models.Document
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Find(&documents).Error; err != nil {
		return collab.HubSeed{}, err
	}
	for _, d := range documents {
		seed.Documents = append(seed.Documents, collab.DocumentState{
			ID:           d.ID,
			Title:        d.Title,
			Content:      d.Content,
			ContentType:  d.ContentType,
			Version:      d.Version,
			LastEditedBy: d.LastEditedBy,
			UpdatedAt:    d.UpdatedAt,
		})
	}

	return seed, nil
}

func decodeFeatures(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var features []string
	if err := json.Unmarshal(raw, &features); err != nil {
		return nil
	}
	return features
}
