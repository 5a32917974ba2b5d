package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coachsync/coachsync/internal/auth"
	"github.com/coachsync/coachsync/internal/collab"
	"github.com/coachsync/coachsync/internal/models"
	"github.com/coachsync/coachsync/internal/services"
	apperrors "github.com/coachsync/coachsync/pkg/errors"
	"github.com/coachsync/coachsync/pkg/response"
	"github.com/coachsync/coachsync/pkg/validator"
)

// SessionHandler exposes CRUD and lifecycle endpoints for coaching sessions.
type SessionHandler struct {
	sessions *services.SessionService
	registry *collab.Registry
	tokens   *auth.TokenService
}

// NewSessionHandler constructs a session handler when dependencies are provided.
func NewSessionHandler(sessions *services.SessionService, registry *collab.Registry, tokens *auth.TokenService) (*SessionHandler, error) {
	if sessions == nil {
		return nil, errors.New("session handler: session service is required")
	}
	if registry == nil {
		return nil, errors.New("session handler: registry is required")
	}
	if tokens == nil {
		return nil, errors.New("session handler: token service is required")
	}

	return &SessionHandler{
		sessions: sessions,
		registry: registry,
		tokens:   tokens,
	}, nil
}

type createSessionRequest struct {
	Title           string     `json:"title" validate:"required,min=1,max=200"`
	OwnerID         string     `json:"owner_id" validate:"required"`
	MaxParticipants int        `json:"max_participants" validate:"gte=0,lte=500"`
	Features        []string   `json:"features_enabled"`
	ScheduledStart  *time.Time `json:"scheduled_start"`
	ScheduledEnd    *time.Time `json:"scheduled_end"`
}

type createDocumentRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=200"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	CreatedBy   string `json:"created_by" validate:"required"`
}

type changeStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type connectionTokenRequest struct {
	ParticipantID string `json:"participant_id" validate:"required"`
	DisplayName   string `json:"display_name" validate:"required,min=1,max=100"`
	Role          string `json:"role"`
}

type sessionDTO struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Status          string     `json:"status"`
	OwnerID         string     `json:"owner_id"`
	MaxParticipants int        `json:"max_participants"`
	Features        []string   `json:"features_enabled,omitempty"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end,omitempty"`
	ActualStart     *time.Time `json:"actual_start,omitempty"`
	ActualEnd       *time.Time `json:"actual_end,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Create registers a new scheduled session.
func (h *SessionHandler) Create(c *gin.Context) {
	if h == nil || h.sessions == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	var payload createSessionRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid session payload"))
		return
	}
	if err := validator.ValidateStruct(&payload); err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	session, err := h.sessions.CreateSession(c.Request.Context(), services.CreateSessionParams{
		Title:           payload.Title,
		OwnerID:         payload.OwnerID,
		MaxParticipants: payload.MaxParticipants,
		Features:        payload.Features,
		ScheduledStart:  payload.ScheduledStart,
		ScheduledEnd:    payload.ScheduledEnd,
	})
	if err != nil {
		response.Error(c, apperrors.Wrap(err, "unable to create session"))
		return
	}

	response.Success(c, http.StatusCreated, toSessionDTO(session))
}

// List returns sessions matching optional status and owner filters.
func (h *SessionHandler) List(c *gin.Context) {
	if h == nil || h.sessions == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	sessions, total, err := h.sessions.ListSessions(c.Request.Context(), services.ListSessionsOptions{
		Status:  c.Query("status"),
		OwnerID: c.Query("owner_id"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		response.Error(c, apperrors.Wrap(err, "unable to list sessions"))
		return
	}

	items := make([]sessionDTO, 0, len(sessions))
	for i := range sessions {
		items = append(items, toSessionDTO(&sessions[i]))
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Total:   int(total),
		PerPage: limit,
	})
}

// Get returns a single session. When a hub is live the response reflects the
// hub's authoritative status and participant count rather than the last
// persisted row.
func (h *SessionHandler) Get(c *gin.Context) {
	if h == nil || h.sessions == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	sessionID := strings.TrimSpace(c.Param("sessionID"))
	session, err := h.sessions.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, collab.ErrSessionNotFound) {
			response.Error(c, apperrors.ErrSessionNotFound)
			return
		}
		response.Error(c, apperrors.Wrap(err, "unable to load session"))
		return
	}

	dto := toSessionDTO(session)
	if hub, ok := h.registry.Get(sessionID); ok {
		if info, err := hub.Info(c.Request.Context()); err == nil {
			dto.Status = string(info.Status)
			response.Success(c, http.StatusOK, gin.H{
				"session":             dto,
				"active_participants": info.ActiveCount,
			})
			return
		}
	}

	response.Success(c, http.StatusOK, gin.H{"session": dto})
}

// ChangeStatus advances the session lifecycle. The transition runs through
// the session hub so connected participants observe the change in order with
// the rest of the event stream.
func (h *SessionHandler) ChangeStatus(c *gin.Context) {
	if h == nil || h.registry == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	sessionID := strings.TrimSpace(c.Param("sessionID"))
	if sessionID == "" {
		response.Error(c, apperrors.NewBadRequest("session id is required"))
		return
	}

	var payload changeStatusRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid status payload"))
		return
	}

	next := collab.SessionStatus(strings.TrimSpace(strings.ToLower(payload.Status)))
	if !next.Valid() {
		response.Error(c, apperrors.NewBadRequest("unknown session status"))
		return
	}

	hub, err := h.registry.GetOrCreate(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, mapCollabError(err))
		return
	}

	if err := hub.ChangeStatus(c.Request.Context(), next); err != nil {
		response.Error(c, mapCollabError(err))
		return
	}

	// An archived session never gets a hub again; free it immediately.
	if next == collab.StatusArchived {
		h.registry.Remove(sessionID)
	}

	response.Success(c, http.StatusOK, gin.H{"id": sessionID, "status": string(next)})
}

// ListMessages returns persisted chat history ordered by sequence number.
func (h *SessionHandler) ListMessages(c *gin.Context) {
	if h == nil || h.sessions == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	sessionID := strings.TrimSpace(c.Param("sessionID"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	beforeSeq, _ := strconv.ParseUint(c.DefaultQuery("before", "0"), 10, 64)

	if _, err := h.sessions.GetSession(c.Request.Context(), sessionID); err != nil {
		response.Error(c, mapCollabError(err))
		return
	}

	messages, err := h.sessions.ListMessages(c.Request.Context(), sessionID, limit, beforeSeq)
	if err != nil {
		response.Error(c, apperrors.Wrap(err, "unable to list messages"))
		return
	}

	response.Success(c, http.StatusOK, messages)
}

// CreateDocument adds a shared document to a session.
func (h *SessionHandler) CreateDocument(c *gin.Context) {
	if h == nil || h.sessions == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	sessionID := strings.TrimSpace(c.Param("sessionID"))

	var payload createDocumentRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid document payload"))
		return
	}
	if err := validator.ValidateStruct(&payload); err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	document, err := h.sessions.CreateDocument(c.Request.Context(), services.CreateDocumentParams{
		SessionID:   sessionID,
		Title:       payload.Title,
		Content:     payload.Content,
		ContentType: payload.ContentType,
		CreatedBy:   payload.CreatedBy,
	})
	if err != nil {
		response.Error(c, mapCollabError(err))
		return
	}

	response.Success(c, http.StatusCreated, document)
}

// IssueToken signs a short-lived connection token binding a participant to
// this session. The websocket gateway trusts only these tokens.
func (h *SessionHandler) IssueToken(c *gin.Context) {
	if h == nil || h.tokens == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	sessionID := strings.TrimSpace(c.Param("sessionID"))

	var payload connectionTokenRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid token payload"))
		return
	}
	if err := validator.ValidateStruct(&payload); err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	session, err := h.sessions.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, mapCollabError(err))
		return
	}
	if session.Status == models.SessionStatusEnded || session.Status == models.SessionStatusArchived {
		response.Error(c, apperrors.ErrSessionEnded)
		return
	}

	role := strings.TrimSpace(payload.Role)
	if role == "" {
		role = "participant"
	}

	token, err := h.tokens.IssueConnectionToken(auth.ConnectionTokenInput{
		SessionID:     sessionID,
		ParticipantID: payload.ParticipantID,
		DisplayName:   payload.DisplayName,
		Role:          role,
	})
	if err != nil {
		response.Error(c, apperrors.Wrap(err, "unable to issue connection token"))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"token": token})
}

func toSessionDTO(session *models.Session) sessionDTO {
	return sessionDTO{
		ID:              session.ID,
		Title:           session.Title,
		Status:          session.Status,
		OwnerID:         session.OwnerID,
		MaxParticipants: session.MaxParticipants,
		Features:        decodeFeatureList(session),
		ScheduledStart:  session.ScheduledStart,
		ScheduledEnd:    session.ScheduledEnd,
		ActualStart:     session.ActualStart,
		ActualEnd:       session.ActualEnd,
		CreatedAt:       session.CreatedAt,
	}
}

func decodeFeatureList(session *models.Session) []string {
	if len(session.FeaturesEnabled) == 0 {
		return nil
	}
	var features []string
	if err := json.Unmarshal(session.FeaturesEnabled, &features); err != nil {
		return nil
	}
	return features
}

func mapCollabError(err error) error {
	switch {
	case errors.Is(err, collab.ErrSessionNotFound):
		return apperrors.ErrSessionNotFound
	case errors.Is(err, collab.ErrSessionEnded):
		return apperrors.ErrSessionEnded
	case errors.Is(err, collab.ErrSessionFull):
		return apperrors.ErrSessionFull
	case errors.Is(err, collab.ErrInvalidTransition):
		return apperrors.ErrInvalidTransition
	default:
		return apperrors.Wrap(err, "session operation failed")
	}
}
