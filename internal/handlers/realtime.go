package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/coachsync/coachsync/internal/auth"
	"github.com/coachsync/coachsync/internal/collab"
	apperrors "github.com/coachsync/coachsync/pkg/errors"
	"github.com/coachsync/coachsync/pkg/response"
)

// RealtimeHandler upgrades authenticated requests to websocket connections
// and hands them to the collaboration gateway.
type RealtimeHandler struct {
	gateway *collab.Gateway
	tokens  *auth.TokenService
}

// NewRealtimeHandler constructs the realtime handler when dependencies are provided.
func NewRealtimeHandler(gateway *collab.Gateway, tokens *auth.TokenService) (*RealtimeHandler, error) {
	if gateway == nil {
		return nil, errors.New("realtime handler: gateway is required")
	}
	if tokens == nil {
		return nil, errors.New("realtime handler: token service is required")
	}

	return &RealtimeHandler{
		gateway: gateway,
		tokens:  tokens,
	}, nil
}

// Connect verifies the connection token and joins the session. Browsers
// cannot set headers on websocket requests, so the token travels as a query
// parameter.
func (h *RealtimeHandler) Connect(c *gin.Context) {
	if h == nil || h.gateway == nil || h.tokens == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	claims, err := h.tokens.VerifyConnectionToken(token)
	if err != nil {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	sessionID := strings.TrimSpace(c.Param("sessionID"))
	if sessionID != "" && sessionID != claims.SessionID {
		// Token was minted for a different session.
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	err = h.gateway.Serve(c.Writer, c.Request, collab.Identity{
		SessionID:     claims.SessionID,
		ParticipantID: claims.ParticipantID,
		DisplayName:   claims.DisplayName,
		Role:          claims.Role,
	})
	if err != nil {
		response.Error(c, mapCollabError(err))
	}
}
