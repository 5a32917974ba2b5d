package collab

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/coachsync/coachsync/pkg/logger"
	"github.com/coachsync/coachsync/pkg/metrics"
)

// Identity is the verified connection context the authentication
// collaborator supplies before the gateway accepts a connection.
type Identity struct {
	SessionID     string
	ParticipantID string
	DisplayName   string
	Role          string
}

// Gateway accepts inbound websocket connections, performs the handshake and
// routes frames to the owning session hub.
type Gateway struct {
	registry *Registry
	settings Settings
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewGateway constructs a gateway over the supplied registry.
func NewGateway(registry *Registry, settings Settings) *Gateway {
	return &Gateway{
		registry: registry,
		settings: settings.withDefaults(),
		log:      logger.WithModule("collab.gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Allow same-origin requests and explicit localhost development.
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				requestHost := hostWithoutPort(r.Host)
				return originHost == requestHost || isLoopback(originHost)
			},
		},
	}
}

// Serve resolves the session hub, upgrades the connection and runs the join
// protocol. Pre-upgrade failures (unknown session) are returned so the HTTP
// layer can respond; post-upgrade failures are reported as error frames on
// the socket before it closes.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, identity Identity) error {
	if strings.TrimSpace(identity.ParticipantID) == "" {
		return ErrSessionNotFound
	}

	hub, err := g.registry.GetOrCreate(r.Context(), identity.SessionID)
	if err != nil {
		return err
	}

	socket, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("upgrade failed", zap.Error(err))
		return nil // Upgrade already wrote the HTTP error
	}
	metrics.OpenConnections.Inc()

	conn := newClient(uuid.NewString(), identity.ParticipantID, hub, socket, g.settings,
		g.log.With(
			zap.String("session_id", identity.SessionID),
			zap.String("participant_id", identity.ParticipantID),
		),
	)

	// The hub enqueues the snapshot as the connection's first frame during
	// the join turn; the gateway never writes frames of its own on success.
	if err := hub.Join(r.Context(), conn, ParticipantInfo{
		ID:          identity.ParticipantID,
		DisplayName: identity.DisplayName,
		Role:        identity.Role,
	}); err != nil {
		go conn.writeLoop()
		conn.TrySend(NewEnvelope(TypeError, joinErrorPayload(err), time.Now()))
		conn.Kick("join_rejected")
		return nil
	}

	go conn.writeLoop()
	conn.readLoop()
	return nil
}

func joinErrorPayload(err error) ErrorPayload {
	switch {
	case errors.Is(err, ErrSessionFull):
		return ErrorPayload{Code: "SESSION_FULL", Message: "session has reached its participant limit"}
	case errors.Is(err, ErrSessionEnded):
		return ErrorPayload{Code: "SESSION_ENDED", Message: "session has already ended"}
	default:
		return ErrorPayload{Code: "INTERNAL_ERROR", Message: "join failed"}
	}
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
