package collab

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newGatewayServer(t *testing.T) *httptest.Server {
	t.Helper()

	loader := &fakeLoader{seeds: map[string]HubSeed{
		"sess-1": activeSeed("sess-1", 4),
	}}
	registry := NewRegistry(loader, testSettings())
	t.Cleanup(registry.Shutdown)

	gateway := NewGateway(registry, testSettings())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		participantID := r.URL.Query().Get("participant")
		if err := gateway.Serve(w, r, Identity{
			SessionID:     "sess-1",
			ParticipantID: participantID,
			DisplayName:   participantID,
			Role:          "participant",
		}); err != nil {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func dialGateway(t *testing.T, server *httptest.Server, participantID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?participant=" + participantID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (Envelope, error) {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	err := conn.ReadJSON(&env)
	return env, err
}

func requireEnvelope(t *testing.T, conn *websocket.Conn, frameType string) Envelope {
	t.Helper()

	env, err := readEnvelope(t, conn)
	require.NoError(t, err)
	require.Equal(t, frameType, env.Type)
	return env
}

func TestGatewaySnapshotIsFirstFrame(t *testing.T) {
	server := newGatewayServer(t)

	conn := dialGateway(t, server, "coach-1")
	env := requireEnvelope(t, conn, TypeSnapshot)

	var snapshot SnapshotPayload
	require.NoError(t, json.Unmarshal(env.Data, &snapshot))
	require.Equal(t, "sess-1", snapshot.SessionID)
}

func TestGatewayMalformedFrameClosesOnlyOffender(t *testing.T) {
	server := newGatewayServer(t)

	healthy := dialGateway(t, server, "coach-1")
	requireEnvelope(t, healthy, TypeSnapshot)

	offender := dialGateway(t, server, "client-1")
	requireEnvelope(t, offender, TypeSnapshot)
	requireEnvelope(t, healthy, TypeParticipantJoined)

	require.NoError(t, offender.WriteJSON(map[string]any{"type": "nope"}))

	// The error frame reaches the offender through the write pump, then the
	// socket closes cleanly.
	env := requireEnvelope(t, offender, TypeError)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	require.Equal(t, "MALFORMED_FRAME", payload.Code)

	_, err := readEnvelope(t, offender)
	require.Error(t, err)
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	// The rest of the session keeps working.
	requireEnvelope(t, healthy, TypeParticipantLeft)

	require.NoError(t, healthy.WriteJSON(Envelope{
		Type: TypeSendMessage,
		Data: mustMarshal(SendMessageFrame{Content: "still here"}),
	}))
	env = requireEnvelope(t, healthy, TypeNewMessage)

	var msg NewMessagePayload
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	require.Equal(t, "coach-1", msg.SenderID)
	require.Equal(t, uint64(1), msg.SequenceNumber)
}

func TestGatewayRejectsEmptyParticipant(t *testing.T) {
	server := newGatewayServer(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?participant="
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
