package interfaces

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashpromo/internal/service/batchbuilder/domain/port"
)

func subscribers(h *OutcomeHub, sessionID string) int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients[sessionID])
}

func TestOutcomeHub_DeliversToSessionSubscribers(t *testing.T) {
	hub := NewOutcomeHub()
	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan error, 1)
	go func() { hubDone <- hub.Run(ctx) }()

	r := mux.NewRouter()
	hub.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/outcomes?session=session-abc"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return subscribers(hub, "session-abc") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Notify(context.Background(), port.Outcome{SessionID: "other-session", BatchToken: "x"}))
	require.NoError(t, hub.Notify(context.Background(), port.Outcome{SessionID: "session-abc", BatchToken: "token-1", Succeeded: true}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var got port.Outcome
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "token-1", got.BatchToken)
	assert.True(t, got.Succeeded)

	cancel()
	require.NoError(t, <-hubDone)
}

func TestOutcomeHub_RequiresSession(t *testing.T) {
	hub := NewOutcomeHub()
	rec := httptest.NewRecorder()
	hub.ServeWS(rec, httptest.NewRequest("GET", "/ws/outcomes", nil))
	assert.Equal(t, 400, rec.Code)
}
