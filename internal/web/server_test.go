package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codefionn/wifichat/internal/actor"
	"github.com/codefionn/wifichat/internal/logger"
	"github.com/codefionn/wifichat/internal/wire"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu        sync.Mutex
	sent      []string
	shared    int
	resets    int
	shareErr  error
	submitErr error
}

func (b *fakeBackend) SubmitOutgoingMessage(_ context.Context, text string) (actor.SendResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitErr != nil {
		return actor.SendResult{Err: b.submitErr}, b.submitErr
	}
	b.sent = append(b.sent, text)
	return actor.SendResult{AckID: 42, Reached: 2}, nil
}

func (b *fakeBackend) ShareRoster(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shareErr != nil {
		return b.shareErr
	}
	b.shared++
	return nil
}

func (b *fakeBackend) ResetPeers(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resets++
	return nil
}

func (b *fakeBackend) Status(context.Context) (actor.Status, error) {
	return actor.Status{DeviceName: "alpha", RoleName: "server", KnownPeers: []string{"AA:BB"}}, nil
}

func (b *fakeBackend) sentMessages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

func newTestServer(t *testing.T, backend Backend) (*Server, *httptest.Server) {
	t.Helper()

	log := logger.NewWriter(logger.LevelNone, io.Discard, "")
	hub := NewHub(log)
	srv, err := NewServer("127.0.0.1:0", hub, backend, log)
	require.NoError(t, err)

	go hub.Run()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		hub.Stop()
	})
	return srv, ts
}

func dialWS(t *testing.T, srv *Server, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + srv.Token()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) WebMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WebMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHealthNeedsNoToken(t *testing.T) {
	_, ts := newTestServer(t, &fakeBackend{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIRejectsMissingToken(t *testing.T) {
	_, ts := newTestServer(t, &fakeBackend{})

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	srv, ts := newTestServer(t, &fakeBackend{})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/status", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+srv.Token())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "alpha", status["device_name"])
	assert.Equal(t, "server", status["role"])
}

func TestSendEndpoint(t *testing.T) {
	backend := &fakeBackend{}
	srv, ts := newTestServer(t, backend)

	resp, err := http.Post(ts.URL+"/api/messages?token="+srv.Token(), "application/json", strings.NewReader(`{"body":"hello"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var msg WebMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.Equal(t, MessageTypeSent, msg.Type)
	assert.Equal(t, uint64(42), msg.AckID)
	assert.Equal(t, []string{"hello"}, backend.sentMessages())
}

func TestSendEndpointRejectsEmptyBody(t *testing.T) {
	backend := &fakeBackend{}
	srv, ts := newTestServer(t, backend)

	resp, err := http.Post(ts.URL+"/api/messages?token="+srv.Token(), "application/json", strings.NewReader(`{"body":"  "}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, backend.sentMessages())
}

func TestShareRosterEndpointReportsBackendError(t *testing.T) {
	backend := &fakeBackend{shareErr: errors.New("only the group owner shares the roster")}
	srv, ts := newTestServer(t, backend)

	resp, err := http.Post(ts.URL+"/api/roster/share?token="+srv.Token(), "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestResetPeersEndpoint(t *testing.T) {
	backend := &fakeBackend{}
	srv, ts := newTestServer(t, backend)

	resp, err := http.Post(ts.URL+"/api/peers/reset?token="+srv.Token(), "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, 1, backend.resets)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, &fakeBackend{})

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "wifichat_http_requests_total")
}

func TestWebSocketReceivesChatEvents(t *testing.T) {
	srv, ts := newTestServer(t, &fakeBackend{})
	conn := dialWS(t, srv, ts)

	srv.Hub().OnConnectionEstablished()
	assert.Equal(t, MessageTypeConnected, readWS(t, conn).Type)

	srv.Hub().OnMessageReceived(wire.Row{Sender: "beta", Body: "hi", Timestamp: "01-02-2024 03:04:05"})
	msg := readWS(t, conn)
	assert.Equal(t, MessageTypeMessage, msg.Type)
	assert.Equal(t, "beta", msg.Sender)
	assert.Equal(t, "hi", msg.Body)
	assert.Equal(t, "01-02-2024 03:04:05", msg.Timestamp)

	srv.Hub().OnConnectionLost()
	assert.Equal(t, MessageTypeDisconnected, readWS(t, conn).Type)
}

func TestWebSocketSend(t *testing.T) {
	backend := &fakeBackend{}
	srv, ts := newTestServer(t, backend)
	conn := dialWS(t, srv, ts)

	require.NoError(t, conn.WriteJSON(WebMessage{Type: MessageTypeSend, Body: "over the air"}))

	msg := readWS(t, conn)
	assert.Equal(t, MessageTypeSent, msg.Type)
	assert.Equal(t, uint64(42), msg.AckID)
	assert.Equal(t, 2, msg.Reached)
	assert.Equal(t, []string{"over the air"}, backend.sentMessages())
}

func TestWebSocketSendError(t *testing.T) {
	backend := &fakeBackend{submitErr: errors.New("not connected")}
	srv, ts := newTestServer(t, backend)
	conn := dialWS(t, srv, ts)

	require.NoError(t, conn.WriteJSON(WebMessage{Type: MessageTypeSend, Body: "lost"}))

	msg := readWS(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.Equal(t, "not connected", msg.Error)
}

func TestWebSocketUnknownType(t *testing.T) {
	srv, ts := newTestServer(t, &fakeBackend{})
	conn := dialWS(t, srv, ts)

	require.NoError(t, conn.WriteJSON(WebMessage{Type: "dance"}))

	msg := readWS(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)
}

func TestHubDropsClientOnDisconnect(t *testing.T) {
	srv, ts := newTestServer(t, &fakeBackend{})
	conn := dialWS(t, srv, ts)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return srv.Hub().ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
