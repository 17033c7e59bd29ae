package live

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/candi/dictation/internal/fsm"
	"github.com/candi/dictation/internal/session"
)

type fakeController struct {
	mu       sync.Mutex
	snap     session.Snapshot
	ops      []string
	watchers []chan session.Snapshot
}

func newFakeController() *fakeController {
	return &fakeController{snap: session.Snapshot{SessionID: "s1", State: fsm.StateIdle, IsSupported: true}}
}

func (c *fakeController) record(op string, mutate func(*session.Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, op)
	mutate(&c.snap)
	for _, ch := range c.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- c.snap
	}
}

func (c *fakeController) Start() {
	c.record("start", func(s *session.Snapshot) {
		s.State = fsm.StateListening
		s.IsListening = true
	})
}

func (c *fakeController) Stop() {
	c.record("stop", func(s *session.Snapshot) {
		s.State = fsm.StateIdle
		s.IsListening = false
	})
}

func (c *fakeController) Clear() {
	c.record("clear", func(s *session.Snapshot) { s.FinalText = "" })
}

func (c *fakeController) AppendNewline() {
	c.record("newline", func(s *session.Snapshot) { s.FinalText += "\n\n" })
}

func (c *fakeController) Snapshot() session.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *fakeController) Watch() (<-chan session.Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan session.Snapshot, 1)
	ch <- c.snap
	c.watchers = append(c.watchers, ch)
	return ch, func() {}
}

func (c *fakeController) recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHealthzAndSnapshot(t *testing.T) {
	ctrl := newFakeController()
	ctrl.snap.FinalText = "こんにちは"
	srv := httptest.NewServer(NewServer(ctrl, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))

	resp, err = http.Get(srv.URL + "/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Equal(t, "こんにちは", snap["final_text"])
	require.Equal(t, "idle", snap["state"])

	resp, err = http.Get(srv.URL + "/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	var info map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	require.NotEmpty(t, info["version"])
	require.NotEmpty(t, info["go"])
}

func TestWebSocketStreamsSnapshotsAndAppliesCommands(t *testing.T) {
	ctrl := newFakeController()
	srv := httptest.NewServer(NewServer(ctrl, nil).Handler())
	defer srv.Close()

	conn := dial(t, srv)

	first := readMessage(t, conn)
	require.Equal(t, "snapshot", first.Type)
	require.NotNil(t, first.Snapshot)
	require.Equal(t, fsm.StateIdle, first.Snapshot.State)

	require.NoError(t, conn.WriteJSON(Command{Op: OpStart}))
	next := readMessage(t, conn)
	require.Equal(t, "snapshot", next.Type)
	require.True(t, next.Snapshot.IsListening)

	require.NoError(t, conn.WriteJSON(Command{Op: OpNewline}))
	next = readMessage(t, conn)
	require.Equal(t, "\n\n", next.Snapshot.FinalText)

	require.Equal(t, []string{"start", "newline"}, ctrl.recorded())
}

func TestWebSocketRejectsUnknownAndMalformedCommands(t *testing.T) {
	ctrl := newFakeController()
	srv := httptest.NewServer(NewServer(ctrl, nil).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	_ = readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(Command{Op: "dance"}))
	msg := readMessage(t, conn)
	require.Equal(t, "error", msg.Type)
	require.Contains(t, msg.Error, "unknown op")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg = readMessage(t, conn)
	require.Equal(t, "error", msg.Type)
	require.Equal(t, "malformed command", msg.Error)

	require.Empty(t, ctrl.recorded())
}

func TestWebSocketClosesWhenSessionCloses(t *testing.T) {
	s := session.New(session.DefaultConfig(), nil, session.Options{})
	srv := httptest.NewServer(NewServer(s, nil).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	first := readMessage(t, conn)
	require.False(t, first.Snapshot.IsSupported)

	s.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), err.Error())
}

func TestServeStopsOnContextCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(newFakeController(), nil).Serve(ctx, listener)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
