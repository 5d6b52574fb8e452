package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	t.Parallel()

	received := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("auth=%q", r.Header.Get("Authorization"))
		}
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer ws.CloseNow()

		ctx := r.Context()
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		received <- data

		frame := `{"type":"newMessage","payload":{"id":"m1","content":"hello","userId":"u2","createdAt":"2025-01-01T00:00:00Z","updatedAt":"2025-01-01T00:00:00Z"}}`
		if err := ws.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
			return
		}
		_ = ws.Close(websocket.StatusGoingAway, "server shutdown")
	}))
	t.Cleanup(server.Close)

	tr, err := NewWebSocket(WebSocketConfig{BaseURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := tr.Connect(ctx, "tok")
	require.NoError(t, err)
	defer conn.Close()

	require.Equal(t, Connected{}, nextEvent(t, conn.Events()))

	require.NoError(t, conn.Emit(ctx, JoinProject{ProjectID: "p1"}))
	select {
	case data := <-received:
		require.JSONEq(t, `{"type":"joinProject","payload":{"projectId":"p1"}}`, string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("server did not receive joinProject")
	}

	ev := nextEvent(t, conn.Events())
	nm, ok := ev.(NewMessage)
	require.True(t, ok, "got %T", ev)
	require.Equal(t, "hello", nm.Message.Content)

	require.Equal(t, Disconnected{Reason: "server shutdown"}, nextEvent(t, conn.Events()))
	require.ErrorIs(t, conn.Emit(ctx, Typing{ProjectID: "p1"}), ErrClosed)

	select {
	case _, ok := <-conn.Events():
		require.False(t, ok, "expected closed events channel")
	case <-time.After(5 * time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestWebSocketCloseStopsEmit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.CloseNow()
		for {
			if _, _, err := ws.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	tr, err := NewWebSocket(WebSocketConfig{BaseURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := tr.Connect(ctx, "tok")
	require.NoError(t, err)
	require.Equal(t, Connected{}, nextEvent(t, conn.Events()))

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	require.ErrorIs(t, conn.Emit(ctx, Typing{ProjectID: "p1", IsTyping: true}), ErrClosed)
}

func TestNewWebSocketRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := NewWebSocket(WebSocketConfig{BaseURL: "ftp://example.com"})
	require.Error(t, err)

	tr, err := NewWebSocket(WebSocketConfig{BaseURL: "https://api.example.com"})
	require.NoError(t, err)
	require.Equal(t, "wss://api.example.com/chat", tr.URL())
}

func TestMemoryTransport(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	conn, err := m.Connect(ctx, "tok")
	require.NoError(t, err)
	require.Equal(t, []string{"tok"}, m.Credentials())
	require.Equal(t, Connected{}, <-conn.Events())

	mc := m.Last()
	require.True(t, mc.Push(UserJoined{UserID: "u2"}))
	require.Equal(t, UserJoined{UserID: "u2"}, <-conn.Events())

	require.NoError(t, conn.Emit(ctx, JoinProject{ProjectID: "p1"}))
	require.Equal(t, []Command{JoinProject{ProjectID: "p1"}}, mc.Emitted())

	mc.Drop("io server disconnect")
	require.Equal(t, Disconnected{Reason: "io server disconnect"}, <-conn.Events())
	_, ok := <-conn.Events()
	require.False(t, ok)
	require.ErrorIs(t, conn.Emit(ctx, LeaveProject{}), ErrClosed)
	require.False(t, mc.Push(UserLeft{UserID: "u2"}))
}
