package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	servicegeek "github.com/service-geek/client"
	"github.com/service-geek/client/transport"
	"github.com/stretchr/testify/require"
)

// mockHandler dispatches requests to registered handlers by method+path.
type mockHandler struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests []string
}

func (m *mockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	m.mu.Lock()
	m.requests = append(m.requests, key+"?"+r.URL.RawQuery)
	h, ok := m.handlers[key]
	m.mu.Unlock()
	if ok {
		h(w, r)
		return
	}
	http.NotFound(w, r)
}

func (m *mockHandler) count(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func jsonResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func msgAt(id string, sec int, author string) servicegeek.Message {
	ts := epoch.Add(time.Duration(sec) * time.Second)
	return servicegeek.Message{
		ID:        id,
		Content:   "content " + id,
		AuthorID:  author,
		Author:    servicegeek.Author{ID: author, FirstName: "User", LastName: author},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

func ids(msgs []servicegeek.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func requireAscending(t *testing.T, msgs []servicegeek.Message) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("timeline out of order at %d: %v", i, ids(msgs))
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu         sync.Mutex
	permission Permission
	grant      Permission
	requestErr error
	showErr    error
	requests   int
	shown      []Notification
}

func (f *fakeNotifier) Permission() Permission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permission
}

func (f *fakeNotifier) RequestPermission(ctx context.Context) (Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if f.requestErr != nil {
		return PermissionUndetermined, f.requestErr
	}
	f.permission = f.grant
	return f.grant, nil
}

func (f *fakeNotifier) Show(ctx context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.showErr != nil {
		return f.showErr
	}
	f.shown = append(f.shown, n)
	return nil
}

func (f *fakeNotifier) Shown() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.shown...)
}

type harness struct {
	session  *Session
	api      *mockHandler
	server   *httptest.Server
	memory   *transport.Memory
	notifier *fakeNotifier
	applied  chan transport.Event
}

type harnessOption func(*Config)

func newHarness(t *testing.T, handlers map[string]http.HandlerFunc, opts ...harnessOption) *harness {
	t.Helper()
	if handlers == nil {
		handlers = map[string]http.HandlerFunc{}
	}
	h := &harness{
		api:      &mockHandler{handlers: handlers},
		memory:   transport.NewMemory(),
		notifier: &fakeNotifier{permission: PermissionGranted},
		applied:  make(chan transport.Event, 64),
	}
	h.server = httptest.NewServer(h.api)
	t.Cleanup(h.server.Close)

	client, err := servicegeek.NewWithToken(h.server.URL, "tok")
	require.NoError(t, err)

	cfg := Config{
		ProjectID:            "p1",
		API:                  client,
		Transport:            h.memory,
		Notifier:             h.notifier,
		NotificationsEnabled: true,
		CurrentUserID:        "me",
		Logger:               discardLogger(),
		OnEvent: func(ev transport.Event) {
			h.applied <- ev
		},
	}
	for _, o := range opts {
		o(&cfg)
	}
	h.session, err = NewSession(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.session.Close() })
	return h
}

// waitFor blocks until the session has applied an event of the given
// wire name.
func (h *harness) waitFor(t *testing.T, name string) transport.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-h.applied:
			if ev.Name() == name {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", name)
			return nil
		}
	}
}

// activate connects the session and waits until it has joined.
func (h *harness) activate(t *testing.T) *transport.MemoryConn {
	t.Helper()
	require.NoError(t, h.session.Activate(context.Background(), "tok"))
	h.waitFor(t, "connect")
	require.True(t, h.session.Connected())
	return h.memory.Last()
}

func pageHandler(msgs []servicegeek.Message, page, total int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, map[string]any{
			"data": msgs,
			"meta": map[string]any{"page": page, "totalPages": total, "total": len(msgs), "limit": 50},
		})
	}
}

// pagesHandler serves a different body per page query parameter.
func pagesHandler(t *testing.T, pages map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Query().Get("page")
		h, ok := pages[p]
		if !ok {
			t.Errorf("unexpected page %q", p)
			http.Error(w, fmt.Sprintf("no page %s", p), http.StatusNotFound)
			return
		}
		h(w, r)
	}
}
