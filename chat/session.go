// Package chat is the project chat client. A Session keeps one project's
// timeline in step with the server: it pages history in over the HTTP
// API, applies live events from a transport, tracks who is typing and
// hands qualifying messages to a Notifier.
//
// A Session is safe for concurrent use. Every event and every completed
// call is applied under one mutex, so each is observed as a single step.
// Network calls run outside the mutex. Deactivate and Close bump a
// generation counter; a call that started before and finishes after
// returns ErrStale without touching the session.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	servicegeek "github.com/service-geek/client"
	"github.com/service-geek/client/transport"
	"golang.org/x/time/rate"
)

const (
	leaveTimeout   = 2 * time.Second
	typingInterval = 2 * time.Second
)

// API is the request/response side used by a Session. *servicegeek.Client
// implements it.
type API interface {
	ProjectMessages(ctx context.Context, p servicegeek.ProjectMessagesParams) (json.RawMessage, error)
	CreateProjectMessage(ctx context.Context, projectID string, req *servicegeek.CreateMessageRequest) (*servicegeek.Message, error)
	DeleteMessage(ctx context.Context, messageID string) (*servicegeek.DeleteMessageResponse, error)
}

// Config configures a Session.
type Config struct {
	// ProjectID is the project whose chat the session follows.
	ProjectID string

	API       API
	Transport transport.Transport

	// Notifier shows notifications for incoming messages. Nil disables
	// them.
	Notifier             Notifier
	NotificationsEnabled bool

	// CurrentUserID is the local user. Their own messages never notify,
	// and notifications are off while it is unknown.
	CurrentUserID string

	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger  *slog.Logger
	Metrics *Metrics

	// OnEvent, if set, is called from the event goroutine after each
	// transport event has been applied. It must not call Deactivate or
	// Close.
	OnEvent func(transport.Event)

	// OnMessage, if set, is called once for each message appended to the
	// end of the timeline: live messages not already present, and messages
	// created by the HTTP fallback of Send. It runs on the event goroutine
	// or on the goroutine calling Send, with the same restrictions as
	// OnEvent.
	OnMessage func(servicegeek.Message)
}

// Session is the chat client for one project.
type Session struct {
	projectID  string
	api        API
	transport  transport.Transport
	dispatcher *Dispatcher
	logger     *slog.Logger
	metrics    *Metrics
	onEvent    func(transport.Event)
	onMessage  func(servicegeek.Message)
	typing     *rate.Limiter

	mu         sync.Mutex
	gen        uint64
	closed     bool
	activating bool
	conn       transport.Conn
	cancelPump context.CancelFunc
	pumpDone   chan struct{}
	connected  bool
	lastErr    string
	timeline   Timeline
	presence   Presence
	page       int
	hasMore    bool
	loads      int
}

// NewSession creates a session. It does not connect or load anything.
func NewSession(cfg Config) (*Session, error) {
	if cfg.API == nil {
		return nil, errors.New("chat: API is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("chat: Transport is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("project_id", cfg.ProjectID)

	return &Session{
		projectID: cfg.ProjectID,
		api:       cfg.API,
		transport: cfg.Transport,
		dispatcher: &Dispatcher{
			ProjectID:     cfg.ProjectID,
			Notifier:      cfg.Notifier,
			Enabled:       cfg.NotificationsEnabled,
			CurrentUserID: cfg.CurrentUserID,
			Logger:        logger,
			Metrics:       cfg.Metrics,
		},
		logger:    logger,
		metrics:   cfg.Metrics,
		onEvent:   cfg.OnEvent,
		onMessage: cfg.OnMessage,
		typing:    rate.NewLimiter(rate.Every(typingInterval), 1),
		page:      1,
		hasMore:   true,
	}, nil
}

// ProjectID returns the project the session follows.
func (s *Session) ProjectID() string {
	return s.projectID
}

// Start loads the newest history page and then activates the live
// transport. Both are attempted; their errors are joined.
func (s *Session) Start(ctx context.Context, credential string) error {
	loadErr := s.LoadPage(ctx, 1)
	if errors.Is(loadErr, ErrClosed) {
		return loadErr
	}
	return errors.Join(loadErr, s.Activate(ctx, credential))
}

// Activate opens the live transport with credential and joins the
// project once connected. It does nothing when the project id or the
// credential is empty, or when the session is already active. There is
// no automatic reconnection: after a disconnect, call Activate again.
func (s *Session) Activate(ctx context.Context, credential string) error {
	if s.projectID == "" || credential == "" {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.conn != nil || s.activating {
		s.mu.Unlock()
		return nil
	}
	s.activating = true
	gen := s.gen
	s.mu.Unlock()

	conn, err := s.transport.Connect(ctx, credential)

	s.mu.Lock()
	s.activating = false
	if err != nil {
		s.lastErr = "failed to connect to chat server: " + err.Error()
		s.mu.Unlock()
		s.metrics.transportError()
		s.logger.Warn("chat connect failed", "error", err)
		return fmt.Errorf("chat: connect: %w", err)
	}
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrStale
	}
	pumpCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.conn = conn
	s.cancelPump = cancel
	s.pumpDone = done
	s.mu.Unlock()

	go s.pump(pumpCtx, conn, done)
	return nil
}

// Deactivate leaves the project (best effort, even if the connection was
// never confirmed), closes the transport and waits for the event goroutine
// to exit. Safe to call when not active.
func (s *Session) Deactivate() error {
	s.mu.Lock()
	conn, cancelPump, done := s.conn, s.cancelPump, s.pumpDone
	s.conn, s.cancelPump, s.pumpDone = nil, nil, nil
	s.connected = false
	s.presence.Clear()
	s.gen++
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	s.metrics.setConnected(false)
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	if err := conn.Emit(ctx, transport.LeaveProject{}); err != nil {
		s.logger.Debug("leave project failed", "error", err)
	}
	cancel()
	cancelPump()
	err := conn.Close()
	<-done
	return err
}

// Close deactivates the session for good. Later calls return ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Deactivate()
}

// Connected reports whether the live transport is connected.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// LastError returns the most recent error message, or "".
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Messages returns a copy of the timeline, oldest first.
func (s *Session) Messages() []servicegeek.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Messages()
}

// TypingUsers returns the ids of users currently typing, sorted.
func (s *Session) TypingUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence.Users()
}

// pump applies events from conn until its channel closes. Events from a
// conn the session no longer owns are dropped.
func (s *Session) pump(ctx context.Context, conn transport.Conn, done chan struct{}) {
	defer close(done)
	for ev := range conn.Events() {
		s.handle(ctx, conn, ev)
	}
}

func (s *Session) handle(ctx context.Context, conn transport.Conn, ev transport.Event) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}

	var (
		join    bool
		release bool
		notify  *servicegeek.Message
	)
	switch e := ev.(type) {
	case transport.Connected:
		s.connected = true
		s.lastErr = ""
		join = true
	case transport.Disconnected:
		s.detach()
		release = true
	case transport.ConnectError:
		s.lastErr = fmt.Sprintf("failed to connect to chat server: %v", e.Err)
	case transport.ServerError:
		s.lastErr = e.Message
	case transport.NewMessage:
		if s.timeline.Append(e.Message) {
			m := e.Message
			notify = &m
		}
	case transport.UserTyping:
		s.presence.Apply(e.UserID, e.IsTyping)
	case transport.UserLeft:
		s.presence.Remove(e.UserID)
	case transport.MessageDeleted:
		s.timeline.Remove(e.MessageID)
	}
	s.mu.Unlock()

	switch e := ev.(type) {
	case transport.Connected:
		s.metrics.setConnected(true)
		s.logger.Info("chat connected")
	case transport.Disconnected:
		s.metrics.setConnected(false)
		s.logger.Info("chat disconnected", "reason", e.Reason)
	case transport.ConnectError:
		s.metrics.transportError()
		s.logger.Warn("chat connect error", "error", e.Err)
	case transport.ServerError:
		s.metrics.transportError()
		s.logger.Warn("chat server error", "message", e.Message)
	case transport.NewMessage:
		s.metrics.messageReceived()
	case transport.UserJoined:
		s.logger.Info("user joined project chat", "user_id", e.UserID)
	case transport.UserLeft:
		s.logger.Info("user left project chat", "user_id", e.UserID)
	}

	if join {
		s.join(ctx, conn)
	}
	if release {
		_ = conn.Close()
	}
	if notify != nil {
		s.dispatcher.Dispatch(ctx, *notify)
		if s.onMessage != nil {
			s.onMessage(*notify)
		}
	}
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}

// join subscribes conn to the project. A failed join releases the
// connection.
func (s *Session) join(ctx context.Context, conn transport.Conn) {
	err := conn.Emit(ctx, transport.JoinProject{ProjectID: s.projectID})
	if err == nil {
		return
	}

	s.mu.Lock()
	owned := s.conn == conn
	if owned {
		s.detach()
		s.lastErr = "failed to join project chat: " + err.Error()
	}
	s.mu.Unlock()
	if !owned {
		return
	}
	s.metrics.transportError()
	s.metrics.setConnected(false)
	s.logger.Warn("join project failed", "error", err)
	_ = conn.Close()
}

// detach drops the session's hold on its conn after the remote side ended
// it. The event goroutine keeps draining until the channel closes. Callers
// hold s.mu.
func (s *Session) detach() {
	if s.cancelPump != nil {
		s.cancelPump()
	}
	s.conn, s.cancelPump, s.pumpDone = nil, nil, nil
	s.connected = false
	s.presence.Clear()
}
