package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	servicegeek "github.com/service-geek/client"
	"github.com/service-geek/client/transport"
)

// MaxContentLength is the longest message the server accepts, in
// characters.
const MaxContentLength = 5000

// ValidateContent checks a message body before it is sent.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}

// Send posts a message. While the live transport is connected the message
// goes out over it and is not added locally; the gateway's echo adds it.
// Otherwise it is created over HTTP and the returned message is appended.
func (s *Session) Send(ctx context.Context, content string) error {
	if err := ValidateContent(content); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	conn, connected := s.conn, s.connected
	gen := s.gen
	s.mu.Unlock()

	if connected && conn != nil {
		err := conn.Emit(ctx, transport.SendMessage{ProjectID: s.projectID, Content: content})
		if err == nil {
			s.metrics.messageSent("transport")
			return nil
		}
		if !errors.Is(err, transport.ErrClosed) {
			s.recordError("failed to send message: " + err.Error())
			return fmt.Errorf("chat: send message: %w", err)
		}
		s.logger.Debug("transport closed under send, using http", "error", err)
	}

	msg, err := s.api.CreateProjectMessage(ctx, s.projectID, &servicegeek.CreateMessageRequest{Content: content})

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		s.lastErr = "failed to send message: " + err.Error()
		s.mu.Unlock()
		return fmt.Errorf("chat: send message: %w", err)
	}
	added := s.timeline.Append(*msg)
	s.mu.Unlock()

	s.metrics.messageSent("http")
	if added && s.onMessage != nil {
		s.onMessage(*msg)
	}
	return nil
}

// Delete deletes a message on the server and removes it from the
// timeline.
func (s *Session) Delete(ctx context.Context, messageID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	gen := s.gen
	s.mu.Unlock()

	resp, err := s.api.DeleteMessage(ctx, messageID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return ErrStale
	}
	if err != nil {
		s.lastErr = "failed to delete message: " + err.Error()
		return fmt.Errorf("chat: delete message %s: %w", messageID, err)
	}
	if resp == nil || !resp.Success {
		s.lastErr = "failed to delete message: rejected by server"
		return ErrDeleteRejected
	}
	s.timeline.Remove(messageID)
	return nil
}

// SetTyping announces the local user's typing state over the live
// transport. Start announcements are limited to one per two seconds; stop
// announcements always go out. It returns ErrNotConnected when the
// transport is down.
func (s *Session) SetTyping(ctx context.Context, isTyping bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	conn, connected := s.conn, s.connected
	s.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	if isTyping && !s.typing.Allow() {
		return nil
	}
	if err := conn.Emit(ctx, transport.Typing{ProjectID: s.projectID, IsTyping: isTyping}); err != nil {
		return fmt.Errorf("chat: typing: %w", err)
	}
	return nil
}

func (s *Session) recordError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = msg
}
