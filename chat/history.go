package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	servicegeek "github.com/service-geek/client"
)

// PageMeta is the pagination bookkeeping returned with a history page.
type PageMeta struct {
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
}

// DefaultPageMeta is used when a response carries no meta.
var DefaultPageMeta = PageMeta{Page: 1, TotalPages: 1}

// HistoryPage is one decoded page of chat history, newest first as the
// server sent it.
type HistoryPage struct {
	Messages []servicegeek.Message
	Meta     PageMeta
}

// HasMore reports whether older pages remain.
func (p HistoryPage) HasMore() bool {
	return p.Meta.Page < p.Meta.TotalPages
}

var errUnknownShape = errors.New("chat: unrecognized history response shape")

type historyEnvelope struct {
	Data json.RawMessage `json:"data"`
	Meta *PageMeta       `json:"meta"`
}

// DecodeHistoryPage normalizes the history endpoint's response. Accepted
// shapes are a bare array of messages, {"data": [...], "meta": {...}} and
// {"data": {"data": [...], "meta": {...}}}. A missing meta becomes
// DefaultPageMeta. Anything else is an error.
func DecodeHistoryPage(body []byte) (HistoryPage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return HistoryPage{}, errUnknownShape
	}

	switch body[0] {
	case '[':
		var msgs []servicegeek.Message
		if err := json.Unmarshal(body, &msgs); err != nil {
			return HistoryPage{}, fmt.Errorf("chat: decode history: %w", err)
		}
		return HistoryPage{Messages: msgs, Meta: DefaultPageMeta}, nil
	case '{':
	default:
		return HistoryPage{}, errUnknownShape
	}

	var outer historyEnvelope
	if err := json.Unmarshal(body, &outer); err != nil {
		return HistoryPage{}, fmt.Errorf("chat: decode history: %w", err)
	}
	data := bytes.TrimSpace(outer.Data)
	if len(data) == 0 {
		return HistoryPage{}, errUnknownShape
	}

	switch data[0] {
	case '[':
		var msgs []servicegeek.Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return HistoryPage{}, fmt.Errorf("chat: decode history: %w", err)
		}
		return HistoryPage{Messages: msgs, Meta: metaOrDefault(outer.Meta)}, nil
	case '{':
		var inner historyEnvelope
		if err := json.Unmarshal(data, &inner); err != nil {
			return HistoryPage{}, fmt.Errorf("chat: decode history: %w", err)
		}
		var msgs []servicegeek.Message
		if d := bytes.TrimSpace(inner.Data); len(d) == 0 || d[0] != '[' {
			return HistoryPage{}, errUnknownShape
		}
		if err := json.Unmarshal(inner.Data, &msgs); err != nil {
			return HistoryPage{}, fmt.Errorf("chat: decode history: %w", err)
		}
		return HistoryPage{Messages: msgs, Meta: metaOrDefault(inner.Meta)}, nil
	default:
		return HistoryPage{}, errUnknownShape
	}
}

func metaOrDefault(m *PageMeta) PageMeta {
	if m == nil || m.Page < 1 || m.TotalPages < 1 {
		return DefaultPageMeta
	}
	return *m
}

// LoadPage fetches one page of history. Page 1 replaces the timeline;
// later pages are merged into it. Starting a load clears LastError. On
// failure the timeline is emptied, the cursor is left alone and the error
// is returned.
func (s *Session) LoadPage(ctx context.Context, page int) error {
	if page < 1 {
		return fmt.Errorf("chat: invalid page %d", page)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.loads++
	s.lastErr = ""
	gen := s.gen
	s.mu.Unlock()

	return s.fetchPage(ctx, page, gen)
}

// LoadMore loads the next older page. It does nothing when a load is
// already running or no older pages remain.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.loads > 0 || !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	s.loads++
	s.lastErr = ""
	gen := s.gen
	next := s.page + 1
	s.mu.Unlock()

	return s.fetchPage(ctx, next, gen)
}

func (s *Session) fetchPage(ctx context.Context, page int, gen uint64) error {
	raw, err := s.api.ProjectMessages(ctx, servicegeek.ProjectMessagesParams{
		ProjectID: s.projectID,
		Page:      page,
		Limit:     servicegeek.MessagesPageSize,
		SortBy:    servicegeek.MessagesSortBy,
		SortOrder: servicegeek.MessagesSortOrder,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads--

	if gen != s.gen {
		return ErrStale
	}
	if err != nil {
		s.lastErr = "failed to load messages: " + err.Error()
		s.timeline.Reset()
		return fmt.Errorf("chat: load page %d: %w", page, err)
	}

	hp, err := DecodeHistoryPage(raw)
	if err != nil {
		s.logger.Debug("unrecognized history page", "page", page, "error", err)
		hp = HistoryPage{Meta: DefaultPageMeta}
	}
	if page == 1 {
		s.timeline.ReplaceNewestFirst(hp.Messages)
	} else {
		s.timeline.Merge(hp.Messages)
	}
	s.page = page
	s.hasMore = hp.HasMore()
	s.metrics.historyPage()
	return nil
}

// Loading reports whether a history load is in flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads > 0
}

// HasMore reports whether older history pages remain.
func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// CurrentPage returns the last page loaded successfully.
func (s *Session) CurrentPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}
