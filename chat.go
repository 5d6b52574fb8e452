package servicegeek

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Author is the user attached to a chat message.
type Author struct {
	ID        string  `json:"id"`
	FirstName string  `json:"firstName,omitempty"`
	LastName  string  `json:"lastName,omitempty"`
	Email     string  `json:"email,omitempty"`
	Avatar    *string `json:"avatar,omitempty"`
}

// DisplayName returns "First Last", falling back to the email and then the id.
func (a Author) DisplayName() string {
	if name := strings.TrimSpace(a.FirstName + " " + a.LastName); name != "" {
		return name
	}
	if a.Email != "" {
		return a.Email
	}
	return a.ID
}

// Message is a project chat message. Messages are identified by ID and
// never edited in place by this client.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"userId"`
	Author    Author    `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SenderID returns the author id, preferring the flat userId field.
func (m Message) SenderID() string {
	if m.AuthorID != "" {
		return m.AuthorID
	}
	return m.Author.ID
}

// Chat history query defaults.
const (
	MessagesPageSize  = 50
	MessagesSortBy    = "createdAt"
	MessagesSortOrder = "desc"
)

type ProjectMessagesParams struct {
	ProjectID string
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// ProjectMessages fetches one page of a project's chat history.
//
// The body is returned undecoded: the server has answered with more than
// one envelope shape over time, and decoding is the caller's concern.
func (c *Client) ProjectMessages(ctx context.Context, p ProjectMessagesParams) (json.RawMessage, error) {
	path := "/chat/project/" + urlPathEscape(p.ProjectID) + "/messages"
	sep := "?"
	if p.Page > 0 {
		path += sep + "page=" + itoa(p.Page)
		sep = "&"
	}
	if p.Limit > 0 {
		path += sep + "limit=" + itoa(p.Limit)
		sep = "&"
	}
	if p.SortBy != "" {
		path += sep + "sortBy=" + urlQueryEscape(p.SortBy)
		sep = "&"
	}
	if p.SortOrder != "" {
		path += sep + "sortOrder=" + urlQueryEscape(p.SortOrder)
	}
	data, err := c.doBytes(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

type CreateMessageRequest struct {
	Content string `json:"content"`
}

// CreateProjectMessage posts a message to the project chat.
func (c *Client) CreateProjectMessage(ctx context.Context, projectID string, req *CreateMessageRequest) (*Message, error) {
	var out Message
	if err := c.post(ctx, "/chat/project/"+urlPathEscape(projectID)+"/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type DeleteMessageResponse struct {
	Success bool `json:"success"`
}

// DeleteMessage deletes a chat message by id.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) (*DeleteMessageResponse, error) {
	var out DeleteMessageResponse
	if err := c.delete(ctx, "/chat/messages/"+urlPathEscape(messageID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type ConnectionStatus struct {
	Connected bool `json:"connected"`
}

// CheckConnection probes GET /health. It never returns an error; an
// unreachable or unhealthy server reports Connected=false.
func (c *Client) CheckConnection(ctx context.Context) ConnectionStatus {
	if err := c.get(ctx, "/health", nil); err != nil {
		return ConnectionStatus{Connected: false}
	}
	return ConnectionStatus{Connected: true}
}
