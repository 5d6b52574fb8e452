// Package transport is the live side of the project chat: a
// bidirectional, event-based channel to the chat gateway.
//
// A Transport opens sessions; a Conn is one open session. Inbound
// traffic is delivered as Event values over Conn.Events, in arrival
// order, so consumers dispatch with a type switch instead of registering
// one callback per event name. Outbound traffic is a Command passed to
// Conn.Emit.
//
// This layer does not reconnect and adds no timeouts of its own; both
// are the caller's decision, expressed through the context it passes.
package transport

import (
	"context"
	"errors"

	servicegeek "github.com/service-geek/client"
)

// ErrClosed is returned by Emit after the connection has been closed.
var ErrClosed = errors.New("transport: connection closed")

// Transport opens live sessions authenticated with a credential.
type Transport interface {
	Connect(ctx context.Context, credential string) (Conn, error)
}

// Conn is one open live session.
type Conn interface {
	// Events delivers inbound events. The first event of a session is
	// Connected. When the remote side ends the session, Disconnected is
	// delivered and the channel is closed.
	Events() <-chan Event

	// Emit sends a command to the gateway.
	Emit(ctx context.Context, cmd Command) error

	// Close releases the session. Safe to call more than once.
	Close() error
}

// Event is an inbound transport event. The concrete types below are the
// complete set.
type Event interface {
	// Name is the wire name of the event.
	Name() string
	isEvent()
}

// Connected is delivered once the session is open.
type Connected struct{}

// Disconnected is delivered when the session ends.
type Disconnected struct {
	Reason string
}

// ConnectError reports a failure establishing or keeping the session.
type ConnectError struct {
	Err error
}

// NewMessage is a message pushed to the joined project.
type NewMessage struct {
	Message servicegeek.Message
}

// UserJoined reports another user joining the project chat.
type UserJoined struct {
	UserID string
}

// UserLeft reports another user leaving the project chat.
type UserLeft struct {
	UserID string
}

// UserTyping reports a change in another user's typing state.
type UserTyping struct {
	UserID   string
	IsTyping bool
}

// ServerError is an error reported by the gateway, e.g. a rejected join.
type ServerError struct {
	Message string
}

// MessageDeleted reports that a message was deleted by someone.
type MessageDeleted struct {
	MessageID string
}

func (Connected) Name() string      { return "connect" }
func (Disconnected) Name() string   { return "disconnect" }
func (ConnectError) Name() string   { return "connect_error" }
func (NewMessage) Name() string     { return "newMessage" }
func (UserJoined) Name() string     { return "userJoined" }
func (UserLeft) Name() string       { return "userLeft" }
func (UserTyping) Name() string     { return "userTyping" }
func (ServerError) Name() string    { return "error" }
func (MessageDeleted) Name() string { return "messageDeleted" }

func (Connected) isEvent()      {}
func (Disconnected) isEvent()   {}
func (ConnectError) isEvent()   {}
func (NewMessage) isEvent()     {}
func (UserJoined) isEvent()     {}
func (UserLeft) isEvent()       {}
func (UserTyping) isEvent()     {}
func (ServerError) isEvent()    {}
func (MessageDeleted) isEvent() {}

// Command is an outbound transport command. The value itself is the
// payload.
type Command interface {
	Name() string
}

// JoinProject subscribes the session to a project's chat room.
type JoinProject struct {
	ProjectID string `json:"projectId"`
}

// LeaveProject unsubscribes the session from its current room.
type LeaveProject struct{}

// SendMessage posts a message through the live session. The gateway
// echoes it back as NewMessage to everyone in the room, sender included.
type SendMessage struct {
	ProjectID string `json:"projectId"`
	Content   string `json:"content"`
}

// Typing announces the local user's typing state.
type Typing struct {
	ProjectID string `json:"projectId"`
	IsTyping  bool   `json:"isTyping"`
}

func (JoinProject) Name() string  { return "joinProject" }
func (LeaveProject) Name() string { return "leaveProject" }
func (SendMessage) Name() string  { return "sendMessage" }
func (Typing) Name() string       { return "typing" }
