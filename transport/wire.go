package transport

import (
	"encoding/json"
	"fmt"

	servicegeek "github.com/service-geek/client"
)

// envelope is the frame format in both directions.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type userPayload struct {
	UserID string `json:"userId"`
}

type typingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type deletedPayload struct {
	MessageID string `json:"messageId"`
}

// EncodeCommand renders a command as a wire frame.
func EncodeCommand(cmd Command) ([]byte, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("transport: encode %s: %w", cmd.Name(), err)
	}
	return json.Marshal(envelope{Type: cmd.Name(), Payload: payload})
}

// DecodeEvent parses an inbound wire frame. Frames with an unknown type
// return an error; callers skip them.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("transport: decode frame: %w", err)
	}
	if len(env.Payload) == 0 {
		env.Payload = json.RawMessage("{}")
	}

	switch env.Type {
	case "newMessage":
		var m servicegeek.Message
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("transport: decode newMessage: %w", err)
		}
		if m.ID == "" {
			return nil, fmt.Errorf("transport: newMessage without id")
		}
		return NewMessage{Message: m}, nil
	case "userJoined", "userLeft":
		var p userPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("transport: decode %s: %w", env.Type, err)
		}
		if env.Type == "userJoined" {
			return UserJoined{UserID: p.UserID}, nil
		}
		return UserLeft{UserID: p.UserID}, nil
	case "userTyping":
		var p typingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("transport: decode userTyping: %w", err)
		}
		return UserTyping{UserID: p.UserID, IsTyping: p.IsTyping}, nil
	case "error":
		var p errorPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("transport: decode error: %w", err)
		}
		return ServerError{Message: p.Message}, nil
	case "messageDeleted":
		var p deletedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("transport: decode messageDeleted: %w", err)
		}
		return MessageDeleted{MessageID: p.MessageID}, nil
	default:
		return nil, fmt.Errorf("transport: unknown event type %q", env.Type)
	}
}
