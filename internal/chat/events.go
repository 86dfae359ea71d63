package chat

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"social/infrastructure"
)

const (
	Namespace = "chat"

	maxContentRunes = 5000
)

// Inbound is a client event on the chat namespace.
type Inbound interface {
	inboundName() string
}

type JoinConversation struct {
	ConversationID string `json:"conversationId"`
}

type LeaveConversation struct {
	ConversationID string `json:"conversationId"`
}

type SendMessage struct {
	ConversationID string  `json:"conversationId"`
	Content        string  `json:"content"`
	MediaURL       *string `json:"mediaUrl,omitempty"`
}

type MarkAsRead struct {
	ConversationID string `json:"conversationId"`
}

type Typing struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// MarkAllAsRead belongs to the notification namespace; chat rejects it.
type MarkAllAsRead struct{}

func (JoinConversation) inboundName() string  { return "joinConversation" }
func (LeaveConversation) inboundName() string { return "leaveConversation" }
func (SendMessage) inboundName() string       { return "sendMessage" }
func (MarkAsRead) inboundName() string        { return "markAsRead" }
func (Typing) inboundName() string            { return "typing" }
func (MarkAllAsRead) inboundName() string     { return "markAllAsRead" }

// DecodeInbound parses a wire frame into an Inbound event.
func DecodeInbound(eventType string, payload json.RawMessage) (Inbound, error) {
	var in Inbound
	switch eventType {
	case "joinConversation":
		in = &JoinConversation{}
	case "leaveConversation":
		in = &LeaveConversation{}
	case "sendMessage":
		in = &SendMessage{}
	case "markAsRead":
		in = &MarkAsRead{}
	case "typing":
		in = &Typing{}
	case "markAllAsRead":
		return MarkAllAsRead{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", infrastructure.ErrUnsupportedEvent, eventType)
	}
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, in); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", infrastructure.ErrInvalidInput, eventType, err)
		}
	}
	switch ev := in.(type) {
	case *JoinConversation:
		return *ev, nil
	case *LeaveConversation:
		return *ev, nil
	case *SendMessage:
		return *ev, nil
	case *MarkAsRead:
		return *ev, nil
	case *Typing:
		return *ev, nil
	}
	return in, nil
}

func validateConversationID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: conversationId is required", infrastructure.ErrInvalidInput)
	}
	return nil
}

// normalize trims content and rejects messages that carry nothing to show.
func (m SendMessage) normalize() (SendMessage, error) {
	if err := validateConversationID(m.ConversationID); err != nil {
		return m, err
	}
	m.Content = strings.TrimSpace(m.Content)
	if m.MediaURL != nil {
		trimmed := strings.TrimSpace(*m.MediaURL)
		if trimmed == "" {
			m.MediaURL = nil
		} else {
			u, err := url.Parse(trimmed)
			if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return m, fmt.Errorf("%w: mediaUrl must be an absolute http(s) URL", infrastructure.ErrInvalidInput)
			}
			m.MediaURL = &trimmed
		}
	}
	if m.Content == "" && m.MediaURL == nil {
		return m, fmt.Errorf("%w: message content is required", infrastructure.ErrInvalidInput)
	}
	if utf8.RuneCountInString(m.Content) > maxContentRunes {
		return m, fmt.Errorf("%w: message content exceeds %d characters", infrastructure.ErrInvalidInput, maxContentRunes)
	}
	return m, nil
}

// Outbound events.

type MembersOnline struct {
	ConversationID string   `json:"conversationId"`
	UserIDs        []string `json:"userIds"`
}

func (MembersOnline) EventName() string { return "membersOnline" }

type NewMessage struct {
	Message *Message `json:"message"`
}

func (NewMessage) EventName() string { return "newMessage" }

type ConversationRead struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

func (ConversationRead) EventName() string { return "conversationRead" }

type UserTyping struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

func (UserTyping) EventName() string { return "userTyping" }
