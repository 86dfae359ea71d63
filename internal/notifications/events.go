package notifications

import (
	"encoding/json"
	"fmt"
	"strings"

	"social/infrastructure"
)

const Namespace = "notifications"

// Inbound is a client event on the notification namespace.
type Inbound interface {
	inboundName() string
}

type MarkAsRead struct {
	NotificationID string `json:"notificationId"`
}

type MarkAllAsRead struct{}

// Unsupported stands for a known event of another namespace.
type Unsupported struct {
	Type string
}

func (MarkAsRead) inboundName() string    { return "markAsRead" }
func (MarkAllAsRead) inboundName() string { return "markAllAsRead" }
func (Unsupported) inboundName() string   { return "unsupported" }

func DecodeInbound(eventType string, payload json.RawMessage) (Inbound, error) {
	switch eventType {
	case "markAsRead":
		var ev MarkAsRead
		if len(payload) > 0 && string(payload) != "null" {
			if err := json.Unmarshal(payload, &ev); err != nil {
				return nil, fmt.Errorf("%w: markAsRead payload: %v", infrastructure.ErrInvalidInput, err)
			}
		}
		ev.NotificationID = strings.TrimSpace(ev.NotificationID)
		return ev, nil
	case "markAllAsRead":
		return MarkAllAsRead{}, nil
	case "joinConversation", "leaveConversation", "sendMessage", "typing":
		return Unsupported{Type: eventType}, nil
	}
	return nil, fmt.Errorf("%w: %q", infrastructure.ErrUnsupportedEvent, eventType)
}

// Event delivers one notification to its recipient.
type Event struct {
	Notification *Notification `json:"notification"`
}

func (Event) EventName() string { return "notification" }
