package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Type string

const (
	TypeLike    Type = "LIKE"
	TypeComment Type = "COMMENT"
	TypeFollow  Type = "FOLLOW"
)

func (t Type) Valid() bool {
	switch t {
	case TypeLike, TypeComment, TypeFollow:
		return true
	}
	return false
}

type Notification struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	RecipientID string         `gorm:"type:varchar(36);not null;index:idx_notifications_recipient_read,priority:1;index:idx_notifications_recipient_created,priority:1" json:"recipientId"`
	SenderID    string         `gorm:"type:varchar(36);not null" json:"senderId"`
	Type        Type           `gorm:"type:varchar(16);not null" json:"type"`
	Data        datatypes.JSON `json:"data,omitempty"`
	IsRead      bool           `gorm:"not null;default:false;index:idx_notifications_recipient_read,priority:2" json:"isRead"`
	CreatedAt   time.Time      `gorm:"index:idx_notifications_recipient_created,priority:2" json:"createdAt"`

	// Sender is filled on listings only.
	Sender *Sender `gorm:"-" json:"sender,omitempty"`
}

// Sender is the public part of the user that caused a notification.
type Sender struct {
	ID   string  `json:"id"`
	Name *string `json:"name,omitempty"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
