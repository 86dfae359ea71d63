package chat

import "time"

type Member struct {
	UserID  string `json:"userId"`
	HasLeft bool   `json:"hasLeft"`
}

type Conversation struct {
	ID        string    `json:"id"`
	IsGroup   bool      `json:"isGroup"`
	Name      *string   `json:"name,omitempty"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ActiveMemberIDs returns the ids of members that have not left.
func (c *Conversation) ActiveMemberIDs() []string {
	ids := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		if !m.HasLeft {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	MediaURL       *string   `json:"mediaUrl,omitempty"`
	IsRead         bool      `json:"isRead"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConversationSummary is a conversation as listed for one user.
type ConversationSummary struct {
	Conversation
	LastMessage *Message `json:"lastMessage,omitempty"`
	// Participants are the other non-left members.
	Participants []string `json:"participants"`
}

// Table definitions used only for schema migration. Reads and writes go
// through PostgresRepository.

type conversationRecord struct {
	ID        string  `gorm:"type:varchar(36);primaryKey"`
	IsGroup   bool    `gorm:"not null;default:false"`
	Name      *string `gorm:"type:varchar(100)"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

func (conversationRecord) TableName() string { return "conversations" }

type memberRecord struct {
	ID             string `gorm:"type:varchar(36);primaryKey"`
	ConversationID string `gorm:"type:varchar(36);not null;uniqueIndex:idx_conversation_members_pair,priority:1"`
	UserID         string `gorm:"type:varchar(36);not null;uniqueIndex:idx_conversation_members_pair,priority:2;index"`
	HasLeft        bool   `gorm:"not null;default:false"`
	CreatedAt      time.Time
}

func (memberRecord) TableName() string { return "conversation_members" }

type messageRecord struct {
	ID             string    `gorm:"type:varchar(36);primaryKey"`
	ConversationID string    `gorm:"type:varchar(36);not null;index:idx_messages_conversation_created,priority:1"`
	SenderID       string    `gorm:"type:varchar(36);not null;index"`
	Content        string    `gorm:"type:text;not null"`
	MediaURL       *string   `gorm:"type:text"`
	IsRead         bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"index:idx_messages_conversation_created,priority:2"`
}

func (messageRecord) TableName() string { return "messages" }

// Tables returns the chat schema for migration.
func Tables() []any {
	return []any{&conversationRecord{}, &memberRecord{}, &messageRecord{}}
}
