// Package chattest provides an in-memory chat.Repository for tests.
package chattest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"social/infrastructure"
	"social/internal/chat"
)

// Repository is a goroutine-safe in-memory chat.Repository. Set Fail to make
// every call return a store failure.
type Repository struct {
	mu            sync.Mutex
	conversations map[string]*chat.Conversation
	messages      []chat.Message
	clock         time.Time

	Fail error
	// Writes counts successful mutating calls.
	Writes int
}

func NewRepository() *Repository {
	return &Repository{
		conversations: make(map[string]*chat.Conversation),
		clock:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *Repository) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

// AddConversation seeds a conversation with the given active members and
// returns its id.
func (r *Repository) AddConversation(isGroup bool, memberIDs ...string) string {
	conv, _ := r.CreateConversation(context.Background(), isGroup, nil, memberIDs)
	r.mu.Lock()
	r.Writes--
	r.mu.Unlock()
	return conv.ID
}

// AddMessage seeds a persisted message without touching Writes.
func (r *Repository) AddMessage(conversationID, senderID, content string) chat.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      r.tick(),
	}
	r.messages = append(r.messages, msg)
	return msg
}

// Messages returns a copy of all stored messages in insertion order.
func (r *Repository) Messages() []chat.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chat.Message(nil), r.messages...)
}

func (r *Repository) isMember(conversationID, userID string) bool {
	conv, ok := r.conversations[conversationID]
	if !ok {
		return false
	}
	for _, m := range conv.Members {
		if m.UserID == userID && !m.HasLeft {
			return true
		}
	}
	return false
}

func (r *Repository) IsConversationMember(_ context.Context, conversationID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return false, r.Fail
	}
	return r.isMember(conversationID, userID), nil
}

func (r *Repository) GetConversationMembers(_ context.Context, conversationID string) ([]chat.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return nil, r.Fail
	}
	conv, ok := r.conversations[conversationID]
	if !ok {
		return nil, infrastructure.ErrConversationNotFound
	}
	return append([]chat.Member(nil), conv.Members...), nil
}

func (r *Repository) AppendMessage(_ context.Context, conversationID, senderID, content string, mediaURL *string) (*chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return nil, r.Fail
	}
	if !r.isMember(conversationID, senderID) {
		return nil, infrastructure.ErrNotMember
	}
	msg := chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		MediaURL:       mediaURL,
		CreatedAt:      r.tick(),
	}
	r.messages = append(r.messages, msg)
	r.conversations[conversationID].UpdatedAt = msg.CreatedAt
	r.Writes++
	return &msg, nil
}

func (r *Repository) MarkConversationRead(_ context.Context, conversationID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	for i := range r.messages {
		m := &r.messages[i]
		if m.ConversationID == conversationID && m.SenderID != userID {
			m.IsRead = true
		}
	}
	r.Writes++
	return nil
}

func (r *Repository) GetUnreadMessageCount(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return 0, r.Fail
	}
	count := 0
	for _, m := range r.messages {
		if !m.IsRead && m.SenderID != userID && r.isMember(m.ConversationID, userID) {
			count++
		}
	}
	return count, nil
}

func (r *Repository) FindDirectConversation(_ context.Context, userA, userB string) (*chat.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return nil, r.Fail
	}
	for _, conv := range r.sortedConversations() {
		if conv.IsGroup {
			continue
		}
		if r.isMember(conv.ID, userA) && r.isMember(conv.ID, userB) {
			c := *conv
			return &c, nil
		}
	}
	return nil, infrastructure.ErrConversationNotFound
}

func (r *Repository) CreateConversation(_ context.Context, isGroup bool, name *string, memberIDs []string) (*chat.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return nil, r.Fail
	}
	now := r.tick()
	conv := &chat.Conversation{
		ID:        uuid.NewString(),
		IsGroup:   isGroup,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, id := range memberIDs {
		conv.Members = append(conv.Members, chat.Member{UserID: id})
	}
	r.conversations[conv.ID] = conv
	r.Writes++
	c := *conv
	return &c, nil
}

func (r *Repository) GetConversation(_ context.Context, conversationID string) (*chat.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return nil, r.Fail
	}
	conv, ok := r.conversations[conversationID]
	if !ok {
		return nil, infrastructure.ErrConversationNotFound
	}
	c := *conv
	c.Members = append([]chat.Member(nil), conv.Members...)
	return &c, nil
}

func (r *Repository) ListConversations(_ context.Context, userID string) ([]chat.ConversationSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return nil, r.Fail
	}
	summaries := []chat.ConversationSummary{}
	for _, conv := range r.sortedConversations() {
		if !r.isMember(conv.ID, userID) {
			continue
		}
		s := chat.ConversationSummary{Conversation: *conv, Participants: []string{}}
		for _, m := range conv.Members {
			if !m.HasLeft && m.UserID != userID {
				s.Participants = append(s.Participants, m.UserID)
			}
		}
		for i := len(r.messages) - 1; i >= 0; i-- {
			if r.messages[i].ConversationID == conv.ID {
				last := r.messages[i]
				s.LastMessage = &last
				break
			}
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func (r *Repository) ListMessages(_ context.Context, conversationID string, limit, offset int) ([]chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return nil, r.Fail
	}
	out := []chat.Message{}
	skipped := 0
	for i := len(r.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if r.messages[i].ConversationID != conversationID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, r.messages[i])
	}
	return out, nil
}

func (r *Repository) LeaveConversation(_ context.Context, conversationID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	conv, ok := r.conversations[conversationID]
	if !ok {
		return infrastructure.ErrNotMember
	}
	for i := range conv.Members {
		if conv.Members[i].UserID == userID && !conv.Members[i].HasLeft {
			conv.Members[i].HasLeft = true
			r.Writes++
			return nil
		}
	}
	return infrastructure.ErrNotMember
}

// sortedConversations orders by updatedAt descending. Caller holds r.mu.
func (r *Repository) sortedConversations() []*chat.Conversation {
	convs := make([]*chat.Conversation, 0, len(r.conversations))
	for _, c := range r.conversations {
		convs = append(convs, c)
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return convs
}

var _ chat.Repository = (*Repository)(nil)
