package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"social/infrastructure"
)

const (
	defaultMessagesLimit = 50
	maxMessagesLimit     = 100
	maxGroupNameRunes    = 100
)

// Service holds the request/response conversation use cases. Live delivery
// goes through Gateway; Messages is the authoritative pull path.
type Service struct {
	repo  Repository
	rooms RoomEvictor
}

// RoomEvictor removes a user's live connections from a conversation room.
type RoomEvictor interface {
	EvictFromConversation(userID, conversationID string)
}

// NewService creates a Service. rooms may be nil.
func NewService(repo Repository, rooms RoomEvictor) *Service {
	return &Service{repo: repo, rooms: rooms}
}

// FindOrCreateDirect returns the 1:1 conversation between userID and otherID,
// creating it when none exists.
func (s *Service) FindOrCreateDirect(ctx context.Context, userID, otherID string) (*Conversation, error) {
	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return nil, fmt.Errorf("%w: participant is required", infrastructure.ErrInvalidInput)
	}
	if otherID == userID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", infrastructure.ErrInvalidInput)
	}

	conv, err := s.repo.FindDirectConversation(ctx, userID, otherID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, infrastructure.ErrConversationNotFound) {
		return nil, fmt.Errorf("failed to find direct conversation: %w", err)
	}

	conv, err = s.repo.CreateConversation(ctx, false, nil, []string{userID, otherID})
	if err != nil {
		return nil, fmt.Errorf("failed to create direct conversation: %w", err)
	}
	return conv, nil
}

// CreateGroup creates a group conversation. The creator is always a member.
func (s *Service) CreateGroup(ctx context.Context, userID, name string, participantIDs []string) (*Conversation, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) > maxGroupNameRunes {
		return nil, fmt.Errorf("%w: group name exceeds %d characters", infrastructure.ErrInvalidInput, maxGroupNameRunes)
	}

	seen := map[string]bool{userID: true}
	members := []string{userID}
	for _, id := range participantIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) < 2 {
		return nil, fmt.Errorf("%w: a group needs at least one other participant", infrastructure.ErrInvalidInput)
	}

	var groupName *string
	if name != "" {
		groupName = &name
	}
	conv, err := s.repo.CreateConversation(ctx, true, groupName, members)
	if err != nil {
		return nil, fmt.Errorf("failed to create group conversation: %w", err)
	}
	return conv, nil
}

func (s *Service) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	return s.repo.ListConversations(ctx, userID)
}

// Messages returns a page of history, newest first, to an active member.
// RequireMember returns ErrNotMember unless userID is an active member.
func (s *Service) RequireMember(ctx context.Context, conversationID, userID string) error {
	if err := validateConversationID(conversationID); err != nil {
		return err
	}
	isMember, err := s.repo.IsConversationMember(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return infrastructure.ErrNotMember
	}
	return nil
}

func (s *Service) Messages(ctx context.Context, conversationID, userID string, page, limit int) ([]Message, error) {
	if err := s.RequireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	page, limit = Paginate(page, limit, defaultMessagesLimit, maxMessagesLimit)
	return s.repo.ListMessages(ctx, conversationID, limit, (page-1)*limit)
}

func (s *Service) Leave(ctx context.Context, conversationID, userID string) error {
	if err := validateConversationID(conversationID); err != nil {
		return err
	}
	if err := s.repo.LeaveConversation(ctx, conversationID, userID); err != nil {
		return err
	}
	if s.rooms != nil {
		s.rooms.EvictFromConversation(userID, conversationID)
	}
	return nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.GetUnreadMessageCount(ctx, userID)
}

// Paginate clamps page to >= 1 and limit to [1, max], using def when unset.
func Paginate(page, limit, def, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return page, limit
}
