package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/datatypes"

	"social/infrastructure"
	"social/internal/user"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Emitter delivers notification state to live connections.
type Emitter interface {
	EmitToUser(userID string, n *Notification) int
	PushUnreadCount(ctx context.Context, userID string)
}

// UserLookup resolves recipients to read their notification preference.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

type CreateInput struct {
	RecipientID string         `json:"recipientId"`
	SenderID    string         `json:"senderId"`
	Type        Type           `json:"type"`
	Data        map[string]any `json:"data,omitempty"`
}

// Service creates and lists notifications. Created notifications are
// persisted before they are pushed.
type Service struct {
	repo    Repository
	users   UserLookup
	emitter Emitter
	logger  *slog.Logger
}

func NewService(repo Repository, users UserLookup, emitter Emitter) *Service {
	return &Service{
		repo:    repo,
		users:   users,
		emitter: emitter,
		logger:  slog.Default().With("component", "notification_service"),
	}
}

// Create stores a notification and pushes it to the recipient. It returns
// nil, nil when the notification is suppressed: the sender is the recipient,
// or the recipient turned notifications off.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Notification, error) {
	in.RecipientID = strings.TrimSpace(in.RecipientID)
	in.SenderID = strings.TrimSpace(in.SenderID)
	if in.RecipientID == "" || in.SenderID == "" {
		return nil, fmt.Errorf("%w: recipientId and senderId are required", infrastructure.ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown notification type %q", infrastructure.ErrInvalidInput, in.Type)
	}
	if in.RecipientID == in.SenderID {
		return nil, nil
	}

	recipient, err := s.users.GetByID(ctx, in.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipient: %w", err)
	}
	if !recipient.NotificationEnabled {
		s.logger.Debug("notification suppressed by preference", "user_id", in.RecipientID, "type", in.Type)
		return nil, nil
	}

	n := &Notification{
		RecipientID: in.RecipientID,
		SenderID:    in.SenderID,
		Type:        in.Type,
	}
	if len(in.Data) > 0 {
		raw, err := json.Marshal(in.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: notification data: %v", infrastructure.ErrInvalidInput, err)
		}
		n.Data = datatypes.JSON(raw)
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	s.emitter.EmitToUser(n.RecipientID, n)
	return n, nil
}

func (s *Service) NotifyLike(ctx context.Context, likerID, authorID, postID string) (*Notification, error) {
	return s.Create(ctx, CreateInput{
		RecipientID: authorID,
		SenderID:    likerID,
		Type:        TypeLike,
		Data:        map[string]any{"postId": postID},
	})
}

func (s *Service) NotifyComment(ctx context.Context, commenterID, authorID, postID, commentID string) (*Notification, error) {
	return s.Create(ctx, CreateInput{
		RecipientID: authorID,
		SenderID:    commenterID,
		Type:        TypeComment,
		Data:        map[string]any{"postId": postID, "commentId": commentID},
	})
}

func (s *Service) NotifyFollow(ctx context.Context, followerID, followeeID string) (*Notification, error) {
	return s.Create(ctx, CreateInput{
		RecipientID: followeeID,
		SenderID:    followerID,
		Type:        TypeFollow,
	})
}

// List returns a page of the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, page, limit int) ([]Notification, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return s.repo.ListByRecipient(ctx, userID, limit, (page-1)*limit)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

// MarkAsRead is the REST counterpart of the realtime event; live connections
// get the refreshed count.
func (s *Service) MarkAsRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkAsRead(ctx, id, userID); err != nil {
		return err
	}
	s.emitter.PushUnreadCount(ctx, userID)
	return nil
}

func (s *Service) MarkAllAsRead(ctx context.Context, userID string) error {
	if err := s.repo.MarkAllAsRead(ctx, userID); err != nil {
		return err
	}
	s.emitter.PushUnreadCount(ctx, userID)
	return nil
}
