package notifications

import (
	"context"

	"gorm.io/gorm"

	"social/infrastructure"
)

// Store is what the realtime gateway needs from notification storage.
type Store interface {
	// MarkAsRead flips one notification owned by recipientID. It returns
	// ErrNotificationNotFound when no such notification exists.
	MarkAsRead(ctx context.Context, id, recipientID string) error
	MarkAllAsRead(ctx context.Context, recipientID string) error
	UnreadCount(ctx context.Context, recipientID string) (int, error)
}

type Repository interface {
	Store
	Create(ctx context.Context, n *Notification) error
	// ListByRecipient returns notifications newest first.
	ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]Notification, error)
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Create(ctx context.Context, n *Notification) error {
	return infrastructure.StoreError("create notification", r.db.WithContext(ctx).Create(n).Error)
}

func (r *GormRepository) ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]Notification, error) {
	list := []Notification{}
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&list).Error
	if err != nil {
		return nil, infrastructure.StoreError("list notifications", err)
	}
	if err := r.attachSenders(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// attachSenders loads the public fields of each distinct sender in one query.
// Senders that no longer exist are left nil.
func (r *GormRepository) attachSenders(ctx context.Context, list []Notification) error {
	if len(list) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(list))
	ids := make([]string, 0, len(list))
	for _, n := range list {
		if _, ok := seen[n.SenderID]; !ok {
			seen[n.SenderID] = struct{}{}
			ids = append(ids, n.SenderID)
		}
	}

	var senders []Sender
	err := r.db.WithContext(ctx).Table("users").
		Select("id", "name").
		Where("id IN ?", ids).
		Find(&senders).Error
	if err != nil {
		return infrastructure.StoreError("load notification senders", err)
	}
	byID := make(map[string]*Sender, len(senders))
	for i := range senders {
		byID[senders[i].ID] = &senders[i]
	}
	for i := range list {
		list[i].Sender = byID[list[i].SenderID]
	}
	return nil
}

func (r *GormRepository) MarkAsRead(ctx context.Context, id, recipientID string) error {
	res := r.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Update("is_read", true)
	if res.Error != nil {
		return infrastructure.StoreError("mark notification read", res.Error)
	}
	if res.RowsAffected == 0 {
		return infrastructure.ErrNotificationNotFound
	}
	return nil
}

func (r *GormRepository) MarkAllAsRead(ctx context.Context, recipientID string) error {
	err := r.db.WithContext(ctx).Model(&Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Update("is_read", true).Error
	return infrastructure.StoreError("mark all notifications read", err)
}

func (r *GormRepository) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	if err != nil {
		return 0, infrastructure.StoreError("count unread notifications", err)
	}
	return int(count), nil
}
