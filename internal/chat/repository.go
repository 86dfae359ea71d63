package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"social/infrastructure"
)

// Store is what the realtime gateway needs from conversation storage.
type Store interface {
	IsConversationMember(ctx context.Context, conversationID, userID string) (bool, error)
	GetConversationMembers(ctx context.Context, conversationID string) ([]Member, error)
	// AppendMessage inserts the message and bumps the conversation's updatedAt
	// in one transaction. It returns ErrNotMember when the sender is not an
	// active member at insert time.
	AppendMessage(ctx context.Context, conversationID, senderID, content string, mediaURL *string) (*Message, error)
	// MarkConversationRead marks messages not authored by userID as read.
	MarkConversationRead(ctx context.Context, conversationID, userID string) error
	GetUnreadMessageCount(ctx context.Context, userID string) (int, error)
}

// Repository adds the conversation management used by the REST surface.
type Repository interface {
	Store
	FindDirectConversation(ctx context.Context, userA, userB string) (*Conversation, error)
	CreateConversation(ctx context.Context, isGroup bool, name *string, memberIDs []string) (*Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]Message, error)
	LeaveConversation(ctx context.Context, conversationID, userID string) error
}

type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

// timestamp matches Postgres microsecond precision so the returned value equals
// what a later read sees.
func (r *PostgresRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

func (r *PostgresRepository) IsConversationMember(ctx context.Context, conversationID, userID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_members
			WHERE conversation_id = $1 AND user_id = $2 AND has_left = false
		)
	`, conversationID, userID).Scan(&ok)
	if err != nil {
		return false, infrastructure.StoreError("check membership", err)
	}
	return ok, nil
}

func (r *PostgresRepository) GetConversationMembers(ctx context.Context, conversationID string) ([]Member, error) {
	members, err := queryMembers(ctx, r.db, conversationID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		if _, err := r.GetConversation(ctx, conversationID); err != nil {
			return nil, err
		}
	}
	return members, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryMembers(ctx context.Context, q queryer, conversationID string) ([]Member, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id, has_left FROM conversation_members
		WHERE conversation_id = $1 ORDER BY created_at, user_id
	`, conversationID)
	if err != nil {
		return nil, infrastructure.StoreError("query members", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.HasLeft); err != nil {
			return nil, infrastructure.StoreError("scan member", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, infrastructure.StoreError("iterate members", err)
	}
	return members, nil
}

// AppendMessage stores a message from an active member. Appends to one
// conversation serialise on its row, and the timestamp is taken after that
// lock, so created_at order matches commit order.
func (r *PostgresRepository) AppendMessage(ctx context.Context, conversationID, senderID, content string, mediaURL *string) (*Message, error) {
	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		MediaURL:       mediaURL,
	}
	err := infrastructure.TimeOperation(ctx, "chat.AppendMessage", func() error {
		return infrastructure.WithTransaction(r.db, ctx, func(tx *sql.Tx) error {
			var one int
			err := tx.QueryRowContext(ctx, `
				SELECT 1 FROM conversations WHERE id = $1 FOR NO KEY UPDATE
			`, conversationID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return infrastructure.ErrNotMember
			}
			if err != nil {
				return infrastructure.StoreError("lock conversation", err)
			}

			// Lock the membership row so a concurrent leave cannot interleave.
			err = tx.QueryRowContext(ctx, `
				SELECT 1 FROM conversation_members
				WHERE conversation_id = $1 AND user_id = $2 AND has_left = false
				FOR SHARE
			`, conversationID, senderID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return infrastructure.ErrNotMember
			}
			if err != nil {
				return infrastructure.StoreError("lock membership", err)
			}

			msg.CreatedAt = r.timestamp()
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO messages (id, conversation_id, sender_id, content, media_url, is_read, created_at)
				VALUES ($1, $2, $3, $4, $5, false, $6)
			`, msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.MediaURL, msg.CreatedAt); err != nil {
				return infrastructure.StoreError("insert message", err)
			}

			if _, err := tx.ExecContext(ctx, `
				UPDATE conversations SET updated_at = $2 WHERE id = $1
			`, conversationID, msg.CreatedAt); err != nil {
				return infrastructure.StoreError("touch conversation", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *PostgresRepository) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages SET is_read = true
		WHERE conversation_id = $1 AND sender_id <> $2 AND is_read = false
	`, conversationID, userID)
	return infrastructure.StoreError("mark conversation read", err)
}

func (r *PostgresRepository) GetUnreadMessageCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages m
		JOIN conversation_members cm
			ON cm.conversation_id = m.conversation_id AND cm.user_id = $1 AND cm.has_left = false
		WHERE m.sender_id <> $1 AND m.is_read = false
	`, userID).Scan(&count)
	if err != nil {
		return 0, infrastructure.StoreError("count unread messages", err)
	}
	return count, nil
}

// FindDirectConversation returns the 1:1 conversation in which both users are
// active members, or ErrConversationNotFound.
func (r *PostgresRepository) FindDirectConversation(ctx context.Context, userA, userB string) (*Conversation, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT c.id FROM conversations c
		WHERE c.is_group = false
		AND (
			SELECT COUNT(*) FROM conversation_members cm
			WHERE cm.conversation_id = c.id AND cm.has_left = false AND cm.user_id = ANY($1)
		) = 2
		ORDER BY c.updated_at DESC
		LIMIT 1
	`, pq.Array([]string{userA, userB})).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infrastructure.ErrConversationNotFound
	}
	if err != nil {
		return nil, infrastructure.StoreError("find direct conversation", err)
	}
	return r.GetConversation(ctx, id)
}

func (r *PostgresRepository) CreateConversation(ctx context.Context, isGroup bool, name *string, memberIDs []string) (*Conversation, error) {
	now := r.timestamp()
	conv := &Conversation{
		ID:        uuid.NewString(),
		IsGroup:   isGroup,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := infrastructure.WithTransaction(r.db, ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, is_group, name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
		`, conv.ID, conv.IsGroup, conv.Name, now); err != nil {
			return infrastructure.StoreError("insert conversation", err)
		}
		for _, userID := range memberIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO conversation_members (id, conversation_id, user_id, has_left, created_at)
				VALUES ($1, $2, $3, false, $4)
			`, uuid.NewString(), conv.ID, userID, now); err != nil {
				return infrastructure.StoreError("insert member", err)
			}
			conv.Members = append(conv.Members, Member{UserID: userID})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *PostgresRepository) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var conv Conversation
	var name sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, is_group, name, created_at, updated_at FROM conversations WHERE id = $1
	`, conversationID).Scan(&conv.ID, &conv.IsGroup, &name, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infrastructure.ErrConversationNotFound
	}
	if err != nil {
		return nil, infrastructure.StoreError("get conversation", err)
	}
	if name.Valid {
		conv.Name = &name.String
	}
	if conv.Members, err = queryMembers(ctx, r.db, conversationID); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *PostgresRepository) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id FROM conversations c
		JOIN conversation_members cm ON cm.conversation_id = c.id
		WHERE cm.user_id = $1 AND cm.has_left = false
		ORDER BY c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, infrastructure.StoreError("list conversations", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, infrastructure.StoreError("scan conversation", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, infrastructure.StoreError("iterate conversations", err)
	}

	summaries := make([]ConversationSummary, 0, len(ids))
	for _, id := range ids {
		conv, err := r.GetConversation(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
		}
		last, err := r.ListMessages(ctx, id, 1, 0)
		if err != nil {
			return nil, err
		}
		summary := ConversationSummary{Conversation: *conv, Participants: []string{}}
		if len(last) > 0 {
			summary.LastMessage = &last[0]
		}
		for _, m := range conv.Members {
			if !m.HasLeft && m.UserID != userID {
				summary.Participants = append(summary.Participants, m.UserID)
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ListMessages returns messages newest first.
func (r *PostgresRepository) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, content, media_url, is_read, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, infrastructure.StoreError("list messages", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var mediaURL sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &mediaURL, &msg.IsRead, &msg.CreatedAt); err != nil {
			return nil, infrastructure.StoreError("scan message", err)
		}
		if mediaURL.Valid {
			msg.MediaURL = &mediaURL.String
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, infrastructure.StoreError("iterate messages", err)
	}
	return messages, nil
}

func (r *PostgresRepository) LeaveConversation(ctx context.Context, conversationID, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversation_members SET has_left = true
		WHERE conversation_id = $1 AND user_id = $2 AND has_left = false
	`, conversationID, userID)
	if err != nil {
		return infrastructure.StoreError("leave conversation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return infrastructure.StoreError("leave conversation", err)
	}
	if n == 0 {
		return infrastructure.ErrNotMember
	}
	return nil
}
