package chat_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"social/infrastructure"
	"social/internal/chat"
)

// openPostgres connects to SOCIAL_TEST_DATABASE_URL or skips the test.
func openPostgres(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("SOCIAL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SOCIAL_TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}
	if err := gdb.AutoMigrate(chat.Tables()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestPostgresRepositoryMessageFlow(t *testing.T) {
	db := openPostgres(t)
	ctx := context.Background()
	repo := chat.NewPostgresRepository(db)

	conv, err := repo.CreateConversation(ctx, false, nil, []string{"pg-a", "pg-b"})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM messages WHERE conversation_id = $1`, conv.ID)
		db.Exec(`DELETE FROM conversation_members WHERE conversation_id = $1`, conv.ID)
		db.Exec(`DELETE FROM conversations WHERE id = $1`, conv.ID)
	})

	found, err := repo.FindDirectConversation(ctx, "pg-b", "pg-a")
	if err != nil || found.ID != conv.ID {
		t.Fatalf("find direct = %v, %v; want %s", found, err, conv.ID)
	}

	if _, err := repo.AppendMessage(ctx, conv.ID, "pg-c", "nope", nil); !errors.Is(err, infrastructure.ErrNotMember) {
		t.Fatalf("append by non-member error = %v, want %v", err, infrastructure.ErrNotMember)
	}
	msg, err := repo.AppendMessage(ctx, conv.ID, "pg-a", "hello", nil)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := repo.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if !got.UpdatedAt.Equal(msg.CreatedAt) {
		t.Fatalf("updatedAt = %v, want %v", got.UpdatedAt, msg.CreatedAt)
	}

	if n, _ := repo.GetUnreadMessageCount(ctx, "pg-b"); n != 1 {
		t.Fatalf("unread for b = %d, want 1", n)
	}
	if err := repo.MarkConversationRead(ctx, conv.ID, "pg-b"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n, _ := repo.GetUnreadMessageCount(ctx, "pg-b"); n != 0 {
		t.Fatalf("unread for b after read = %d, want 0", n)
	}

	if err := repo.LeaveConversation(ctx, conv.ID, "pg-b"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := repo.LeaveConversation(ctx, conv.ID, "pg-b"); !errors.Is(err, infrastructure.ErrNotMember) {
		t.Fatalf("second leave error = %v, want %v", err, infrastructure.ErrNotMember)
	}
	if _, err := repo.FindDirectConversation(ctx, "pg-a", "pg-b"); !errors.Is(err, infrastructure.ErrConversationNotFound) {
		t.Fatalf("find after leave error = %v, want %v", err, infrastructure.ErrConversationNotFound)
	}
}
