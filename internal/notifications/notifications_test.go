package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"social/infrastructure"
	"social/internal/presence"
	"social/internal/realtime"
	"social/internal/realtime/realtimetest"
	"social/internal/user"
)

type fixture struct {
	t       *testing.T
	repo    *GormRepository
	users   *user.GormRepository
	gateway *Gateway
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(&user.User{}, &Notification{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := NewGormRepository(db)
	users := user.NewGormRepository(db)
	verifier := realtimetest.Verifier{}
	gw := NewGateway(repo, verifier, presence.NewRegistry(nil), realtime.NewHub(Namespace, nil), nil)
	t.Cleanup(gw.Close)
	f := &fixture{t: t, repo: repo, users: users, gateway: gw, service: NewService(repo, users, gw)}
	return f
}

// addUser creates a user and a token that authenticates as it.
func (f *fixture) addUser(email string) *user.User {
	f.t.Helper()
	u := &user.User{Email: email, PasswordHash: "x"}
	if err := f.users.Create(context.Background(), u); err != nil {
		f.t.Fatalf("create user: %v", err)
	}
	f.gateway.verifier.(realtimetest.Verifier)["tok-"+u.ID] = u.ID
	return u
}

func (f *fixture) connect(u *user.User) (*realtime.Session, *realtimetest.Conn) {
	f.t.Helper()
	conn := realtimetest.NewConn()
	s, err := f.gateway.Connect(context.Background(), conn, "tok-"+u.ID)
	if err != nil {
		f.t.Fatalf("connect: %v", err)
	}
	return s, conn
}

func lastUnread(t *testing.T, conn *realtimetest.Conn) int {
	t.Helper()
	evs := conn.Named("unreadCount")
	if len(evs) == 0 {
		t.Fatal("no unreadCount event")
	}
	return evs[len(evs)-1].(realtime.UnreadCount).Count
}

func TestCreateSuppressesSelfAndDisabledRecipients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	bob := f.addUser("bob@example.com")
	_, conn := f.connect(alice)

	n, err := f.service.NotifyLike(ctx, alice.ID, alice.ID, "post-1")
	if err != nil || n != nil {
		t.Fatalf("self like = %v, %v; want suppressed", n, err)
	}

	if err := f.users.SetNotificationEnabled(ctx, alice.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	n, err = f.service.NotifyFollow(ctx, bob.ID, alice.ID)
	if err != nil || n != nil {
		t.Fatalf("follow with notifications disabled = %v, %v; want suppressed", n, err)
	}

	if got := len(conn.Named("notification")); got != 0 {
		t.Fatalf("notification events = %d, want 0", got)
	}
	if count, _ := f.repo.UnreadCount(ctx, alice.ID); count != 0 {
		t.Fatalf("stored notifications = %d, want 0", count)
	}
}

func TestCreatePersistsThenEmits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	bob := f.addUser("bob@example.com")
	_, first := f.connect(alice)
	_, second := f.connect(alice)
	_, other := f.connect(bob)

	n, err := f.service.NotifyComment(ctx, bob.ID, alice.ID, "post-1", "comment-9")
	if err != nil {
		t.Fatalf("notify comment: %v", err)
	}
	if n == nil || n.Type != TypeComment {
		t.Fatalf("notification = %+v", n)
	}
	var data map[string]string
	if err := json.Unmarshal(n.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["postId"] != "post-1" || data["commentId"] != "comment-9" {
		t.Fatalf("data = %v", data)
	}

	for i, conn := range []*realtimetest.Conn{first, second} {
		evs := conn.Named("notification")
		if len(evs) != 1 || evs[0].(Event).Notification.ID != n.ID {
			t.Fatalf("connection %d notification events = %v", i, evs)
		}
	}
	if got := len(other.Named("notification")); got != 0 {
		t.Fatalf("sender received %d notification events", got)
	}

	list, err := f.service.List(ctx, alice.ID, 0, 0)
	if err != nil || len(list) != 1 || list[0].ID != n.ID {
		t.Fatalf("list = %v, %v", list, err)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser("alice@example.com")
	_, err := f.service.Create(context.Background(), CreateInput{RecipientID: alice.ID, SenderID: "x", Type: "POKE"})
	if !errors.Is(err, infrastructure.ErrInvalidInput) {
		t.Fatalf("error = %v, want %v", err, infrastructure.ErrInvalidInput)
	}
	_, err = f.service.Create(context.Background(), CreateInput{RecipientID: "missing", SenderID: alice.ID, Type: TypeFollow})
	if !errors.Is(err, infrastructure.ErrUserNotFound) {
		t.Fatalf("error = %v, want %v", err, infrastructure.ErrUserNotFound)
	}
}

func TestGatewayConnectPushesUnreadCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	bob := f.addUser("bob@example.com")
	f.service.NotifyFollow(ctx, bob.ID, alice.ID)
	f.service.NotifyLike(ctx, bob.ID, alice.ID, "p")

	_, conn := f.connect(alice)
	if got := lastUnread(t, conn); got != 2 {
		t.Fatalf("unread = %d, want 2", got)
	}
	if !f.gateway.IsUserOnline(alice.ID) {
		t.Fatal("connected user not online")
	}
}

func TestGatewayMarkAsReadScopedToCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	bob := f.addUser("bob@example.com")
	n1, _ := f.service.NotifyFollow(ctx, bob.ID, alice.ID)
	f.service.NotifyLike(ctx, bob.ID, alice.ID, "p")
	toBob, _ := f.service.NotifyFollow(ctx, alice.ID, bob.ID)

	s, conn := f.connect(alice)
	conn.Reset()

	if err := f.gateway.Handle(ctx, s, MarkAsRead{NotificationID: n1.ID}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := lastUnread(t, conn); got != 1 {
		t.Fatalf("unread = %d, want 1", got)
	}

	conn.Reset()
	if err := f.gateway.Handle(ctx, s, MarkAsRead{NotificationID: toBob.ID}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	errs := conn.Named("error")
	if len(errs) != 1 || errs[0].(realtime.Error).Message != infrastructure.ErrNotificationNotFound.Error() {
		t.Fatalf("errors = %v", errs)
	}
	if count, _ := f.repo.UnreadCount(ctx, bob.ID); count != 1 {
		t.Fatalf("bob unread = %d, want 1", count)
	}
}

func TestGatewayMarkAllAsReadLeavesZeroUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	bob := f.addUser("bob@example.com")
	for i := 0; i < 3; i++ {
		f.service.NotifyLike(ctx, bob.ID, alice.ID, fmt.Sprintf("p%d", i))
	}
	s, conn := f.connect(alice)
	_, other := f.connect(alice)
	conn.Reset()

	if err := f.gateway.Handle(ctx, s, MarkAllAsRead{}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := lastUnread(t, conn); got != 0 {
		t.Fatalf("pushed unread = %d, want 0", got)
	}
	if got := lastUnread(t, other); got != 0 {
		t.Fatalf("second connection unread = %d, want 0", got)
	}
	if count, _ := f.service.UnreadCount(ctx, alice.ID); count != 0 {
		t.Fatalf("stored unread = %d, want 0", count)
	}
}

func TestGatewayRejectsChatEvents(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser("alice@example.com")
	s, conn := f.connect(alice)
	conn.Reset()

	if err := f.gateway.HandleFrame(context.Background(), s, "sendMessage", json.RawMessage(`{"conversationId":"c","content":"hi"}`)); err != nil {
		t.Fatalf("handle frame: %v", err)
	}
	errs := conn.Named("error")
	if len(errs) != 1 || errs[0].(realtime.Error).Message != "unsupported event" {
		t.Fatalf("errors = %v", errs)
	}
}

func TestListIsNewestFirstAndPaginated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		n := &Notification{RecipientID: alice.ID, SenderID: "s", Type: TypeFollow, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := f.repo.Create(ctx, n); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, err := f.service.List(ctx, alice.ID, 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || !page[0].CreatedAt.Equal(base.Add(2*time.Minute)) || !page[1].CreatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("page 2 = %+v", page)
	}
}

func TestListAttachesSenderPublicFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	name := "Bob"
	bob := &user.User{Email: "bob@example.com", Name: &name, PasswordHash: "secret-hash"}
	if err := f.users.Create(ctx, bob); err != nil {
		t.Fatalf("create bob: %v", err)
	}
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, sender := range []string{bob.ID, "ghost"} {
		n := &Notification{RecipientID: alice.ID, SenderID: sender, Type: TypeLike, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := f.repo.Create(ctx, n); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	list, err := f.service.List(ctx, alice.ID, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].Sender != nil {
		t.Fatalf("missing sender = %+v, want nil", list[0].Sender)
	}
	got := list[1].Sender
	if got == nil || got.ID != bob.ID || got.Name == nil || *got.Name != name {
		t.Fatalf("sender = %+v, want id %s name %s", got, bob.ID, name)
	}

	raw, err := json.Marshal(list[1])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var sender map[string]any
	if err := json.Unmarshal(wire["sender"], &sender); err != nil {
		t.Fatalf("decode sender: %v", err)
	}
	if _, leaked := sender["email"]; leaked {
		t.Fatalf("sender = %v exposes email", sender)
	}
}
