package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"social/internal/chat"
	"social/internal/chat/chattest"
	"social/internal/presence"
	"social/internal/realtime"
	"social/internal/realtime/realtimetest"
)

const allowedOrigin = "app.example.com"

type wsFixture struct {
	repo *chattest.Repository
	gw   *chat.Gateway
	url  string
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	repo := chattest.NewRepository()
	return serveChat(t, repo, repo)
}

func serveChat(t *testing.T, repo *chattest.Repository, store chat.Store) *wsFixture {
	t.Helper()
	verifier := realtimetest.Verifier{"tok-a": "a", "tok-b": "b"}
	gw := chat.NewGateway(store, verifier, presence.NewRegistry(nil), realtime.NewHub(chat.Namespace, nil), nil)
	t.Cleanup(gw.Close)
	srv := httptest.NewServer(ServeWS(gw, chat.Namespace, []string{allowedOrigin}))
	t.Cleanup(srv.Close)
	return &wsFixture{repo: repo, gw: gw, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

// blockingStore parks membership checks until the caller's ctx ends.
type blockingStore struct {
	*chattest.Repository
	entered   chan struct{}
	cancelled chan error
}

func (s *blockingStore) IsConversationMember(ctx context.Context, _, _ string) (bool, error) {
	close(s.entered)
	select {
	case <-ctx.Done():
		s.cancelled <- ctx.Err()
		return false, ctx.Err()
	case <-time.After(10 * time.Second):
		return false, errors.New("membership check was never cancelled")
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

// readUntil returns the payload of the first frame of type typ.
func readUntil(t *testing.T, c *websocket.Conn, typ string) json.RawMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var f inboundFrame
		if err := wsjson.Read(ctx, c, &f); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if f.Type == typ {
			return f.Payload
		}
	}
}

func write(t *testing.T, c *websocket.Conn, typ string, payload any) {
	t.Helper()
	raw, _ := json.Marshal(payload)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c, inboundFrame{Type: typ, Payload: raw}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func TestServeWSRejectsBadToken(t *testing.T) {
	f := newWSFixture(t)
	c := dial(t, f.url+"?token=forged")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	if got := websocket.CloseStatus(err); got != StatusUnauthorized {
		t.Fatalf("close status = %v, want %v (err %v)", got, StatusUnauthorized, err)
	}
}

func TestServeWSDeliversMessagesToJoinedMembers(t *testing.T) {
	f := newWSFixture(t)
	conv := f.repo.AddConversation(false, "a", "b")

	a := dial(t, f.url+"?token=tok-a")
	var unread realtime.UnreadCount
	if err := json.Unmarshal(readUntil(t, a, "unreadCount"), &unread); err != nil {
		t.Fatalf("decode unreadCount: %v", err)
	}
	if unread.Count != 0 {
		t.Fatalf("unread = %d, want 0", unread.Count)
	}

	b := dial(t, f.url+"?token=tok-b")
	readUntil(t, b, "unreadCount")
	readUntil(t, a, "userOnline")

	write(t, a, "joinConversation", map[string]string{"conversationId": conv})
	var online chat.MembersOnline
	if err := json.Unmarshal(readUntil(t, a, "membersOnline"), &online); err != nil {
		t.Fatalf("decode membersOnline: %v", err)
	}
	if len(online.UserIDs) != 1 || online.UserIDs[0] != "b" {
		t.Fatalf("membersOnline = %v, want [b]", online.UserIDs)
	}
	write(t, b, "joinConversation", map[string]string{"conversationId": conv})
	readUntil(t, b, "membersOnline")

	write(t, a, "sendMessage", map[string]string{"conversationId": conv, "content": "hello"})
	for name, c := range map[string]*websocket.Conn{"a": a, "b": b} {
		var nm chat.NewMessage
		if err := json.Unmarshal(readUntil(t, c, "newMessage"), &nm); err != nil {
			t.Fatalf("%s: decode newMessage: %v", name, err)
		}
		if nm.Message == nil || nm.Message.Content != "hello" || nm.Message.SenderID != "a" {
			t.Fatalf("%s: newMessage = %+v", name, nm.Message)
		}
	}

	b.Close(websocket.StatusNormalClosure, "")
	var off realtime.UserOffline
	if err := json.Unmarshal(readUntil(t, a, "userOffline"), &off); err != nil {
		t.Fatalf("decode userOffline: %v", err)
	}
	if off.UserID != "b" {
		t.Fatalf("userOffline = %q, want b", off.UserID)
	}
}

func TestServeWSClosesAfterMalformedFrames(t *testing.T) {
	f := newWSFixture(t)
	a := dial(t, f.url+"?token=tok-a")
	readUntil(t, a, "unreadCount")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < maxDecodeErrors; i++ {
		if err := a.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for {
		_, _, err := a.Read(ctx)
		if err == nil {
			continue
		}
		if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
			t.Fatalf("close status = %v, want %v (err %v)", got, websocket.StatusPolicyViolation, err)
		}
		return
	}
}

func TestServeWSUnknownEventKeepsConnection(t *testing.T) {
	f := newWSFixture(t)
	a := dial(t, f.url+"?token=tok-a")
	readUntil(t, a, "unreadCount")

	write(t, a, "markAllAsRead", struct{}{})
	var e realtime.Error
	if err := json.Unmarshal(readUntil(t, a, "error"), &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if e.Message != "unsupported event" {
		t.Fatalf("error = %q, want %q", e.Message, "unsupported event")
	}

	write(t, a, "typing", map[string]any{"conversationId": "c1", "isTyping": true})
	write(t, a, "markAllAsRead", struct{}{})
	readUntil(t, a, "error")
}

func TestServeWSReleasesPresenceWhileHandlerBlocked(t *testing.T) {
	repo := chattest.NewRepository()
	store := &blockingStore{Repository: repo, entered: make(chan struct{}), cancelled: make(chan error, 1)}
	f := serveChat(t, repo, store)
	conv := repo.AddConversation(false, "a", "b")

	a := dial(t, f.url+"?token=tok-a")
	readUntil(t, a, "unreadCount")
	if !f.gw.IsUserOnline("a") {
		t.Fatal("a not online after connect")
	}

	write(t, a, "joinConversation", map[string]string{"conversationId": conv})
	select {
	case <-store.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("joinConversation never reached the store")
	}
	a.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for f.gw.IsUserOnline("a") {
		if time.Now().After(deadline) {
			t.Fatal("a still online while its handler is blocked")
		}
		time.Sleep(10 * time.Millisecond)
	}
	select {
	case err := <-store.cancelled:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("blocked call ended with %v, want %v", err, context.Canceled)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked handler ctx was not cancelled")
	}
}

func TestServeWSChecksOrigin(t *testing.T) {
	f := newWSFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, f.url+"?token=tok-a", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example.net"}},
	})
	if err == nil {
		t.Fatal("dial from foreign origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign origin response = %v, want status %d", resp, http.StatusForbidden)
	}

	c, _, err := websocket.Dial(ctx, f.url+"?token=tok-a", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://" + allowedOrigin}},
	})
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")
	readUntil(t, c, "unreadCount")
}
