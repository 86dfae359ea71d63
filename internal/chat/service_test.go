package chat_test

import (
	"context"
	"errors"
	"testing"

	"social/infrastructure"
	"social/internal/chat"
	"social/internal/chat/chattest"
)

type evictions struct {
	calls [][2]string
}

func (e *evictions) EvictFromConversation(userID, conversationID string) {
	e.calls = append(e.calls, [2]string{userID, conversationID})
}

func TestFindOrCreateDirectReusesConversation(t *testing.T) {
	ctx := context.Background()
	svc := chat.NewService(chattest.NewRepository(), nil)

	first, err := svc.FindOrCreateDirect(ctx, "a", "b")
	if err != nil {
		t.Fatalf("create direct: %v", err)
	}
	second, err := svc.FindOrCreateDirect(ctx, "b", "a")
	if err != nil {
		t.Fatalf("find direct: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("conversation id = %s, want %s", second.ID, first.ID)
	}
	if first.IsGroup || len(first.ActiveMemberIDs()) != 2 {
		t.Fatalf("conversation = %+v, want 1:1 with two members", first)
	}

	if _, err := svc.FindOrCreateDirect(ctx, "a", "a"); !errors.Is(err, infrastructure.ErrInvalidInput) {
		t.Fatalf("self conversation error = %v, want %v", err, infrastructure.ErrInvalidInput)
	}
}

func TestFindOrCreateDirectAfterLeaveCreatesNew(t *testing.T) {
	ctx := context.Background()
	svc := chat.NewService(chattest.NewRepository(), nil)
	first, _ := svc.FindOrCreateDirect(ctx, "a", "b")
	if err := svc.Leave(ctx, first.ID, "b"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	second, err := svc.FindOrCreateDirect(ctx, "a", "b")
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("reused a conversation the other member left")
	}
}

func TestCreateGroupIncludesCreatorAndDeduplicates(t *testing.T) {
	svc := chat.NewService(chattest.NewRepository(), nil)
	conv, err := svc.CreateGroup(context.Background(), "a", " Friends ", []string{"b", "b", "a", "", "c"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	ids := conv.ActiveMemberIDs()
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Fatalf("members = %v, want [a b c]", ids)
	}
	if conv.Name == nil || *conv.Name != "Friends" {
		t.Fatalf("name = %v, want Friends", conv.Name)
	}
	if _, err := svc.CreateGroup(context.Background(), "a", "", []string{"a"}); !errors.Is(err, infrastructure.ErrInvalidInput) {
		t.Fatalf("solo group error = %v, want %v", err, infrastructure.ErrInvalidInput)
	}
}

func TestMessagesIsMemberOnlyAndPaginated(t *testing.T) {
	ctx := context.Background()
	repo := chattest.NewRepository()
	svc := chat.NewService(repo, nil)
	conv := repo.AddConversation(false, "a", "b")
	for _, c := range []string{"1", "2", "3"} {
		repo.AddMessage(conv, "a", c)
	}

	if _, err := svc.Messages(ctx, conv, "c", 1, 10); !errors.Is(err, infrastructure.ErrNotMember) {
		t.Fatalf("non-member error = %v, want %v", err, infrastructure.ErrNotMember)
	}

	page1, err := svc.Messages(ctx, conv, "b", 1, 2)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(page1) != 2 || page1[0].Content != "3" || page1[1].Content != "2" {
		t.Fatalf("page 1 = %+v, want newest first [3 2]", page1)
	}
	page2, _ := svc.Messages(ctx, conv, "b", 2, 2)
	if len(page2) != 1 || page2[0].Content != "1" {
		t.Fatalf("page 2 = %+v, want [1]", page2)
	}
}

func TestLeaveEvictsLiveConnections(t *testing.T) {
	ctx := context.Background()
	repo := chattest.NewRepository()
	ev := &evictions{}
	svc := chat.NewService(repo, ev)
	conv := repo.AddConversation(true, "a", "b", "c")

	if err := svc.Leave(ctx, conv, "b"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if len(ev.calls) != 1 || ev.calls[0] != [2]string{"b", conv} {
		t.Fatalf("evictions = %v", ev.calls)
	}
	if err := svc.Leave(ctx, conv, "b"); !errors.Is(err, infrastructure.ErrNotMember) {
		t.Fatalf("second leave error = %v, want %v", err, infrastructure.ErrNotMember)
	}
	if len(ev.calls) != 1 {
		t.Fatal("failed leave evicted connections")
	}
}

func TestListConversationsOrderAndParticipants(t *testing.T) {
	ctx := context.Background()
	repo := chattest.NewRepository()
	svc := chat.NewService(repo, nil)
	older := repo.AddConversation(false, "a", "b")
	newer := repo.AddConversation(true, "a", "c", "d")
	repo.AddConversation(false, "b", "c")

	list, err := svc.ListConversations(ctx, "a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer || list[1].ID != older {
		t.Fatalf("list order = %v", list)
	}
	if len(list[0].Participants) != 2 {
		t.Fatalf("participants = %v, want [c d]", list[0].Participants)
	}
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, 50},
		{-3, 10, 1, 10},
		{2, 500, 2, 100},
	}
	for _, tc := range tests {
		p, l := chat.Paginate(tc.page, tc.limit, 50, 100)
		if p != tc.wantPage || l != tc.wantLimit {
			t.Fatalf("Paginate(%d, %d) = (%d, %d), want (%d, %d)", tc.page, tc.limit, p, l, tc.wantPage, tc.wantLimit)
		}
	}
}
