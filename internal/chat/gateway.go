package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"social/infrastructure"
	"social/internal/metrics"
	"social/internal/presence"
	"social/internal/realtime"
)

// Gateway is the chat namespace: presence broadcasts, conversation rooms and
// message fan-out. Every fan-out happens after the store write succeeded.
type Gateway struct {
	store    Store
	verifier realtime.CredentialVerifier
	presence *presence.Registry
	hub      *realtime.Hub
	metrics  *metrics.Metrics
	logger   *slog.Logger
	rooms    roomLocks
}

// roomLocks hands out one mutex per conversation. An entry lives only while
// some caller holds or waits on it.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func (l *roomLocks) lock(conversationID string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*roomLock)
	}
	rl, ok := l.locks[conversationID]
	if !ok {
		rl = &roomLock{}
		l.locks[conversationID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, conversationID)
		}
		l.mu.Unlock()
	}
}

func NewGateway(store Store, verifier realtime.CredentialVerifier, registry *presence.Registry, hub *realtime.Hub, m *metrics.Metrics) *Gateway {
	return &Gateway{
		store:    store,
		verifier: verifier,
		presence: registry,
		hub:      hub,
		metrics:  m,
		logger:   slog.Default().With("component", "chat_gateway"),
	}
}

// Connect authenticates the connection. On success the user is registered as
// online, joined to its personal room and sent its unread message count;
// other connections learn about the user only if this is its first connection.
func (g *Gateway) Connect(ctx context.Context, conn realtime.Conn, credential string) (*realtime.Session, error) {
	session, err := realtime.Authenticate(ctx, g.verifier, conn, credential)
	if err != nil {
		g.logger.Info("chat connection refused", "error", err)
		return nil, err
	}
	userID := session.UserID()

	session.Join(realtime.PersonalRoom(userID))
	g.hub.Add(session)
	cameOnline := g.presence.Register(userID, session.ID())
	g.observePresence()

	if count, err := g.store.GetUnreadMessageCount(ctx, userID); err != nil {
		g.logger.Error("failed to load unread count", "user_id", userID, "error", err)
		g.sendError(session, "failed to load unread count")
	} else {
		g.hub.Send(session, realtime.UnreadCount{Count: count})
	}

	if cameOnline {
		g.hub.BroadcastAll(realtime.UserOnline{UserID: userID}, session.ID())
	}
	g.logger.Info("chat client connected", "user_id", userID, "conn_id", session.ID())
	return session, nil
}

// Disconnect releases the session. It is safe to call more than once.
func (g *Gateway) Disconnect(_ context.Context, session *realtime.Session) {
	if session == nil || !session.MarkDisconnected() {
		return
	}
	g.hub.Remove(session.ID())

	userID := session.UserID()
	if userID == "" {
		return
	}
	wentOffline := g.presence.Unregister(userID, session.ID())
	g.observePresence()
	if wentOffline {
		g.hub.BroadcastAll(realtime.UserOffline{UserID: userID}, session.ID())
	}
	g.logger.Info("chat client disconnected", "user_id", userID, "conn_id", session.ID())
}

// HandleFrame decodes a wire frame and handles it. Decode failures are
// reported to the caller and do not end the connection.
func (g *Gateway) HandleFrame(ctx context.Context, session *realtime.Session, eventType string, payload json.RawMessage) error {
	if session == nil || !session.Authenticated() {
		return infrastructure.ErrUnauthorized
	}
	in, err := DecodeInbound(eventType, payload)
	if err != nil {
		if errors.Is(err, infrastructure.ErrUnsupportedEvent) {
			g.sendError(session, infrastructure.ErrUnsupportedEvent.Error())
		} else {
			g.sendError(session, err.Error())
		}
		return nil
	}
	return g.Handle(ctx, session, in)
}

// Handle processes one inbound event for an authenticated session.
func (g *Gateway) Handle(ctx context.Context, session *realtime.Session, in Inbound) error {
	if session == nil || !session.Authenticated() {
		return infrastructure.ErrUnauthorized
	}
	g.metrics.Inbound(Namespace, in.inboundName())

	switch ev := in.(type) {
	case JoinConversation:
		g.joinConversation(ctx, session, ev)
	case LeaveConversation:
		if validateConversationID(ev.ConversationID) == nil {
			session.Leave(ev.ConversationID)
		}
	case SendMessage:
		g.sendMessage(ctx, session, ev)
	case MarkAsRead:
		g.markAsRead(ctx, session, ev)
	case Typing:
		if err := validateConversationID(ev.ConversationID); err != nil {
			g.sendError(session, err.Error())
			return nil
		}
		g.hub.ToRoom(ev.ConversationID, UserTyping{
			ConversationID: ev.ConversationID,
			UserID:         session.UserID(),
			IsTyping:       ev.IsTyping,
		}, session.ID())
	default:
		g.sendError(session, infrastructure.ErrUnsupportedEvent.Error())
	}
	return nil
}

func (g *Gateway) joinConversation(ctx context.Context, session *realtime.Session, ev JoinConversation) {
	if err := validateConversationID(ev.ConversationID); err != nil {
		g.sendError(session, err.Error())
		return
	}
	userID := session.UserID()
	isMember, err := g.store.IsConversationMember(ctx, ev.ConversationID, userID)
	if err != nil {
		g.logger.Error("membership check failed", "user_id", userID, "conversation_id", ev.ConversationID, "error", err)
		g.sendError(session, "failed to join conversation")
		return
	}
	if !isMember {
		g.sendError(session, infrastructure.ErrNotMember.Error())
		return
	}
	session.Join(ev.ConversationID)

	members, err := g.store.GetConversationMembers(ctx, ev.ConversationID)
	if err != nil {
		g.logger.Error("failed to load members", "conversation_id", ev.ConversationID, "error", err)
		g.sendError(session, "failed to load conversation members")
		return
	}
	others := make([]string, 0, len(members))
	for _, m := range members {
		if !m.HasLeft && m.UserID != userID {
			others = append(others, m.UserID)
		}
	}
	g.hub.Send(session, MembersOnline{
		ConversationID: ev.ConversationID,
		UserIDs:        g.presence.OnlineSubset(others),
	})
}

func (g *Gateway) sendMessage(ctx context.Context, session *realtime.Session, ev SendMessage) {
	ev, err := ev.normalize()
	if err != nil {
		g.sendError(session, err.Error())
		return
	}
	userID := session.UserID()
	isMember, err := g.store.IsConversationMember(ctx, ev.ConversationID, userID)
	if err != nil {
		g.logger.Error("membership check failed", "user_id", userID, "conversation_id", ev.ConversationID, "error", err)
		g.sendError(session, "failed to send message")
		return
	}
	if !isMember {
		g.sendError(session, infrastructure.ErrNotMember.Error())
		return
	}

	// Append and fan-out run under the room lock so members receive messages
	// in the order they were committed.
	unlock := g.rooms.lock(ev.ConversationID)
	defer unlock()
	msg, err := g.store.AppendMessage(ctx, ev.ConversationID, userID, ev.Content, ev.MediaURL)
	if errors.Is(err, infrastructure.ErrNotMember) {
		g.sendError(session, infrastructure.ErrNotMember.Error())
		return
	}
	if err != nil {
		g.logger.Error("failed to store message", "user_id", userID, "conversation_id", ev.ConversationID, "error", err)
		g.sendError(session, "failed to send message")
		return
	}
	g.hub.ToRoom(ev.ConversationID, NewMessage{Message: msg}, "")
}

func (g *Gateway) markAsRead(ctx context.Context, session *realtime.Session, ev MarkAsRead) {
	if err := validateConversationID(ev.ConversationID); err != nil {
		g.sendError(session, err.Error())
		return
	}
	userID := session.UserID()
	if err := g.store.MarkConversationRead(ctx, ev.ConversationID, userID); err != nil {
		g.logger.Error("failed to mark conversation read", "user_id", userID, "conversation_id", ev.ConversationID, "error", err)
		g.sendError(session, "failed to mark conversation as read")
		return
	}
	g.hub.ToRoom(ev.ConversationID, ConversationRead{
		ConversationID: ev.ConversationID,
		UserID:         userID,
	}, session.ID())

	count, err := g.store.GetUnreadMessageCount(ctx, userID)
	if err != nil {
		g.logger.Error("failed to load unread count", "user_id", userID, "error", err)
		return
	}
	g.hub.ToUser(userID, realtime.UnreadCount{Count: count})
}

// Presence exposes the registry backing this namespace.
func (g *Gateway) Presence() *presence.Registry {
	return g.presence
}

// IsUserOnline reports whether userID has a live chat connection.
func (g *Gateway) IsUserOnline(userID string) bool {
	return g.presence.IsOnline(userID)
}

// OnlineMemberCount counts the active members of a conversation that are online.
func (g *Gateway) OnlineMemberCount(ctx context.Context, conversationID string) (int, error) {
	members, err := g.store.GetConversationMembers(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if !m.HasLeft {
			ids = append(ids, m.UserID)
		}
	}
	return len(g.presence.OnlineSubset(ids)), nil
}

// EvictFromConversation stops live delivery of a conversation to a user that
// left it.
func (g *Gateway) EvictFromConversation(userID, conversationID string) {
	g.hub.LeaveRoom(userID, conversationID)
}

// Close tears down the presence registry.
func (g *Gateway) Close() {
	g.presence.Close()
}

func (g *Gateway) sendError(session *realtime.Session, message string) {
	g.hub.Send(session, realtime.Error{Message: message})
}

func (g *Gateway) observePresence() {
	g.metrics.SetPresence(Namespace, g.presence.OnlineCount(), g.presence.ConnectionCount())
}
