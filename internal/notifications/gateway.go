package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"social/infrastructure"
	"social/internal/metrics"
	"social/internal/presence"
	"social/internal/realtime"
)

// Gateway is the notification namespace. Connections only ever join their
// personal room; there are no presence broadcasts.
type Gateway struct {
	store    Store
	verifier realtime.CredentialVerifier
	presence *presence.Registry
	hub      *realtime.Hub
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewGateway(store Store, verifier realtime.CredentialVerifier, registry *presence.Registry, hub *realtime.Hub, m *metrics.Metrics) *Gateway {
	return &Gateway{
		store:    store,
		verifier: verifier,
		presence: registry,
		hub:      hub,
		metrics:  m,
		logger:   slog.Default().With("component", "notification_gateway"),
	}
}

func (g *Gateway) Connect(ctx context.Context, conn realtime.Conn, credential string) (*realtime.Session, error) {
	session, err := realtime.Authenticate(ctx, g.verifier, conn, credential)
	if err != nil {
		g.logger.Info("notification connection refused", "error", err)
		return nil, err
	}
	userID := session.UserID()

	session.Join(realtime.PersonalRoom(userID))
	g.hub.Add(session)
	g.presence.Register(userID, session.ID())
	g.observePresence()

	if count, err := g.store.UnreadCount(ctx, userID); err != nil {
		g.logger.Error("failed to load unread count", "user_id", userID, "error", err)
		g.sendError(session, "failed to load unread count")
	} else {
		g.hub.Send(session, realtime.UnreadCount{Count: count})
	}
	g.logger.Info("notification client connected", "user_id", userID, "conn_id", session.ID())
	return session, nil
}

func (g *Gateway) Disconnect(_ context.Context, session *realtime.Session) {
	if session == nil || !session.MarkDisconnected() {
		return
	}
	g.hub.Remove(session.ID())
	if userID := session.UserID(); userID != "" {
		g.presence.Unregister(userID, session.ID())
		g.observePresence()
		g.logger.Info("notification client disconnected", "user_id", userID, "conn_id", session.ID())
	}
}

// EmitToUser pushes n to every live connection of userID and returns how
// many connections accepted it. Offline users receive nothing.
func (g *Gateway) EmitToUser(userID string, n *Notification) int {
	return g.hub.ToUser(userID, Event{Notification: n})
}

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

func (g *Gateway) Handle(ctx context.Context, session *realtime.Session, in Inbound) error {
	if session == nil || !session.Authenticated() {
		return infrastructure.ErrUnauthorized
	}
	g.metrics.Inbound(Namespace, in.inboundName())
	userID := session.UserID()

	switch ev := in.(type) {
	case MarkAsRead:
		if ev.NotificationID == "" {
			g.sendError(session, fmt.Sprintf("%s: notificationId is required", infrastructure.ErrInvalidInput))
			return nil
		}
		err := g.store.MarkAsRead(ctx, ev.NotificationID, userID)
		if errors.Is(err, infrastructure.ErrNotificationNotFound) {
			g.sendError(session, infrastructure.ErrNotificationNotFound.Error())
			return nil
		}
		if err != nil {
			g.logger.Error("failed to mark notification read", "user_id", userID, "notification_id", ev.NotificationID, "error", err)
			g.sendError(session, "failed to mark notification as read")
			return nil
		}
		g.PushUnreadCount(ctx, userID)
	case MarkAllAsRead:
		if err := g.store.MarkAllAsRead(ctx, userID); err != nil {
			g.logger.Error("failed to mark all notifications read", "user_id", userID, "error", err)
			g.sendError(session, "failed to mark notifications as read")
			return nil
		}
		g.hub.ToUser(userID, realtime.UnreadCount{Count: 0})
	default:
		g.sendError(session, infrastructure.ErrUnsupportedEvent.Error())
	}
	return nil
}

// PushUnreadCount sends the recomputed count to every connection of userID.
func (g *Gateway) PushUnreadCount(ctx context.Context, userID string) {
	count, err := g.store.UnreadCount(ctx, userID)
	if err != nil {
		g.logger.Error("failed to load unread count", "user_id", userID, "error", err)
		return
	}
	g.hub.ToUser(userID, realtime.UnreadCount{Count: count})
}

func (g *Gateway) IsUserOnline(userID string) bool {
	return g.presence.IsOnline(userID)
}

func (g *Gateway) Close() {
	g.presence.Close()
}

func (g *Gateway) sendError(session *realtime.Session, message string) {
	g.hub.Send(session, realtime.Error{Message: message})
}

func (g *Gateway) observePresence() {
	g.metrics.SetPresence(Namespace, g.presence.OnlineCount(), g.presence.ConnectionCount())
}
