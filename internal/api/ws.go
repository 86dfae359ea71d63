package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"social/internal/auth"
	"social/internal/realtime"
)

const (
	maxFrameBytes   = 32 << 10
	outboxSize      = 64
	writeTimeout    = 10 * time.Second
	maxDecodeErrors = 3

	// inboundQueueSize bounds frames read but not yet handled.
	inboundQueueSize = 16

	inboundRate  = 20
	inboundBurst = 40

	// StatusUnauthorized closes a connection whose handshake credential was
	// rejected.
	StatusUnauthorized websocket.StatusCode = 4401
)

const rateLimitedMessage = "rate limit exceeded"

var (
	errConnClosed = errors.New("connection closed")
	errOutboxFull = errors.New("outbox full")
)

// Gateway is a realtime namespace served over one WebSocket endpoint.
type Gateway interface {
	Connect(ctx context.Context, conn realtime.Conn, credential string) (*realtime.Session, error)
	Disconnect(ctx context.Context, session *realtime.Session)
	HandleFrame(ctx context.Context, session *realtime.Session, eventType string, payload json.RawMessage) error
}

type inboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundFrame struct {
	Type    string         `json:"type"`
	Payload realtime.Event `json:"payload"`
}

// wsConn adapts a WebSocket to realtime.Conn. Send enqueues into a bounded
// outbox drained by a single writer, so per-connection order is kept and a
// slow client never blocks fan-out.
type wsConn struct {
	c      *websocket.Conn
	outbox chan realtime.Event
	done   chan struct{}
	once   sync.Once
	authed atomic.Bool
	logger *slog.Logger
}

func newWSConn(c *websocket.Conn, logger *slog.Logger) *wsConn {
	return &wsConn{
		c:      c,
		outbox: make(chan realtime.Event, outboxSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (w *wsConn) Send(event realtime.Event) error {
	select {
	case <-w.done:
		return errConnClosed
	default:
	}
	select {
	case w.outbox <- event:
		return nil
	case <-w.done:
		return errConnClosed
	default:
		w.logger.Warn("outbox full, dropping event", "event", event.EventName())
		return errOutboxFull
	}
}

func (w *wsConn) Close(reason string) {
	w.once.Do(func() {
		close(w.done)
		code := websocket.StatusPolicyViolation
		if !w.authed.Load() {
			code = StatusUnauthorized
		}
		if err := w.c.Close(code, reason); err != nil {
			w.logger.Debug("websocket close", "error", err)
		}
	})
}

func (w *wsConn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case ev := <-w.outbox:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, w.c, outboundFrame{Type: ev.EventName(), Payload: ev})
			cancel()
			if err != nil {
				w.logger.Debug("websocket write failed", "error", err)
				w.Close("write failed")
				return
			}
		}
	}
}

// ServeWS upgrades the request and serves one connection of gateway. A reader
// goroutine feeds frames, in arrival order, to a single handler goroutine.
// The session is disconnected as soon as reading stops. Browser origins must match originPatterns; same-host requests always pass.
func ServeWS(gateway Gateway, namespace string, originPatterns []string) http.HandlerFunc {
	logger := slog.Default().With("component", "ws", "namespace", namespace)
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		c.SetReadLimit(maxFrameBytes)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		conn := newWSConn(c, logger)
		go conn.writeLoop(ctx)
		defer conn.Close("connection closed")

		session, err := gateway.Connect(ctx, conn, auth.CredentialFromRequest(r))
		if err != nil {
			return
		}
		conn.authed.Store(true)
		connLogger := logger.With("conn_id", session.ID(), "user_id", session.UserID())

		handleCtx, stopHandling := context.WithCancel(ctx)
		frames := make(chan inboundFrame, inboundQueueSize)
		go handleFrames(handleCtx, frames, conn, gateway, session, connLogger)

		readLoop(ctx, c, conn, frames, connLogger)

		// In-flight handlers see a cancelled ctx.
		stopHandling()
		close(frames)
		gateway.Disconnect(context.Background(), session)
	}
}

// readLoop reads until the connection fails or is closed, passing well-formed
// frames to the handler goroutine.
func readLoop(ctx context.Context, c *websocket.Conn, conn *wsConn, frames chan<- inboundFrame, logger *slog.Logger) {
	limiter := rate.NewLimiter(inboundRate, inboundBurst)
	decodeErrors := 0
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 {
				logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		var f inboundFrame
		if typ != websocket.MessageText || json.Unmarshal(data, &f) != nil || f.Type == "" {
			decodeErrors++
			if decodeErrors >= maxDecodeErrors {
				logger.Info("closing connection after malformed frames", "count", decodeErrors)
				conn.Close("too many malformed frames")
				return
			}
			conn.Send(realtime.Error{Message: "malformed frame"})
			continue
		}
		decodeErrors = 0

		if !limiter.Allow() {
			conn.Send(realtime.Error{Message: rateLimitedMessage})
			continue
		}
		select {
		case frames <- f:
		default:
			conn.Send(realtime.Error{Message: rateLimitedMessage})
		}
	}
}

// handleFrames drains frames in order until ctx is cancelled or the channel
// is closed. A handler error closes the connection, which ends readLoop.
func handleFrames(ctx context.Context, frames <-chan inboundFrame, conn *wsConn, gateway Gateway, session *realtime.Session, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok || ctx.Err() != nil {
				return
			}
			if err := gateway.HandleFrame(ctx, session, f.Type, f.Payload); err != nil {
				logger.Info("closing connection", "error", err)
				conn.Close(err.Error())
				return
			}
		}
	}
}
