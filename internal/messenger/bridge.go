package messenger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

const broadcastTimeout = 5 * time.Second

var (
	errUnsupportedType  = errors.New("unsupported message type")
	errOriginNotAllowed = errors.New("origin not allowed for this message type")
)

// inbound lists the message types clients may send.
var inbound = map[Type]bool{
	TypeUpdateSettings: true,
	TypeGetAPIKey:      true,
	TypeRenderUpdate:   true,
}

// privileged types read the credential or change settings. They are only
// answered for trusted origins.
var privileged = map[Type]bool{
	TypeUpdateSettings: true,
	TypeGetAPIKey:      true,
}

// Bridge exposes the bus to WebSocket clients. Each client message is
// dispatched with Request and the reply written back; INIT_INJECTOR
// emissions are broadcast to every connected client.
type Bridge struct {
	bus            *Bus
	rps            float64
	originPatterns []string
	logger         *slog.Logger

	mu    sync.RWMutex
	conns map[string]*websocket.Conn
	seq   uint64

	off func()
}

// NewBridge creates a bridge on bus. rps <= 0 disables rate limiting.
// originPatterns are passed to websocket.Accept; an empty list admits only
// same-host pages.
func NewBridge(bus *Bus, rps float64, originPatterns []string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		bus:            bus,
		rps:            rps,
		originPatterns: originPatterns,
		logger:         logger,
		conns:          make(map[string]*websocket.Conn),
	}
	b.off = bus.On(TypeInitInjector, b.broadcast)
	return b
}

// Close detaches the bridge from the bus and closes every client.
func (b *Bridge) Close() {
	b.off()

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, conn := range b.conns {
		_ = conn.Close(websocket.StatusGoingAway, "bridge closed")
		delete(b.conns, id)
	}
}

// Clients returns the number of connected clients.
func (b *Bridge) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

func (b *Bridge) register(conn *websocket.Conn) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	id := fmt.Sprintf("client-%d", b.seq)
	b.conns[id] = conn
	b.logger.Info("Messenger client registered", "client_id", id)
	return id
}

func (b *Bridge) unregister(id string, conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if current, ok := b.conns[id]; ok && current == conn {
		delete(b.conns, id)
		b.logger.Info("Messenger client unregistered", "client_id", id)
	}
}

func (b *Bridge) newLimiter() *rate.Limiter {
	if b.rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(b.rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(b.rps), burst)
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: b.originPatterns,
	})
	if err != nil {
		b.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			b.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	id := b.register(ws)
	defer b.unregister(id, ws)

	b.readLoop(r.Context(), ws, id, b.trusted(r))
}

// trusted reports whether r may send privileged messages: no Origin header
// (non-browser clients), the proxy's own host, or an origin listed exactly.
// Wildcard patterns admit a connection but never grant trust.
func (b *Bridge) trusted(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	full := u.Scheme + "://" + u.Host
	return lo.ContainsBy(b.originPatterns, func(p string) bool {
		return strings.EqualFold(p, full)
	})
}

func (b *Bridge) readLoop(ctx context.Context, ws *websocket.Conn, id string, trusted bool) {
	limiter := b.newLimiter()
	for {
		var msg Message
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				b.logger.Debug("WebSocket closed by client", "client_id", id)
			} else {
				b.logger.Warn("WebSocket read error", "error", err, "client_id", id)
			}
			return
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		reply := b.dispatch(ctx, msg, trusted)
		if err := wsjson.Write(ctx, ws, reply); err != nil {
			b.logger.Debug("WebSocket write error", "error", err, "client_id", id)
			return
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, msg Message, trusted bool) Message {
	if !inbound[msg.Type] {
		return ErrorMessage(fmt.Errorf("%w: %q", errUnsupportedType, msg.Type))
	}
	if privileged[msg.Type] && !trusted {
		b.logger.Warn("Refused privileged message from untrusted origin", "type", msg.Type)
		return ErrorMessage(fmt.Errorf("%w: %q", errOriginNotAllowed, msg.Type))
	}
	reply, err := b.bus.Request(ctx, msg)
	if err != nil {
		b.logger.Warn("Messenger request failed", "type", msg.Type, "error", err)
		return ErrorMessage(err)
	}
	return reply
}

func (b *Bridge) broadcast(ctx context.Context, msg Message) (*Message, error) {
	b.mu.RLock()
	conns := make(map[string]*websocket.Conn, len(b.conns))
	for id, c := range b.conns {
		conns[id] = c
	}
	b.mu.RUnlock()

	for id, conn := range conns {
		wctx, cancel := context.WithTimeout(ctx, broadcastTimeout)
		if err := wsjson.Write(wctx, conn, msg); err != nil {
			b.logger.Debug("Broadcast failed", "client_id", id, "error", err)
		}
		cancel()
	}
	return nil, nil
}
