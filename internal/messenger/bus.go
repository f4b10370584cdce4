package messenger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNoHandler is returned by Request when no handler answered.
var ErrNoHandler = errors.New("no handler for message")

// Handler processes a message. A nil reply with a nil error means the
// handler has nothing to say.
type Handler func(ctx context.Context, msg Message) (*Message, error)

// RetryPolicy bounds Deliver.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

type subscription struct {
	id uint64
	fn Handler
}

// Bus dispatches messages to handlers registered by type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]subscription
	nextID   uint64
	logger   *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[Type][]subscription),
		logger:   logger,
	}
}

// On registers fn for typ. The returned func removes it.
func (b *Bus) On(typ Type, fn Handler) (off func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[typ] = append(b.handlers[typ], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(typ, id) })
	}
}

func (b *Bus) remove(typ Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[typ]
	for i, s := range subs {
		if s.id == id {
			b.handlers[typ] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[typ]) == 0 {
		delete(b.handlers, typ)
	}
}

func (b *Bus) snapshot(typ Type) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]subscription(nil), b.handlers[typ]...)
}

// Emit hands msg to every handler of its type. Replies are dropped and
// handler errors are logged. It reports how many handlers ran.
func (b *Bus) Emit(ctx context.Context, msg Message) int {
	subs := b.snapshot(msg.Type)
	for _, s := range subs {
		if _, err := s.fn(ctx, msg); err != nil {
			b.logger.Warn("Message handler failed", "type", msg.Type, "error", err)
		}
	}
	return len(subs)
}

// Request returns the first reply to msg. Handlers run in registration order
// until one replies or fails.
func (b *Bus) Request(ctx context.Context, msg Message) (Message, error) {
	for _, s := range b.snapshot(msg.Type) {
		reply, err := s.fn(ctx, msg)
		if err != nil {
			return Message{}, err
		}
		if reply != nil {
			return *reply, nil
		}
	}
	return Message{}, ErrNoHandler
}

// Deliver sends msg with Request, retrying failures with a fixed delay. After
// MaxAttempts it logs and returns a *MessagingError; the message is dropped.
func (b *Bus) Deliver(ctx context.Context, msg Message, policy RetryPolicy) (Message, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		lastErr error
		tried   int
	)
	for tried < attempts {
		tried++
		reply, err := b.Request(ctx, msg)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		b.logger.Warn("Message delivery failed", "type", msg.Type, "attempt", tried, "error", err)
		if tried == attempts {
			break
		}
		if err := sleep(ctx, policy.Delay); err != nil {
			lastErr = err
			break
		}
	}

	merr := &MessagingError{Type: msg.Type, Attempts: tried, Err: lastErr}
	b.logger.Error("Message dropped", "type", msg.Type, "attempts", tried, "error", lastErr)
	return Message{}, merr
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
