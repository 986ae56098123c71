// Package events fans out data changes to the caches, search index and
// connected devices that need to hear about them.
package events

import (
	"context"
	"sync"

	"github.com/zfogg/daybook/internal/logger"
	"go.uber.org/zap"
)

// Change describes one mutation of a user's data
type Change struct {
	UserID   string
	Entity   string // models.Entity* constant
	Action   string // models.Action* constant
	EntityID string
	// Object is the entity after the change; nil for deletes
	Object interface{}
	// Origin is the device that caused the change, if known
	Origin string
}

// Publisher accepts changes
type Publisher interface {
	Publish(ctx context.Context, change Change)
}

// Listener reacts to changes
type Listener interface {
	OnChange(ctx context.Context, change Change)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(ctx context.Context, change Change)

func (f ListenerFunc) OnChange(ctx context.Context, change Change) { f(ctx, change) }

// Bus delivers every published change to all subscribed listeners synchronously
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe adds a listener
func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Publish implements Publisher. A panicking listener is logged and skipped.
// Changes without an Origin take the one carried by ctx.
func (b *Bus) Publish(ctx context.Context, change Change) {
	if change.Origin == "" {
		change.Origin = OriginFrom(ctx)
	}
	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Log.Error("Change listener panicked",
						zap.Any("panic", r),
						zap.String("entity", change.Entity),
						zap.String("action", change.Action),
					)
				}
			}()
			l.OnChange(ctx, change)
		}()
	}
}

// Buffer collects changes until Flush; used to hold notifications until a transaction commits
type Buffer struct {
	mu      sync.Mutex
	changes []Change
}

// Publish implements Publisher
func (b *Buffer) Publish(_ context.Context, change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changes = append(b.changes, change)
}

// Flush forwards the buffered changes to p and empties the buffer
func (b *Buffer) Flush(ctx context.Context, p Publisher) {
	b.mu.Lock()
	changes := b.changes
	b.changes = nil
	b.mu.Unlock()

	if p == nil {
		return
	}
	for _, c := range changes {
		p.Publish(ctx, c)
	}
}

// Discard drops the buffered changes
func (b *Buffer) Discard() {
	b.mu.Lock()
	b.changes = nil
	b.mu.Unlock()
}

// Len reports how many changes are buffered
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.changes)
}

type originKey struct{}

// WithOrigin marks ctx as acting on behalf of the given device
func WithOrigin(ctx context.Context, deviceID string) context.Context {
	if deviceID == "" {
		return ctx
	}
	return context.WithValue(ctx, originKey{}, deviceID)
}

// OriginFrom returns the device set by WithOrigin, or ""
func OriginFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(originKey{}).(string)
	return id
}

// Nop discards everything
type Nop struct{}

func (Nop) Publish(context.Context, Change) {}
