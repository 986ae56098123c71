package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversToAllListeners(t *testing.T) {
	bus := NewBus()
	var a, b []string
	bus.Subscribe(ListenerFunc(func(_ context.Context, c Change) { a = append(a, c.EntityID) }))
	bus.Subscribe(ListenerFunc(func(_ context.Context, c Change) { b = append(b, c.EntityID) }))

	bus.Publish(context.Background(), Change{EntityID: "1"})
	bus.Publish(context.Background(), Change{EntityID: "2"})

	assert.Equal(t, []string{"1", "2"}, a)
	assert.Equal(t, []string{"1", "2"}, b)
}

func TestBusSurvivesPanickingListener(t *testing.T) {
	bus := NewBus()
	var got int
	bus.Subscribe(ListenerFunc(func(context.Context, Change) { panic("boom") }))
	bus.Subscribe(ListenerFunc(func(context.Context, Change) { got++ }))

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), Change{})
	})
	assert.Equal(t, 1, got)
}

func TestBufferHoldsUntilFlush(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe(ListenerFunc(func(_ context.Context, c Change) { got = append(got, c.Action) }))

	buf := &Buffer{}
	buf.Publish(context.Background(), Change{Action: "create"})
	buf.Publish(context.Background(), Change{Action: "update"})
	assert.Empty(t, got)
	assert.Equal(t, 2, buf.Len())

	buf.Flush(context.Background(), bus)
	assert.Equal(t, []string{"create", "update"}, got)
	assert.Equal(t, 0, buf.Len())

	buf.Publish(context.Background(), Change{Action: "delete"})
	buf.Discard()
	buf.Flush(context.Background(), bus)
	assert.Len(t, got, 2)
}

func TestBusFillsOriginFromContext(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe(ListenerFunc(func(_ context.Context, c Change) { got = append(got, c.Origin) }))

	ctx := WithOrigin(context.Background(), "phone")
	bus.Publish(ctx, Change{EntityID: "1"})
	bus.Publish(ctx, Change{EntityID: "2", Origin: "laptop"})
	bus.Publish(context.Background(), Change{EntityID: "3"})

	assert.Equal(t, []string{"phone", "laptop", ""}, got)
	assert.Equal(t, "", OriginFrom(WithOrigin(context.Background(), "")))
}
