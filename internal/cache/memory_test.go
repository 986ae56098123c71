package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	now := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.SetEx(ctx, "dashboard:u1", "{}", time.Minute))
	got, err := m.Get(ctx, "dashboard:u1")
	require.NoError(t, err)
	assert.Equal(t, "{}", got)

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, "dashboard:u1")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, m.Len())
}

func TestMemoryCounter(t *testing.T) {
	m := NewMemory()
	now := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	n, err := m.Incr(ctx, "rl:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, m.Expire(ctx, "rl:1.2.3.4", time.Minute))

	n, _ = m.Incr(ctx, "rl:1.2.3.4")
	assert.Equal(t, int64(2), n)

	now = now.Add(61 * time.Second)
	n, _ = m.Incr(ctx, "rl:1.2.3.4")
	assert.Equal(t, int64(1), n)

	require.NoError(t, m.Del(ctx, "rl:1.2.3.4"))
	_, err = m.Get(ctx, "rl:1.2.3.4")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestKeyPattern(t *testing.T) {
	assert.Equal(t, "dashboard", keyPattern("dashboard:u1:2026-03-11"))
	assert.Equal(t, "plain", keyPattern("plain"))
}
