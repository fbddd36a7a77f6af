package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestTTLExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
	c := New[string](clock.now)

	c.Set("a", "alpha", time.Hour)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", v)

	clock.advance(59 * time.Minute)
	_, ok = c.Get("a")
	assert.True(t, ok, "entry should still be live before the TTL elapses")

	clock.advance(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry should expire exactly at the TTL")
	assert.Equal(t, 0, c.Len())
}

func TestTTLSetOverwrites(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
	c := New[int](clock.now)

	c.Set("k", 1, time.Minute)
	clock.advance(30 * time.Second)
	c.Set("k", 2, time.Minute)
	clock.advance(45 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTTLNonPositiveRemoves(t *testing.T) {
	c := New[int](nil)
	c.Set("k", 1, time.Minute)
	c.Set("k", 1, 0)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestTTLPurge(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
	c := New[int](clock.now)

	c.Set("short", 1, time.Minute)
	c.Set("long", 2, time.Hour)
	clock.advance(2 * time.Minute)

	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("long")
	assert.True(t, ok)
}
