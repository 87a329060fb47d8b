// ABOUTME: Tests for the submission window: claims, expiry, release, eviction and sweeping

package dedupe

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestWindow(t *testing.T, ttl time.Duration, maxKeys int) (*Window, *fakeClock) {
	t.Helper()
	w := New(ttl, maxKeys)
	t.Cleanup(w.Close)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	w.now = clock.now
	return w, clock
}

func TestClaimBlocksRepeatWithinWindow(t *testing.T) {
	w, clock := newTestWindow(t, 10*time.Second, 10)

	assert.True(t, w.Claim("rollout:a"))
	assert.False(t, w.Claim("rollout:a"))
	assert.True(t, w.Claim("rollout:b"), "other keys are independent")

	clock.advance(9 * time.Second)
	assert.False(t, w.Claim("rollout:a"))

	clock.advance(time.Second)
	assert.True(t, w.Claim("rollout:a"), "claim should be free once the window passes")
	assert.False(t, w.Claim("rollout:a"), "reclaiming restarts the window")
}

func TestRelease(t *testing.T) {
	w, _ := newTestWindow(t, time.Minute, 10)

	assert.True(t, w.Claim("credits:x"))
	w.Release("credits:x")
	assert.True(t, w.Claim("credits:x"))

	w.Release("never-claimed")
	assert.Equal(t, 1, w.Len())
}

func TestEvictsOldestAtCapacity(t *testing.T) {
	w, clock := newTestWindow(t, time.Minute, 3)

	for _, k := range []string{"a", "b", "c"} {
		assert.True(t, w.Claim(k))
		clock.advance(time.Second)
	}
	assert.True(t, w.Claim("d"))
	assert.Equal(t, 3, w.Len())

	assert.True(t, w.Claim("a"), "oldest key should have been evicted")
	assert.False(t, w.Claim("c"))
}

func TestSweepDropsExpired(t *testing.T) {
	w, clock := newTestWindow(t, 10*time.Second, 10)

	w.Claim("old")
	clock.advance(6 * time.Second)
	w.Claim("new")
	clock.advance(5 * time.Second)

	w.sweep()
	assert.Equal(t, 1, w.Len())
	assert.False(t, w.Claim("new"))
}

func TestKey(t *testing.T) {
	a := Key("rollout", "op-1", "pro", true)
	assert.Equal(t, a, Key("rollout", "op-1", "pro", true))
	assert.NotEqual(t, a, Key("rollout", "op-1", "pro", false))
	assert.NotEqual(t, Key("x", "ab", "c"), Key("x", "a", "bc"))
	assert.Contains(t, a, "rollout:")
}

func TestConcurrentClaimsGrantOnce(t *testing.T) {
	w, _ := newTestWindow(t, time.Minute, 100)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.Claim("same") {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), granted.Load())
}

func TestCloseIsIdempotent(t *testing.T) {
	w := New(0, 0)
	w.Close()
	w.Close()
	assert.Equal(t, DefaultWindow, w.ttl)
	assert.Equal(t, DefaultMaxKeys, w.maxKeys)
}
