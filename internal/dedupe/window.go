// ABOUTME: Time-window guard for repeated operator actions keyed by action and parameters
// ABOUTME: Bounded in size; expired keys are swept by a background goroutine until Close

package dedupe

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// DefaultWindow is how long a submission blocks an identical one.
const DefaultWindow = 10 * time.Second

// DefaultMaxKeys bounds memory when many distinct actions arrive.
const DefaultMaxKeys = 4096

type entry struct {
	key string
	at  time.Time
}

// Window remembers recently claimed keys for a fixed duration.
type Window struct {
	mu      sync.Mutex
	keys    map[string]*list.Element
	order   *list.List // oldest claim at front
	ttl     time.Duration
	maxKeys int
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New returns a Window and starts its sweeper. Call Close to stop it.
func New(ttl time.Duration, maxKeys int) *Window {
	if ttl <= 0 {
		ttl = DefaultWindow
	}
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	w := &Window{
		keys:    make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxKeys: maxKeys,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go w.sweepLoop()
	return w
}

// Key builds a claim key from an action name and its parameters.
func Key(action string, params ...any) string {
	h := sha256.New()
	fmt.Fprint(h, action)
	for _, p := range params {
		fmt.Fprintf(h, "\x00%v", p)
	}
	return action + ":" + hex.EncodeToString(h.Sum(nil)[:12])
}

// Claim reports whether key is free and, if so, marks it taken. A second
// Claim of the same key inside the window returns false.
func (w *Window) Claim(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if el, ok := w.keys[key]; ok {
		e := el.Value.(*entry)
		if now.Sub(e.at) < w.ttl {
			return false
		}
		e.at = now
		w.order.MoveToBack(el)
		return true
	}

	if len(w.keys) >= w.maxKeys {
		w.evictOldestLocked()
	}
	w.keys[key] = w.order.PushBack(&entry{key: key, at: now})
	return true
}

// Release frees key so the action can be retried at once, for example
// after the upstream call failed.
func (w *Window) Release(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if el, ok := w.keys[key]; ok {
		w.order.Remove(el)
		delete(w.keys, key)
	}
}

// Len returns the number of tracked keys, expired or not.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.keys)
}

// Close stops the sweeper. It is safe to call more than once.
func (w *Window) Close() {
	w.closeOnce.Do(func() { close(w.done) })
}

func (w *Window) evictOldestLocked() {
	front := w.order.Front()
	if front == nil {
		return
	}
	w.order.Remove(front)
	delete(w.keys, front.Value.(*entry).key)
}

func (w *Window) sweepLoop() {
	ticker := time.NewTicker(w.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.done:
			return
		}
	}
}

// sweep drops expired keys. Claims are ordered by time, so it stops at
// the first live one.
func (w *Window) sweep() {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	for el := w.order.Front(); el != nil; el = w.order.Front() {
		e := el.Value.(*entry)
		if now.Sub(e.at) < w.ttl {
			return
		}
		w.order.Remove(el)
		delete(w.keys, e.key)
	}
}
