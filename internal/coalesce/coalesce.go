// Package coalesce shares one in-flight call between callers that ask for the
// same key within a short window.
package coalesce

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Group tracks shared calls by key. An entry is joinable until its window
// elapses, whether or not the call has finished; after that the next caller
// starts a fresh call. Expired entries are dropped lazily on access and by a
// single sweep timer owned by the group.
type Group struct {
	mu     sync.Mutex
	window time.Duration
	m      map[string]*entry
	sweep  *time.Timer
	now    func() time.Time
}

type call struct {
	done chan struct{}
	val  interface{}
	err  error
}

type entry struct {
	call      *call
	expiresAt time.Time
}

// New creates a Group. A window of zero or less disables sharing: every Do
// runs its own function.
func New(window time.Duration) *Group {
	return &Group{
		window: window,
		m:      make(map[string]*entry),
		now:    time.Now,
	}
}

// Enabled reports whether calls are shared at all.
func (g *Group) Enabled() bool {
	return g != nil && g.window > 0
}

// Window returns the configured sharing window.
func (g *Group) Window() time.Duration {
	return g.window
}

// Do runs fn once for all callers that join key while its entry is live and
// hands each of them the same value and error. shared is true when the caller
// joined an existing call instead of starting one.
//
// fn runs on its own goroutine and is not cancelled when ctx ends; ctx only
// bounds how long this caller waits. fn must bound itself.
func (g *Group) Do(ctx context.Context, key string, fn func() (interface{}, error)) (v interface{}, err error, shared bool) {
	if !g.Enabled() {
		v, err = fn()
		return v, err, false
	}

	g.mu.Lock()
	now := g.now()
	if e, ok := g.m[key]; ok {
		if now.Before(e.expiresAt) {
			g.mu.Unlock()
			v, err = e.call.wait(ctx)
			return v, err, true
		}
		delete(g.m, key)
	}

	c := &call{done: make(chan struct{})}
	g.m[key] = &entry{call: c, expiresAt: now.Add(g.window)}
	g.scheduleSweepLocked(g.window)
	g.mu.Unlock()

	go c.run(fn)

	v, err = c.wait(ctx)
	return v, err, false
}

// Len returns the number of entries currently stored, expired or not.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

// Close stops the sweep timer and drops every entry. Calls already running
// still deliver to their waiters.
func (g *Group) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sweep != nil {
		g.sweep.Stop()
		g.sweep = nil
	}
	g.m = make(map[string]*entry)
}

func (g *Group) scheduleSweepLocked(after time.Duration) {
	if g.sweep != nil {
		return
	}
	g.sweep = time.AfterFunc(after, g.runSweep)
}

func (g *Group) runSweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sweep = nil
	now := g.now()

	var next time.Time
	for key, e := range g.m {
		if !now.Before(e.expiresAt) {
			delete(g.m, key)
			continue
		}
		if next.IsZero() || e.expiresAt.Before(next) {
			next = e.expiresAt
		}
	}

	if !next.IsZero() {
		g.scheduleSweepLocked(next.Sub(now))
	}
}

func (c *call) run(fn func() (interface{}, error)) {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			c.val = nil
			c.err = fmt.Errorf("%w: %v", ErrCallPanicked, r)
		}
	}()

	c.val, c.err = fn()
}

func (c *call) wait(ctx context.Context) (interface{}, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
