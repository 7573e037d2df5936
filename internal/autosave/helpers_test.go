package autosave

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/imrishuroy/go-draftsync/internal/drafts"
)

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	f        func()
	stopped  bool
	fired    bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, running due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.deadline.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
		next := due[0]
		next.fired = true
		c.now = next.deadline
		c.mu.Unlock()
		next.f()
	}
}

// Pending counts armed timers.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type storeCall struct {
	op      string
	key     drafts.Key
	payload drafts.Payload
	at      time.Time
}

// recordingStore wraps a MemoryStore, recording calls and injecting errors.
type recordingStore struct {
	*drafts.MemoryStore

	mu        sync.Mutex
	calls     []storeCall
	getErr    error
	upsertErr []error // consumed one per call
	deleteErr []error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: drafts.NewMemoryStore()}
}

func (s *recordingStore) Get(ctx context.Context, key drafts.Key) (*drafts.Record, error) {
	s.mu.Lock()
	s.calls = append(s.calls, storeCall{op: "get", key: key})
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *recordingStore) Upsert(ctx context.Context, key drafts.Key, payload drafts.Payload, updatedAt time.Time) error {
	s.mu.Lock()
	s.calls = append(s.calls, storeCall{op: "upsert", key: key, payload: payload, at: updatedAt})
	var err error
	if len(s.upsertErr) > 0 {
		err, s.upsertErr = s.upsertErr[0], s.upsertErr[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.Upsert(ctx, key, payload, updatedAt)
}

func (s *recordingStore) Delete(ctx context.Context, key drafts.Key) error {
	s.mu.Lock()
	s.calls = append(s.calls, storeCall{op: "delete", key: key})
	var err error
	if len(s.deleteErr) > 0 {
		err, s.deleteErr = s.deleteErr[0], s.deleteErr[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.Delete(ctx, key)
}

// writes returns upsert and delete calls, in order.
func (s *recordingStore) writes() []storeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storeCall
	for _, c := range s.calls {
		if c.op != "get" {
			out = append(out, c)
		}
	}
	return out
}

func (s *recordingStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func namePayload(name string) drafts.Payload {
	return drafts.Payload{
		FormData: map[string]interface{}{"shop_name": name, "vehicle_length_cm": 0},
		Flags:    map[string]bool{drafts.FlagTermsAccepted: false, drafts.FlagTermsViewed: false},
	}
}
