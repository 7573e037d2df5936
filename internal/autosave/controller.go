package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-draftsync/internal/drafts"
	"github.com/imrishuroy/go-draftsync/internal/metrics"
)

// Defaults used when no option overrides them.
const (
	DefaultDebounce     = 800 * time.Millisecond
	DefaultWriteTimeout = 5 * time.Second
)

type operation int

const (
	opUpsert operation = iota
	opDelete
)

func (o operation) String() string {
	if o == opDelete {
		return metrics.OpDelete
	}
	return metrics.OpUpsert
}

// Option configures a Controller.
type Option func(*Controller)

// WithDebounce sets the quiet period before a scheduled write fires.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) { c.debounce = d }
}

// WithWriteTimeout bounds each individual store call.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Controller) { c.writeTimeout = d }
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithLogger sets the logger used for store failures.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithRetry installs a retry policy for failed writes.
func WithRetry(p RetryPolicy) Option {
	return func(c *Controller) { c.retry = p }
}

// WithRecorder reports every store call to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// Controller debounces form changes into draft store writes for one
// (user, form type) pair. It is safe for concurrent use: timer callbacks run
// on their own goroutines.
type Controller struct {
	store        drafts.Store
	clock        Clock
	logger       zerolog.Logger
	retry        RetryPolicy
	recorder     metrics.Recorder
	debounce     time.Duration
	writeTimeout time.Duration

	mu             sync.Mutex
	key            drafts.Key
	state          State
	lastSerialized string
	draftExists    bool
	// submitted is set by SubmitSucceeded and cleared by the next change; an
	// upsert landing on a submitted controller is deleted right away.
	submitted bool
	pending   Timer
	retrying  Timer
	// gen increments whenever the pending task is replaced or cancelled; a
	// firing task or retry with a stale gen does nothing.
	gen uint64
	// upserts counts successful upserts, so a delete only clears draftExists
	// when no upsert completed while it was in flight.
	upserts uint64
}

// New returns an uninitialized controller writing to store.
func New(store drafts.Store, opts ...Option) *Controller {
	c := &Controller{
		store:        store,
		clock:        realClock{},
		logger:       zerolog.Nop(),
		retry:        NoRetry{},
		recorder:     metrics.Nop{},
		debounce:     DefaultDebounce,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize loads the stored draft for (userID, formType) exactly once.
// A load failure is logged and reported as "no draft"; the form must stay
// usable. Form changes are ignored until Initialize returns.
func (c *Controller) Initialize(ctx context.Context, userID, formType string) *drafts.Payload {
	c.mu.Lock()
	if c.state != StateUninitialized {
		c.mu.Unlock()
		c.logger.Warn().Str("user_id", userID).Str("form_type", formType).Msg("draft controller already initialized")
		return nil
	}
	c.key = drafts.Key{UserID: userID, FormType: formType}
	c.state = StateHydrating
	key := c.key
	c.mu.Unlock()

	start := c.clock.Now()
	rec, err := c.store.Get(ctx, key)
	c.recorder.Record(metrics.OpGet, err, c.clock.Now().Sub(start))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateTerminated {
		return nil
	}
	c.state = StateIdle
	c.draftExists = false

	if err != nil {
		c.logger.Warn().Err(err).Str("user_id", key.UserID).Str("form_type", key.FormType).Msg("draft hydration failed, starting empty")
		return nil
	}
	if rec == nil {
		return nil
	}

	c.draftExists = true
	serialized, err := drafts.Serialize(rec.Payload)
	if err != nil {
		c.logger.Warn().Err(err).Str("user_id", key.UserID).Str("form_type", key.FormType).Msg("stored draft not serializable")
	} else {
		c.lastSerialized = serialized
	}
	payload := rec.Payload.Clone()
	return &payload
}

// FormStateChanged is called on every observable change to the form.
func (c *Controller) FormStateChanged(payload drafts.Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateUninitialized, StateHydrating, StateTerminated:
		c.logger.Debug().Str("state", c.state.String()).Msg("form change ignored")
		return
	}

	if drafts.IsEmpty(payload) {
		c.lastSerialized = ""
		if c.draftExists {
			c.schedule(opDelete, drafts.Payload{})
			return
		}
		// A not-yet-fired upsert would persist content the user just cleared.
		c.cancelPending()
		return
	}

	serialized, err := drafts.Serialize(payload)
	if err != nil {
		c.logger.Error().Err(err).Str("user_id", c.key.UserID).Str("form_type", c.key.FormType).Msg("draft payload not serializable")
		return
	}
	if serialized == c.lastSerialized {
		return
	}
	c.lastSerialized = serialized
	c.submitted = false
	c.schedule(opUpsert, payload.Clone())
}

// SubmitSucceeded is called once the form's registration write committed.
// It cancels any pending write and removes the stored draft.
func (c *Controller) SubmitSucceeded(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		return
	}
	c.cancelPending()
	c.lastSerialized = ""
	c.submitted = true
	exists, key, gen := c.draftExists, c.key, c.gen
	c.mu.Unlock()

	if exists {
		c.execute(context.WithoutCancel(ctx), gen, opDelete, key, drafts.Payload{}, 1)
	}
}

// Dispose cancels any pending write without flushing it. Writes already
// in flight, including their retries, are left to finish.
func (c *Controller) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.state = StateTerminated
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DraftExists reports whether the controller believes a stored draft exists.
func (c *Controller) DraftExists() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draftExists
}

// Key returns the draft key set by Initialize.
func (c *Controller) Key() drafts.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// schedule replaces the pending task. Caller holds c.mu.
func (c *Controller) schedule(op operation, payload drafts.Payload) {
	c.cancelPending()
	gen := c.gen
	if op == opDelete {
		c.state = StatePendingDelete
	} else {
		c.state = StatePendingUpsert
	}
	c.pending = c.clock.AfterFunc(c.debounce, func() {
		c.fire(gen, op, payload)
	})
}

// cancelPending stops the pending task, if any. Caller holds c.mu.
func (c *Controller) cancelPending() {
	c.gen++
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	if c.retrying != nil {
		c.retrying.Stop()
		c.retrying = nil
	}
	if c.state == StatePendingUpsert || c.state == StatePendingDelete {
		c.state = StateIdle
	}
}

func (c *Controller) fire(gen uint64, op operation, payload drafts.Payload) {
	c.mu.Lock()
	if gen != c.gen || c.state == StateTerminated {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.state = StateIdle
	if op == opDelete && !c.draftExists {
		c.mu.Unlock()
		return
	}
	key := c.key
	c.mu.Unlock()

	c.execute(context.Background(), gen, op, key, payload, 1)
}

// execute runs one write attempt and records the result. A failed attempt
// is retried per policy through the clock while no newer task has been
// scheduled.
func (c *Controller) execute(parent context.Context, gen uint64, op operation, key drafts.Key, payload drafts.Payload, attempt int) {
	c.mu.Lock()
	upsertsBefore := c.upserts
	c.mu.Unlock()

	if err := c.call(parent, op, key, payload); err != nil {
		c.retryLater(parent, gen, op, key, payload, attempt, err)
		return
	}
	c.logger.Debug().Str("op", op.String()).Str("user_id", key.UserID).Str("form_type", key.FormType).Msg("draft written")

	c.mu.Lock()
	if op == opDelete {
		// an upsert that completed meanwhile may have reached the store after
		// this delete
		if c.upserts == upsertsBefore {
			c.draftExists = false
		}
		c.mu.Unlock()
		return
	}
	c.upserts++
	c.draftExists = true

	// The form was cleared or submitted while this upsert was in flight and
	// nothing newer is pending: retract what was just written.
	if c.lastSerialized != "" || c.pending != nil {
		c.mu.Unlock()
		return
	}
	if c.submitted {
		// not debounced: Dispose usually follows a submit at once
		gen = c.gen
		c.mu.Unlock()
		c.execute(context.Background(), gen, opDelete, key, drafts.Payload{}, 1)
		return
	}
	if c.state != StateTerminated {
		c.schedule(opDelete, drafts.Payload{})
	}
	// disposed without submitting: the draft stays resumable
	c.mu.Unlock()
}

func (c *Controller) retryLater(parent context.Context, gen uint64, op operation, key drafts.Key, payload drafts.Payload, attempt int, err error) {
	delay, ok := c.retry.Next(attempt)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !ok || gen != c.gen || parent.Err() != nil {
		c.logger.Error().Err(err).Str("op", op.String()).Int("attempts", attempt).
			Str("user_id", key.UserID).Str("form_type", key.FormType).Msg("draft write failed")
		return
	}
	c.logger.Warn().Err(err).Str("op", op.String()).Int("attempt", attempt).Dur("retry_in", delay).
		Str("user_id", key.UserID).Str("form_type", key.FormType).Msg("draft write failed, retrying")
	c.retrying = c.clock.AfterFunc(delay, func() {
		if c.superseded(gen) {
			return
		}
		c.execute(parent, gen, op, key, payload, attempt+1)
	})
}

func (c *Controller) call(parent context.Context, op operation, key drafts.Key, payload drafts.Payload) error {
	ctx, cancel := context.WithTimeout(parent, c.writeTimeout)
	defer cancel()

	start := c.clock.Now()
	var err error
	if op == opDelete {
		err = c.store.Delete(ctx, key)
	} else {
		err = c.store.Upsert(ctx, key, payload, start)
	}
	c.recorder.Record(op.String(), err, c.clock.Now().Sub(start))
	return err
}

func (c *Controller) superseded(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.gen
}
