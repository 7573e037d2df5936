// Package sessions keeps one autosave controller per open form, the
// server-side counterpart of a mounted form view.
package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-draftsync/internal/autosave"
	"github.com/imrishuroy/go-draftsync/internal/drafts"
)

// ErrNotFound is returned for unknown, expired or foreign sessions.
var ErrNotFound = errors.New("session not found")

// DefaultIdleTimeout disposes sessions nobody has touched for this long.
const DefaultIdleTimeout = 30 * time.Minute

// ControllerFactory builds an uninitialized controller for a new session.
type ControllerFactory func() *autosave.Controller

// Session binds a controller to the user that opened it.
type Session struct {
	ID       string
	UserID   string
	FormType string

	schema     drafts.Schema
	controller *autosave.Controller
	lastSeen   time.Time
}

// Update snapshots the schema's fields from formData and flags and hands the
// result to the controller.
func (s *Session) Update(formData map[string]interface{}, flags map[string]bool) {
	s.controller.FormStateChanged(s.schema.Snapshot(formData, flags))
}

// Controller exposes the session's controller.
func (s *Session) Controller() *autosave.Controller { return s.controller }

// Registry holds open sessions.
type Registry struct {
	newController ControllerFactory
	idleTimeout   time.Duration
	logger        zerolog.Logger
	nowFunc       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. A non-positive idleTimeout uses
// DefaultIdleTimeout.
func NewRegistry(newController ControllerFactory, idleTimeout time.Duration, logger zerolog.Logger) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Registry{
		newController: newController,
		idleTimeout:   idleTimeout,
		logger:        logger,
		nowFunc:       time.Now,
		sessions:      make(map[string]*Session),
	}
}

// Open starts a session for (userID, formType), hydrating the stored draft.
// The returned payload is nil when there is nothing to resume.
func (r *Registry) Open(ctx context.Context, userID, formType string) (*Session, *drafts.Payload, error) {
	schema, err := drafts.LookupSchema(formType)
	if err != nil {
		return nil, nil, err
	}
	if err := (drafts.Key{UserID: userID, FormType: formType}).Validate(); err != nil {
		return nil, nil, err
	}

	c := r.newController()
	payload := c.Initialize(ctx, userID, formType)

	s := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		FormType:   formType,
		schema:     schema,
		controller: c,
		lastSeen:   r.nowFunc(),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Debug().Str("session_id", s.ID).Str("user_id", userID).Str("form_type", formType).
		Bool("resumed", payload != nil).Msg("session opened")
	return s, payload, nil
}

// Get returns the session owned by userID and marks it as active.
func (r *Registry) Get(userID, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	s.lastSeen = r.nowFunc()
	return s, nil
}

// Submit reports a committed registration to the session's controller,
// then disposes and removes the session.
func (r *Registry) Submit(ctx context.Context, userID, id string) (*Session, error) {
	s, err := r.remove(userID, id)
	if err != nil {
		return nil, err
	}
	s.controller.SubmitSucceeded(ctx)
	s.controller.Dispose()
	r.logger.Debug().Str("session_id", id).Str("user_id", userID).Msg("session submitted")
	return s, nil
}

// Close disposes the session without flushing pending writes.
func (r *Registry) Close(userID, id string) error {
	s, err := r.remove(userID, id)
	if err != nil {
		return err
	}
	s.controller.Dispose()
	return nil
}

func (r *Registry) remove(userID, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	delete(r.sessions, id)
	return s, nil
}

// Sweep disposes sessions idle since before now-idleTimeout and returns how
// many were removed.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.idleTimeout)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.controller.Dispose()
		r.logger.Info().Str("session_id", s.ID).Str("user_id", s.UserID).Str("form_type", s.FormType).Msg("idle session disposed")
	}
	return len(expired)
}

// RunSweeper calls Sweep every interval until ctx is done, then disposes
// every remaining session.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range all {
		s.controller.Dispose()
	}
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
