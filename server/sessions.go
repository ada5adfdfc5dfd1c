package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/jsvm/engine"
	"github.com/chazu/jsvm/manifest"
)

// Session is a workspace with its own persistent engine, so bindings
// survive between evaluations.
type Session struct {
	ID      string
	Name    string
	Created time.Time
	Worker  *Worker
}

// SessionStore manages workspace sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      *manifest.Config
	opts     []engine.Option
}

// NewSessionStore creates a new session store. Each session's engine is
// built from cfg and opts.
func NewSessionStore(cfg *manifest.Config, opts ...engine.Option) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		opts:     opts,
	}
}

// Create creates a new session with an optional name and runs the
// configured prelude in it.
func (s *SessionStore) Create(ctx context.Context, name string) (*Session, error) {
	opts := append([]engine.Option{engine.WithPersistent()}, s.opts...)
	e := engine.New(s.cfg, opts...)
	if err := e.RunPrelude(ctx); err != nil {
		return nil, err
	}

	session := &Session{
		ID:      uuid.NewString(),
		Name:    name,
		Created: time.Now(),
		Worker:  NewWorker(e),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	log.Infof("created session %s (%s)", session.ID, name)
	return session, nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	return session, ok
}

// Destroy removes a session and stops its worker. Reports whether the
// session existed.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return false
	}
	session.Worker.Stop()
	log.Infof("destroyed session %s", id)
	return true
}

// List returns every session ordered by creation time.
func (s *SessionStore) List() []*Session {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Close destroys every session.
func (s *SessionStore) Close() {
	for _, session := range s.List() {
		s.Destroy(session.ID)
	}
}
