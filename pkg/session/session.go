// Package session owns conversation identity and history.
//
// A Store keeps every live Session keyed by an opaque id. All mutation of
// one session goes through its single writer lock, so a late-arriving
// transcript cannot interleave with a reply append and corrupt turn
// order.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lenddesk/voicepipe/pkg/language"
)

// Roles for conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotFound is returned for operations on an unknown session id.
var ErrNotFound = errors.New("session: not found")

// Turn is one conversation turn. Immutable once appended.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the durable identity and history of one conversation.
type Session struct {
	mu sync.Mutex

	id        string
	backendID string
	turns     []Turn
	detector  *language.Detector
	lastUsed  time.Time
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// BackendID returns the backend's own session identifier, if adopted.
func (s *Session) BackendID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backendID
}

// DetectLanguage classifies text against this session's bounded language
// history.
func (s *Session) DetectLanguage(text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
	return s.detector.Detect(text)
}

// Store holds all live sessions. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	langCfg language.Config
	ttl     time.Duration
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets how long an idle session survives before Sweep removes
// it. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithLanguageConfig sets the per-session language detector parameters.
func WithLanguageConfig(cfg language.Config) Option {
	return func(s *Store) { s.langCfg = cfg }
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates an empty session store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		langCfg:  language.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the session with the given id, creating a fresh
// one with a new opaque id when id is empty or unknown. The returned id
// is stable for the conversation's lifetime.
func (s *Store) GetOrCreate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if sess, ok := s.sessions[id]; ok {
			return sess
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	sess := &Session{
		id:       id,
		detector: language.New(s.langCfg, s.logger),
		lastUsed: time.Now(),
	}
	s.sessions[id] = sess
	s.logger.Info("session created", "session_id", id)
	return sess
}

// Get returns the session with the given id.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// AppendTurn appends one turn to the session's history. Appends are
// serialized per session; prior turns are never altered.
func (s *Store) AppendTurn(id, role, content string) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns = append(sess.turns, Turn{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	sess.lastUsed = time.Now()
	return nil
}

// History returns the session's turns in append order.
func (s *Store) History(id string) ([]Turn, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out, nil
}

// AdoptBackendID records the backend's own session identifier the first
// time it appears; later values are ignored.
func (s *Store) AdoptBackendID(id, backendID string) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.backendID == "" && backendID != "" {
		sess.backendID = backendID
		s.logger.Debug("adopted backend session id",
			"session_id", id,
			"backend_id", backendID,
		)
	}
	return nil
}

// End removes the session. Ending an unknown session is a no-op.
func (s *Store) End(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		delete(s.sessions, id)
		s.logger.Info("session ended", "session_id", id)
	}
}

// Sweep removes sessions idle longer than the store TTL and returns how
// many were removed. Call periodically; a zero TTL makes Sweep a no-op.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ttl)
	var removed int
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.lastUsed.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("swept idle sessions", "removed", removed)
	}
	return removed
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
