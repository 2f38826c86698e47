package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jadenj13/toolchat/internals/transcript"
)

var (
	ErrTurnInProgress  = errors.New("a turn is already running for this session")
	ErrSessionNotFound = errors.New("session not found")
)

type Session struct {
	ID           string
	Conversation *Conversation
	Transcript   *transcript.Transcript

	// Model is the model picked for this session, empty for the configured
	// default. Only read or written while a turn is held.
	Model string

	turn sync.Mutex

	CreatedAt time.Time
	UpdatedAt time.Time
}

func newSession(id, systemPrompt string) *Session {
	return &Session{
		ID:           id,
		Conversation: NewConversation(systemPrompt),
		Transcript:   transcript.New(),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

// BeginTurn claims the session for a single turn. The returned func releases it.
func (s *Session) BeginTurn() (func(), error) {
	if !s.turn.TryLock() {
		return nil, ErrTurnInProgress
	}
	return func() {
		s.UpdatedAt = time.Now()
		s.turn.Unlock()
	}, nil
}

type SessionStore struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	systemPrompt string
}

func NewSessionStore(systemPrompt string) *SessionStore {
	return &SessionStore{
		sessions:     make(map[string]*Session),
		systemPrompt: systemPrompt,
	}
}

func (s *SessionStore) Create() *Session {
	sess := newSession(uuid.NewString(), s.systemPrompt)
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// GetOrCreate is keyed by an external id such as a Slack thread timestamp.
func (s *SessionStore) GetOrCreate(key string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key]; ok {
		return sess
	}

	sess := newSession(key, s.systemPrompt)
	s.sessions[key] = sess
	return sess
}

func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Reset drops the session; the next GetOrCreate starts from the system prompt.
func (s *SessionStore) Reset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Restart swaps in a fresh session under the same id. A turn still running on
// the old session finishes against the old conversation.
func (s *SessionStore) Restart(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return nil, ErrSessionNotFound
	}
	sess := newSession(id, s.systemPrompt)
	s.sessions[id] = sess
	return sess, nil
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
