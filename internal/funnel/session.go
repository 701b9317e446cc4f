package funnel

import (
	"sync"

	"github.com/akozyrev/hr-intake-bot/internal/matching"
)

// State is the current position of a conversation inside the funnel. The
// funnel is strictly linear; the only backward transition is a reset to
// StateStart. A completed conversation is wiped immediately, so a session in
// StateStart is indistinguishable from a brand-new one.
type State string

const (
	StateStart              State = "START"
	StateAwaitingAge        State = "AWAITING_AGE"
	StateAwaitingCountry    State = "AWAITING_COUNTRY"
	StateAwaitingExperience State = "AWAITING_EXPERIENCE"
	StateAwaitingConsent    State = "AWAITING_CONTACT_CONSENT"
	StateAwaitingPhone      State = "AWAITING_PHONE"
)

// Session holds everything collected from one user during one funnel
// traversal. A session is only ever touched while its lock is held, so
// concurrent updates for the same user can never interleave.
type Session struct {
	mu sync.Mutex

	State           State
	AgeBracket      string
	Country         string
	Experience      string
	LastMatches     []matching.Result
	SelectedVacancy string
	AwaitingPhone   bool
}

// Clear resets the session to its initial state, dropping every collected
// field.
func (s *Session) Clear() {
	s.State = StateStart
	s.AgeBracket = ""
	s.Country = ""
	s.Experience = ""
	s.LastMatches = nil
	s.SelectedVacancy = ""
	s.AwaitingPhone = false
}

// Store hands out per-user sessions, creating them lazily on first use.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Get returns the session for the given user, creating a fresh one when the
// user has none yet.
func (s *Store) Get(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[userID]
	if !ok {
		session = &Session{State: StateStart}
		s.sessions[userID] = session
	}
	return session
}

// Len returns the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
