package router

import (
	"sync"
	"time"
)

// State is where a chat currently is in the drafting conversation.
type State string

const (
	StateIdle          State = ""
	StateAwaitKeywords State = "await_keywords"
	StateAwaitDetails  State = "await_details"
	StateReview        State = "review"
	StateAwaitImprove  State = "await_improve"
	StateAwaitMedia    State = "await_media"
)

// Session holds the per-chat drafting state. One operator chat drives at most
// one draft at a time; starting a new draft resets the session.
type Session struct {
	ChatID int64
	State  State

	PostID   int64 // draft row id once created
	Format   string
	Keywords string
	// Rescheduling marks that the calendar was entered from /scheduled,
	// so slot confirmation moves an existing schedule.
	Rescheduling bool

	// Calendar picker state.
	CalYear   int
	CalMonth  time.Month
	PickedDay time.Time

	Touched time.Time
}

const sessionTTL = 2 * time.Hour

// Sessions is an in-memory per-chat session store. Abandoned sessions are
// dropped lazily on access.
type Sessions struct {
	mu sync.Mutex
	m  map[int64]*Session
}

func NewSessions() *Sessions {
	return &Sessions{m: map[int64]*Session{}}
}

// Get returns the live session for the chat, creating one if needed.
func (s *Sessions) Get(chatID int64) *Session {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[chatID]
	if !ok || now.Sub(sess.Touched) > sessionTTL {
		sess = &Session{ChatID: chatID}
		s.m[chatID] = sess
	}
	sess.Touched = now
	return sess
}

// Reset clears the conversation state for the chat.
func (s *Sessions) Reset(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, chatID)
}
