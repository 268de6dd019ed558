package receiptbot

import (
	"sync"

	"github.com/mbd888/basemcp/internal/receipts"
)

// State is what the bot expects next from a chat.
type State string

const (
	StateAwaitingTransactionID  State = "awaitingTransactionId"
	StateAwaitingReceiptDetails State = "awaitingReceiptDetails"
	StateAwaitingBusinessName   State = "awaitingBusinessName"
	StateAwaitingLogo           State = "awaitingLogo"
	StateAwaitingBaseAddress    State = "awaitingBaseAddress"
)

// Session is one chat's conversation state.
type Session struct {
	State State
	Tx    *receipts.Tx // set in StateAwaitingReceiptDetails
}

// Sessions holds in-memory conversation state per chat.
type Sessions struct {
	mu sync.Mutex
	m  map[int64]Session
}

// NewSessions creates an empty session table.
func NewSessions() *Sessions {
	return &Sessions{m: make(map[int64]Session)}
}

func (s *Sessions) Get(chatID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[chatID]
	return sess, ok
}

func (s *Sessions) Set(chatID int64, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[chatID] = sess
}

// Clear drops the chat's session and reports whether one existed.
func (s *Sessions) Clear(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[chatID]
	delete(s.m, chatID)
	return ok
}
