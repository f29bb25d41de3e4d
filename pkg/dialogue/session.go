package dialogue

import (
	"strings"
	"sync"
	"time"
)

// State of the planning state machine.
type State string

const (
	StateAwaitingQuestion           State = "AWAITING_QUESTION"
	StateRetrieving                 State = "RETRIEVING"
	StateAwaitingClarificationReply State = "AWAITING_CLARIFICATION_REPLY"
	StateComposingAnswer            State = "COMPOSING_ANSWER"
	StateBuildingTicket             State = "BUILDING_TICKET"
	StateAwaitingTicketEdit         State = "AWAITING_TICKET_EDIT"
	StateDone                       State = "DONE"
)

// Clarification is an open multiple-choice question awaiting a reply.
// At most one may be open per session.
type Clarification struct {
	Question string
	Options  []string
	AskedAt  time.Time
}

// TicketDraft is an in-progress human-escalation request. Immutable once
// submitted, except through the edit-instruction path.
type TicketDraft struct {
	Category    string
	Title       string
	Description string
	Submitted   bool
}

func (t TicketDraft) Payload() TicketPayload {
	return TicketPayload{
		Category:    t.Category,
		Title:       t.Title,
		Description: t.Description,
	}
}

// RetrievedPassage is one hydrated retrieval hit accumulated for the
// current answer-composition cycle.
type RetrievedPassage struct {
	ID    string
	Text  string
	Score float64
	Kind  string
}

// Session holds all per-conversation orchestration state with named, typed
// fields. One session is processed strictly sequentially; distinct sessions
// are independent.
type Session struct {
	ID     string
	UserID string
	Theme  string

	History []Message
	State   State

	// Per-turn retrieval scratch, reset on each new user question.
	RetrievalAttempts   int
	IssuedQueries       map[string]struct{}
	Evidence            []RetrievedPassage
	ClarificationsAsked int

	PendingClarification *Clarification
	// ClarifiedQuestion carries the original question an open MCQ refers to.
	ClarifiedQuestion string

	Ticket          *TicketDraft
	TicketSubmitted bool

	// CapabilityOffered marks that the previous turn ended with a
	// capabilities explanation; the next reply is routed ticket-vs-question.
	CapabilityOffered bool

	// LastTurnFingerprint detects an identical, already-committed user
	// message being resent (idempotent retry after a network failure).
	LastTurnFingerprint string

	mu sync.Mutex
}

func NewSession(id, userID string) *Session {
	return &Session{
		ID:            id,
		UserID:        userID,
		State:         StateAwaitingQuestion,
		IssuedQueries: make(map[string]struct{}),
	}
}

// Lock serializes turn processing for this session.
func (s *Session) Lock() { s.mu.Lock() }

// TryLock reports whether the session was free; a false return means a turn
// is already in flight.
func (s *Session) TryLock() bool { return s.mu.TryLock() }

func (s *Session) Unlock() { s.mu.Unlock() }

// Append adds a message to history.
func (s *Session) Append(m Message) {
	s.History = append(s.History, m)
}

// ResetTurn clears the per-turn retrieval scratch when a new user question
// starts a fresh answer-composition cycle.
func (s *Session) ResetTurn() {
	s.RetrievalAttempts = 0
	s.IssuedQueries = make(map[string]struct{})
	s.Evidence = nil
	s.ClarificationsAsked = 0
}

// NormalizeQuery canonicalizes a sub-query for dedupe checks.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// QueryIssued reports whether a sub-query with the same normalized text was
// already attempted in this cycle.
func (s *Session) QueryIssued(q string) bool {
	_, ok := s.IssuedQueries[NormalizeQuery(q)]
	return ok
}

// MarkQueryIssued records a sub-query; returns false if it was a duplicate.
func (s *Session) MarkQueryIssued(q string) bool {
	norm := NormalizeQuery(q)
	if _, ok := s.IssuedQueries[norm]; ok {
		return false
	}
	if s.IssuedQueries == nil {
		s.IssuedQueries = make(map[string]struct{})
	}
	s.IssuedQueries[norm] = struct{}{}
	return true
}

// SeenPassage reports whether a passage id is already in the evidence set.
func (s *Session) SeenPassage(id string) bool {
	for _, p := range s.Evidence {
		if p.ID == id {
			return true
		}
	}
	return false
}

// MergeEvidence folds new passages into the accumulator, deduplicating by
// passage id and keeping the higher score. Returns true if at least one
// previously unseen passage arrived.
func (s *Session) MergeEvidence(passages []RetrievedPassage) bool {
	newInfo := false
	for _, p := range passages {
		found := false
		for i := range s.Evidence {
			if s.Evidence[i].ID == p.ID {
				found = true
				if p.Score > s.Evidence[i].Score {
					s.Evidence[i].Score = p.Score
				}
				break
			}
		}
		if !found {
			s.Evidence = append(s.Evidence, p)
			newInfo = true
		}
	}
	return newInfo
}
