package core

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SubmissionState is the per-draft view of the submission protocol.
type SubmissionState struct {
	Phase        SubmissionPhase
	InFlight     bool
	InsurerAckID string
	ClaimID      string
	Payload      *ClaimPayload
	LastError    error
}

// Locked reports whether the draft must stay as sent to the insurer.
func (s SubmissionState) Locked() bool {
	return s.InFlight || s.Phase == SubmissionPhaseInsurerAccepted || s.Phase == SubmissionPhasePersisted
}

// SessionStore holds the draft and wizard state of one wizard session. It is
// created per session and never shared between sessions.
type SessionStore struct {
	mu         sync.Mutex
	id         string
	draftID    string
	draft      ClaimDraft
	state      WizardState
	outcome    TerminalOutcome
	dependents []PatientRef
	submission SubmissionState
	result     SubmissionResult
	warning    error
	addressSeq uint64
	cleared    bool
	now        func() time.Time
}

func NewSessionStore(now func() time.Time) *SessionStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	createdAt := now()
	draftID := uuid.NewString()
	return &SessionStore{
		id:      uuid.NewString(),
		draftID: draftID,
		state:   WizardPolicySelect,
		now:     now,
		draft: ClaimDraft{
			ID:               draftID,
			IdempotencyToken: uuid.NewString(),
			CreatedAt:        createdAt,
			UpdatedAt:        createdAt,
		},
	}
}

// RestoreSessionStore rebuilds a session at the review step from a ledger
// entry, so an interrupted submission can be resumed with its original token.
func RestoreSessionStore(entry LedgerEntry, draft ClaimDraft, now func() time.Time) (*SessionStore, error) {
	if strings.TrimSpace(entry.DraftID) == "" || strings.TrimSpace(entry.IdempotencyToken) == "" {
		return nil, fmt.Errorf("core: ledger entry is incomplete")
	}
	session := NewSessionStore(now)
	session.draftID = entry.DraftID
	draft.ID = entry.DraftID
	draft.IdempotencyToken = entry.IdempotencyToken
	session.draft = draft.Clone()
	session.state = WizardReview
	session.submission = SubmissionState{
		Phase:        entry.Phase,
		InsurerAckID: entry.InsurerAckID,
		ClaimID:      entry.ClaimID,
	}
	if entry.Phase.AwaitingPersistence() {
		payload := entry.Payload
		session.submission.Payload = &payload
	}
	return session, nil
}

func (s *SessionStore) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// DraftID stays available after the draft is cleared.
func (s *SessionStore) DraftID() string {
	if s == nil {
		return ""
	}
	return s.draftID
}

func (s *SessionStore) Draft() ClaimDraft {
	if s == nil {
		return ClaimDraft{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

func (s *SessionStore) State() WizardState {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SessionStore) Outcome() TerminalOutcome {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

func (s *SessionStore) Dependents() []PatientRef {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PatientRef(nil), s.dependents...)
}

func (s *SessionStore) Submission() SubmissionState {
	if s == nil {
		return SubmissionState{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submission
}

func (s *SessionStore) Result() SubmissionResult {
	if s == nil {
		return SubmissionResult{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// AddressWarning returns the last non-fatal address lookup failure.
func (s *SessionStore) AddressWarning() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warning
}

func (s *SessionStore) Cleared() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleared
}

// Clear discards the draft. The session id and terminal outcome survive so
// callers can still render the terminal view.
func (s *SessionStore) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *SessionStore) clearLocked() {
	s.draft = ClaimDraft{}
	s.dependents = nil
	s.warning = nil
	s.cleared = true
}

// mutate applies fn to the draft under the session lock. fn sees the current
// wizard state and submission state and may refuse the change.
func (s *SessionStore) mutate(fn func(view sessionView) error) error {
	if s == nil {
		return ErrSessionMissing
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleared {
		return ErrSessionMissing
	}
	draft := s.draft.Clone()
	view := sessionView{
		state:      s.state,
		submission: s.submission,
		dependents: s.dependents,
		draft:      &draft,
	}
	if err := fn(view); err != nil {
		return err
	}
	draft.UpdatedAt = s.now()
	s.draft = draft
	return nil
}

type sessionView struct {
	state      WizardState
	submission SubmissionState
	dependents []PatientRef
	draft      *ClaimDraft
}

func (s *SessionStore) withLock(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// SessionRegistry tracks live sessions of one Service.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*SessionStore
	byDraft  map[string]string
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: map[string]*SessionStore{},
		byDraft:  map[string]string{},
	}
}

func (r *SessionRegistry) Put(session *SessionStore) {
	if r == nil || session == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID()] = session
	r.byDraft[session.DraftID()] = session.ID()
}

func (r *SessionRegistry) Get(sessionID string) (*SessionStore, error) {
	if r == nil {
		return nil, ErrSessionMissing
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return nil, ErrSessionMissing
	}
	return session, nil
}

func (r *SessionRegistry) ByDraft(draftID string) (*SessionStore, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessionID, ok := r.byDraft[strings.TrimSpace(draftID)]
	if !ok {
		return nil, false
	}
	session, ok := r.sessions[sessionID]
	return session, ok
}

func (r *SessionRegistry) Remove(sessionID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sessionID = strings.TrimSpace(sessionID)
	for draftID, owner := range r.byDraft {
		if owner == sessionID {
			delete(r.byDraft, draftID)
		}
	}
	delete(r.sessions, sessionID)
}

func (r *SessionRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
