package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type insurerReply struct {
	resp InsurerResponse
	err  error
}

type stubInsurer struct {
	mu      sync.Mutex
	calls   []ClaimPayload
	replies []insurerReply
	block   chan struct{}
	started chan string
}

func (s *stubInsurer) SubmitClaim(ctx context.Context, payload ClaimPayload) (InsurerResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, payload)
	index := len(s.calls) - 1
	block := s.block
	started := s.started
	reply := insurerReply{resp: InsurerResponse{Success: true, ClaimAckID: "ACK-1"}}
	if len(s.replies) > 0 {
		if index >= len(s.replies) {
			index = len(s.replies) - 1
		}
		reply = s.replies[index]
	}
	s.mu.Unlock()

	if started != nil {
		started <- payload.IdempotencyToken
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return InsurerResponse{}, ctx.Err()
		}
	}
	return reply.resp, reply.err
}

func (s *stubInsurer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubInsurer) tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, call := range s.calls {
		out = append(out, call.IdempotencyToken)
	}
	return out
}

type localReply struct {
	resp LocalRecordResponse
	err  error
}

type stubLocalRecord struct {
	mu      sync.Mutex
	calls   []LocalClaimRecord
	replies []localReply
}

func (s *stubLocalRecord) PersistClaim(_ context.Context, record LocalClaimRecord) (LocalRecordResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, record)
	index := len(s.calls) - 1
	if len(s.replies) == 0 {
		return LocalRecordResponse{Success: true, ClaimID: "CLM-1"}, nil
	}
	if index >= len(s.replies) {
		index = len(s.replies) - 1
	}
	return s.replies[index].resp, s.replies[index].err
}

func (s *stubLocalRecord) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubLocalRecord) lastCall() LocalClaimRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return LocalClaimRecord{}
	}
	return s.calls[len(s.calls)-1]
}

type stubDependents struct {
	mu         sync.Mutex
	calls      int
	dependents []PatientRef
	err        error
}

func (s *stubDependents) ListDependents(context.Context, string) ([]PatientRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]PatientRef(nil), s.dependents...), nil
}

type stubPostalLookup struct {
	mu        sync.Mutex
	addresses map[string]PostalAddress
	gates     map[string]chan struct{}
	started   chan string
	calls     []string
	err       error
}

func (s *stubPostalLookup) LookupPincode(ctx context.Context, pincode string) (PostalAddress, error) {
	s.mu.Lock()
	s.calls = append(s.calls, pincode)
	gate := s.gates[pincode]
	started := s.started
	address, ok := s.addresses[pincode]
	err := s.err
	s.mu.Unlock()

	if started != nil {
		started <- pincode
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return PostalAddress{}, ctx.Err()
		}
	}
	if err != nil {
		return PostalAddress{}, err
	}
	if !ok {
		return PostalAddress{}, ErrPincodeNotFound
	}
	return address, nil
}

func (s *stubPostalLookup) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	return l.values, nil
}

type testHarness struct {
	svc        *Service
	insurer    *stubInsurer
	local      *stubLocalRecord
	dependents *stubDependents
	postal     *stubPostalLookup
	ledger     *MemorySubmissionLedger
}

func newTestHarness(t *testing.T, opts ...Option) *testHarness {
	t.Helper()
	h := &testHarness{
		insurer: &stubInsurer{},
		local:   &stubLocalRecord{},
		dependents: &stubDependents{dependents: []PatientRef{
			{UHID: "UH-100", InsuredName: "Asha Rao", Relation: "self", DOB: "1980-04-02", Gender: "F"},
			{UHID: "UH-101", InsuredName: "Vikram Rao", Relation: "spouse", DOB: "1978-11-20", Gender: "M"},
		}},
		postal: &stubPostalLookup{addresses: map[string]PostalAddress{
			"400001": {Status: "Success", City: "Mumbai", State: "Maharashtra"},
			"110001": {Status: "Success", City: "New Delhi", State: "Delhi"},
		}},
		ledger: NewMemorySubmissionLedger(),
	}
	base := []Option{
		WithInsurerAPI(h.insurer),
		WithLocalRecordAPI(h.local),
		WithPolicyDependents(h.dependents),
		WithPostalLookup(h.postal),
		WithSubmissionLedger(h.ledger),
		WithClock(fixedClock),
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
	}
	svc, err := NewService(DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}

func (h *testHarness) start(t *testing.T) string {
	t.Helper()
	summary, err := h.svc.StartSession(context.Background())
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return summary.SessionID
}

func completeDetails() HospitalizationDetails {
	admission := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	discharge := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	return HospitalizationDetails{
		AdmissionDate:   &admission,
		DischargeDate:   &discharge,
		HospitalName:    "City Care Hospital",
		HospitalState:   "Maharashtra",
		HospitalCity:    "Mumbai",
		HospitalPincode: "400001",
		Diagnosis:       "Appendicitis",
		ClaimAmount:     85000,
	}
}

// toDetailEntry drives a new session through the first two steps.
func (h *testHarness) toDetailEntry(t *testing.T, claimType ClaimType) string {
	t.Helper()
	ctx := context.Background()
	sessionID := h.start(t)
	if err := h.svc.SelectPolicy(ctx, sessionID, PolicySelection{PolicyID: "POL-1", PolicyNumber: "HL-2026-0001", InsurerID: "INS-9"}); err != nil {
		t.Fatalf("select policy: %v", err)
	}
	if err := h.svc.SetClaimType(ctx, sessionID, claimType); err != nil {
		t.Fatalf("set claim type: %v", err)
	}
	if _, err := h.svc.Advance(ctx, sessionID); err != nil {
		t.Fatalf("advance from policy select: %v", err)
	}
	if err := h.svc.SelectPatient(ctx, sessionID, "UH-100"); err != nil {
		t.Fatalf("select patient: %v", err)
	}
	if _, err := h.svc.Advance(ctx, sessionID); err != nil {
		t.Fatalf("advance from dependent select: %v", err)
	}
	return sessionID
}

// toReview drives a new session to the review step with an intimation draft.
func (h *testHarness) toReview(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	sessionID := h.toDetailEntry(t, ClaimTypeIntimation)
	if err := h.svc.UpdateHospitalization(ctx, sessionID, completeDetails()); err != nil {
		t.Fatalf("update hospitalization: %v", err)
	}
	if err := h.svc.UpdateContact(ctx, sessionID, ClaimantContact{Mobile: "9876543210", Email: "asha@example.com"}); err != nil {
		t.Fatalf("update contact: %v", err)
	}
	if _, err := h.svc.Advance(ctx, sessionID); err != nil {
		t.Fatalf("advance from detail entry: %v", err)
	}
	return sessionID
}

func (h *testHarness) session(t *testing.T, sessionID string) *SessionStore {
	t.Helper()
	session, err := h.svc.Session(sessionID)
	if err != nil {
		t.Fatalf("session %s: %v", sessionID, err)
	}
	return session
}

func requireSubmissionKind(t *testing.T, err error, kind SubmissionErrorKind) *SubmissionError {
	t.Helper()
	subErr, ok := AsSubmissionError(err)
	if !ok {
		t.Fatalf("expected submission error %s, got %v", kind, err)
	}
	if subErr.Kind != kind {
		t.Fatalf("expected submission error %s, got %s (%v)", kind, subErr.Kind, err)
	}
	return subErr
}

var errTransport = errors.New("dial tcp: connection refused")
