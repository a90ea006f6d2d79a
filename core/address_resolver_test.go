package core

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestAddressResolver_LatestPincodeWins(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	sessionID := h.toDetailEntry(t, ClaimTypeIntimation)

	slow := make(chan struct{})
	h.postal.mu.Lock()
	h.postal.gates = map[string]chan struct{}{"110001": slow}
	h.postal.started = make(chan string, 2)
	h.postal.mu.Unlock()

	type outcome struct {
		resolution AddressResolution
		err        error
	}
	first := make(chan outcome, 1)
	go func() {
		resolution, err := h.svc.EnterPincode(ctx, sessionID, "110001")
		first <- outcome{resolution: resolution, err: err}
	}()
	if got := <-h.postal.started; got != "110001" {
		t.Fatalf("expected 110001 lookup first, got %s", got)
	}

	second, err := h.svc.EnterPincode(ctx, sessionID, "400001")
	if err != nil {
		t.Fatalf("enter second pincode: %v", err)
	}
	<-h.postal.started
	if second.Status != AddressResolved || second.City != "Mumbai" {
		t.Fatalf("expected second lookup to resolve Mumbai, got %+v", second)
	}

	close(slow)
	late := <-first
	if late.err != nil {
		t.Fatalf("enter first pincode: %v", late.err)
	}
	if late.resolution.Status != AddressSuperseded {
		t.Fatalf("expected first lookup to be superseded, got %s", late.resolution.Status)
	}

	details := h.session(t, sessionID).Draft().Hospitalization
	if details.HospitalPincode != "400001" || details.HospitalCity != "Mumbai" || details.HospitalState != "Maharashtra" {
		t.Fatalf("expected Mumbai/Maharashtra for 400001, got %s/%s for %s", details.HospitalCity, details.HospitalState, details.HospitalPincode)
	}
}

func TestAddressResolver_SkipsIncompletePincode(t *testing.T) {
	h := newTestHarness(t)
	sessionID := h.toDetailEntry(t, ClaimTypeIntimation)

	resolution, err := h.svc.EnterPincode(context.Background(), sessionID, "40000")
	if err != nil {
		t.Fatalf("enter pincode: %v", err)
	}
	if resolution.Status != AddressSkipped {
		t.Fatalf("expected skipped, got %s", resolution.Status)
	}
	if h.postal.callCount() != 0 {
		t.Fatalf("expected no lookup for a 5-digit pincode")
	}
	if got := h.session(t, sessionID).Draft().Hospitalization.HospitalPincode; got != "40000" {
		t.Fatalf("expected pincode to be recorded, got %q", got)
	}
}

func TestAddressResolver_NotFoundIsWarningOnly(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	sessionID := h.toDetailEntry(t, ClaimTypeIntimation)
	details := completeDetails()
	details.HospitalCity = "Thane"
	details.HospitalState = "Maharashtra"
	details.HospitalPincode = ""
	if err := h.svc.UpdateHospitalization(ctx, sessionID, details); err != nil {
		t.Fatalf("update hospitalization: %v", err)
	}

	resolution, err := h.svc.EnterPincode(ctx, sessionID, "999999")
	if err != nil {
		t.Fatalf("lookup failure must not surface as an error: %v", err)
	}
	if resolution.Status != AddressFailed || resolution.Warning == nil {
		t.Fatalf("expected failed resolution with warning, got %+v", resolution)
	}
	if !errors.Is(resolution.Warning, ErrPincodeNotFound) {
		t.Fatalf("expected not found cause, got %v", resolution.Warning)
	}
	var rich *goerrors.Error
	if !goerrors.As(resolution.Warning, &rich) || rich.TextCode != ClaimErrorLookupFailed {
		t.Fatalf("expected lookup failure envelope, got %v", resolution.Warning)
	}

	session := h.session(t, sessionID)
	if session.AddressWarning() == nil {
		t.Fatalf("expected warning on session")
	}
	draft := session.Draft()
	if draft.Hospitalization.HospitalCity != "Thane" {
		t.Fatalf("manual city must survive a failed lookup, got %q", draft.Hospitalization.HospitalCity)
	}
	if _, err := h.svc.Advance(ctx, sessionID); err != nil {
		t.Fatalf("failed lookup must not block advance: %v", err)
	}
}

func TestAddressResolver_TransportFailureIsWarningOnly(t *testing.T) {
	h := newTestHarness(t)
	h.postal.err = errTransport
	sessionID := h.toDetailEntry(t, ClaimTypeIntimation)

	resolution, err := h.svc.EnterPincode(context.Background(), sessionID, "400001")
	if err != nil {
		t.Fatalf("enter pincode: %v", err)
	}
	if resolution.Status != AddressFailed || !errors.Is(resolution.Warning, errTransport) {
		t.Fatalf("expected transport warning, got %+v", resolution)
	}
}

func TestAddressResolver_HospitalizationEditSupersedesLookup(t *testing.T) {
	session := NewSessionStore(fixedClock)
	resolver := NewAddressResolver(&stubPostalLookup{addresses: map[string]PostalAddress{
		"400001": {City: "Mumbai", State: "Maharashtra"},
	}}, 6)
	session.withLock(func() { session.state = WizardDetailEntry })

	seq, err := session.beginAddressLookup()
	if err != nil {
		t.Fatalf("begin lookup: %v", err)
	}
	session.withLock(func() { session.addressSeq++ })
	if session.applyAddress(seq, PostalAddress{City: "Pune", State: "Maharashtra"}, nil) {
		t.Fatalf("stale lookup must not apply")
	}

	resolution, err := resolver.Resolve(context.Background(), session, "400001")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolution.Status != AddressResolved || session.Draft().Hospitalization.HospitalCity != "Mumbai" {
		t.Fatalf("expected fresh lookup to apply, got %+v", resolution)
	}
}

func TestAddressResolver_LateLookupLeavesLockedDraftAlone(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.local.replies = []localReply{{err: errTransport}}
	sessionID := h.toDetailEntry(t, ClaimTypeIntimation)
	if err := h.svc.UpdateHospitalization(ctx, sessionID, completeDetails()); err != nil {
		t.Fatalf("update hospitalization: %v", err)
	}
	if err := h.svc.UpdateContact(ctx, sessionID, ClaimantContact{Mobile: "9876543210", Email: "asha@example.com"}); err != nil {
		t.Fatalf("update contact: %v", err)
	}

	slow := make(chan struct{})
	h.postal.mu.Lock()
	h.postal.gates = map[string]chan struct{}{"110001": slow}
	h.postal.started = make(chan string, 1)
	h.postal.mu.Unlock()

	type outcome struct {
		resolution AddressResolution
		err        error
	}
	late := make(chan outcome, 1)
	go func() {
		resolution, err := h.svc.EnterPincode(ctx, sessionID, "110001")
		late <- outcome{resolution: resolution, err: err}
	}()
	<-h.postal.started

	if _, err := h.svc.Advance(ctx, sessionID); err != nil {
		t.Fatalf("advance to review: %v", err)
	}
	if _, err := h.svc.Submit(ctx, sessionID); err == nil {
		t.Fatalf("expected persistence failure")
	}
	session := h.session(t, sessionID)
	if !session.Submission().Locked() {
		t.Fatalf("expected draft to be locked after insurer acceptance")
	}

	close(slow)
	got := <-late
	if got.err != nil {
		t.Fatalf("enter pincode: %v", got.err)
	}
	if got.resolution.Status != AddressSuperseded {
		t.Fatalf("expected late lookup to be superseded, got %s", got.resolution.Status)
	}

	h.insurer.mu.Lock()
	sent := h.insurer.calls[0].Hospitalization.HospitalCity
	h.insurer.mu.Unlock()
	if city := session.Draft().Hospitalization.HospitalCity; city != sent {
		t.Fatalf("expected draft city %q to match insurer payload, got %q", sent, city)
	}
}

func TestAddressResolver_LateLookupAfterAdvanceIsSuperseded(t *testing.T) {
	session := NewSessionStore(fixedClock)
	session.withLock(func() {
		session.state = WizardDetailEntry
		session.draft.Hospitalization.HospitalCity = "Thane"
	})
	seq, err := session.beginAddressLookup()
	if err != nil {
		t.Fatalf("begin lookup: %v", err)
	}
	session.withLock(func() { session.state = WizardReview })

	if session.applyAddress(seq, PostalAddress{City: "Mumbai", State: "Maharashtra"}, nil) {
		t.Fatalf("lookup must not apply outside detail entry")
	}
	if city := session.Draft().Hospitalization.HospitalCity; city != "Thane" {
		t.Fatalf("expected review draft to keep Thane, got %q", city)
	}
}

func TestAddressResolver_ManualCityEditSupersedesLookup(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	sessionID := h.toDetailEntry(t, ClaimTypeIntimation)

	slow := make(chan struct{})
	h.postal.mu.Lock()
	h.postal.gates = map[string]chan struct{}{"110001": slow}
	h.postal.started = make(chan string, 1)
	h.postal.mu.Unlock()

	late := make(chan AddressResolution, 1)
	go func() {
		resolution, _ := h.svc.EnterPincode(ctx, sessionID, "110001")
		late <- resolution
	}()
	<-h.postal.started

	details := completeDetails()
	details.HospitalPincode = "110001"
	details.HospitalCity = "Gurugram"
	details.HospitalState = "Haryana"
	if err := h.svc.UpdateHospitalization(ctx, sessionID, details); err != nil {
		t.Fatalf("update hospitalization: %v", err)
	}

	close(slow)
	if resolution := <-late; resolution.Status != AddressSuperseded {
		t.Fatalf("expected lookup to be superseded by the manual edit, got %s", resolution.Status)
	}
	got := h.session(t, sessionID).Draft().Hospitalization
	if got.HospitalCity != "Gurugram" || got.HospitalState != "Haryana" {
		t.Fatalf("expected manual Gurugram/Haryana to survive, got %s/%s", got.HospitalCity, got.HospitalState)
	}
}
