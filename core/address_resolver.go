package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

type AddressStatus string

const (
	AddressResolved   AddressStatus = "resolved"
	AddressSkipped    AddressStatus = "skipped"
	AddressSuperseded AddressStatus = "superseded"
	AddressFailed     AddressStatus = "failed"
)

type AddressResolution struct {
	Status   AddressStatus
	Pincode  string
	City     string
	State    string
	Sequence uint64
	// Warning is set for failed lookups. It never blocks the wizard.
	Warning error
}

// AddressResolver fills hospital city/state from the pincode. Each lookup
// takes a sequence token from the session; only the latest token may write
// to the draft.
type AddressResolver struct {
	lookup  PostalLookup
	pattern *regexp.Regexp
}

func NewAddressResolver(lookup PostalLookup, pincodeLength int) *AddressResolver {
	if pincodeLength <= 0 {
		pincodeLength = defaultPincodeLength
	}
	return &AddressResolver{
		lookup:  lookup,
		pattern: regexp.MustCompile(fmt.Sprintf(`^[0-9]{%d}$`, pincodeLength)),
	}
}

func (r *AddressResolver) Resolve(ctx context.Context, session *SessionStore, pincode string) (AddressResolution, error) {
	if session == nil {
		return AddressResolution{}, ErrSessionMissing
	}
	pincode = strings.TrimSpace(pincode)
	resolution := AddressResolution{Pincode: pincode}
	if r == nil || r.lookup == nil || !r.pattern.MatchString(pincode) {
		resolution.Status = AddressSkipped
		return resolution, nil
	}

	seq, err := session.beginAddressLookup()
	if err != nil {
		return resolution, err
	}
	resolution.Sequence = seq

	address, lookupErr := r.lookup.LookupPincode(ctx, pincode)
	if lookupErr == nil && strings.TrimSpace(address.City) == "" && strings.TrimSpace(address.State) == "" {
		lookupErr = ErrPincodeNotFound
	}
	var warning error
	if lookupErr != nil {
		warning = newLookupFailure(pincode, lookupErr)
	}

	if !session.applyAddress(seq, address, warning) {
		resolution.Status = AddressSuperseded
		return resolution, nil
	}
	if warning != nil {
		resolution.Status = AddressFailed
		resolution.Warning = warning
		return resolution, nil
	}
	resolution.Status = AddressResolved
	resolution.City = strings.TrimSpace(address.City)
	resolution.State = strings.TrimSpace(address.State)
	return resolution, nil
}

func (s *SessionStore) beginAddressLookup() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleared {
		return 0, ErrSessionMissing
	}
	s.addressSeq++
	return s.addressSeq, nil
}

// applyAddress writes a lookup result when seq is still the latest token and
// the draft is still editable at detail_entry. A failed lookup leaves city and
// state as the user entered them.
func (s *SessionStore) applyAddress(seq uint64, address PostalAddress, warning error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleared || seq != s.addressSeq {
		return false
	}
	if s.state != WizardDetailEntry || s.submission.Locked() {
		return false
	}
	s.warning = warning
	if warning != nil {
		return true
	}
	s.draft.Hospitalization.HospitalCity = strings.TrimSpace(address.City)
	s.draft.Hospitalization.HospitalState = strings.TrimSpace(address.State)
	s.draft.UpdatedAt = s.now()
	return true
}
