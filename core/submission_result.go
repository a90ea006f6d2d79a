package core

import (
	"fmt"
	"strings"
)

type SubmissionPhase string

const (
	SubmissionPhasePending            SubmissionPhase = "pending"
	SubmissionPhaseInsurerRejected    SubmissionPhase = "insurer_rejected"
	SubmissionPhaseInsurerUnavailable SubmissionPhase = "insurer_unavailable"
	SubmissionPhaseInsurerAccepted    SubmissionPhase = "insurer_accepted"
	SubmissionPhasePersisted          SubmissionPhase = "persisted"
)

// AwaitingPersistence reports whether phase 1 succeeded and phase 2 has not.
func (p SubmissionPhase) AwaitingPersistence() bool {
	return p == SubmissionPhaseInsurerAccepted
}

type SubmissionOutcome string

const (
	SubmissionAccepted SubmissionOutcome = "accepted"
	SubmissionRejected SubmissionOutcome = "rejected"
)

type AcceptedClaim struct {
	ClaimID      string `json:"claim_id"`
	InsurerAckID string `json:"insurer_ack_id"`
}

type RejectedClaim struct {
	Reason string `json:"reason"`
}

// SubmissionResult holds exactly one of Accepted or Rejected. Build it with
// NewAcceptedResult or NewRejectedResult.
type SubmissionResult struct {
	accepted *AcceptedClaim
	rejected *RejectedClaim
}

func NewAcceptedResult(claimID, insurerAckID string) (SubmissionResult, error) {
	claimID = strings.TrimSpace(claimID)
	insurerAckID = strings.TrimSpace(insurerAckID)
	if claimID == "" || insurerAckID == "" {
		return SubmissionResult{}, fmt.Errorf("core: accepted result requires claim id and insurer ack id")
	}
	return SubmissionResult{accepted: &AcceptedClaim{ClaimID: claimID, InsurerAckID: insurerAckID}}, nil
}

func NewRejectedResult(reason string) SubmissionResult {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "rejected by insurer"
	}
	return SubmissionResult{rejected: &RejectedClaim{Reason: reason}}
}

func (r SubmissionResult) Outcome() SubmissionOutcome {
	if r.accepted != nil {
		return SubmissionAccepted
	}
	if r.rejected != nil {
		return SubmissionRejected
	}
	return ""
}

func (r SubmissionResult) Accepted() (AcceptedClaim, bool) {
	if r.accepted == nil {
		return AcceptedClaim{}, false
	}
	return *r.accepted, true
}

func (r SubmissionResult) Rejected() (RejectedClaim, bool) {
	if r.rejected == nil {
		return RejectedClaim{}, false
	}
	return *r.rejected, true
}

func (r SubmissionResult) IsZero() bool {
	return r.accepted == nil && r.rejected == nil
}
