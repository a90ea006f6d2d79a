package core

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

type ClaimType string

const (
	ClaimTypeIntimation    ClaimType = "intimation"
	ClaimTypeReimbursement ClaimType = "reimbursement"
)

func (t ClaimType) Valid() bool {
	switch t {
	case ClaimTypeIntimation, ClaimTypeReimbursement:
		return true
	default:
		return false
	}
}

func ParseClaimType(raw string) (ClaimType, error) {
	claimType := ClaimType(strings.ToLower(strings.TrimSpace(raw)))
	if !claimType.Valid() {
		return "", fmt.Errorf("core: unknown claim type %q", raw)
	}
	return claimType, nil
}

type PolicySelection struct {
	PolicyID     string `json:"policy_id"`
	PolicyNumber string `json:"policy_number"`
	InsurerID    string `json:"insurer_id,omitempty"`
	TPAID        string `json:"tpa_id,omitempty"`
}

func (p PolicySelection) Bound() bool {
	return strings.TrimSpace(p.PolicyID) != "" && strings.TrimSpace(p.PolicyNumber) != ""
}

// PatientRef is a covered dependent of the selected policy.
type PatientRef struct {
	UHID        string `json:"uhid"`
	InsuredName string `json:"insured_name"`
	Relation    string `json:"relation"`
	DOB         string `json:"dob,omitempty"`
	Gender      string `json:"gender,omitempty"`
}

type HospitalizationDetails struct {
	AdmissionDate   *time.Time
	DischargeDate   *time.Time
	HospitalName    string
	HospitalState   string
	HospitalCity    string
	HospitalPincode string
	Diagnosis       string
	ClaimAmount     float64
}

type ClaimantContact struct {
	Mobile string
	Email  string
}

// ClaimDraft is the mutable claim accumulated across wizard steps. The
// idempotency token is fixed when the draft is created.
type ClaimDraft struct {
	ID               string
	Policy           PolicySelection
	ClaimType        ClaimType
	Patient          PatientRef
	Hospitalization  HospitalizationDetails
	Contact          ClaimantContact
	Document         DocumentHandle
	IdempotencyToken string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (d ClaimDraft) Clone() ClaimDraft {
	cloned := d
	cloned.Hospitalization.AdmissionDate = cloneTime(d.Hospitalization.AdmissionDate)
	cloned.Hospitalization.DischargeDate = cloneTime(d.Hospitalization.DischargeDate)
	return cloned
}

// HospitalizationPayload is the wire shape of HospitalizationDetails.
type HospitalizationPayload struct {
	AdmissionDate   string  `json:"admission_date"`
	DischargeDate   string  `json:"discharge_date,omitempty"`
	HospitalName    string  `json:"hospital_name"`
	HospitalState   string  `json:"hospital_state"`
	HospitalCity    string  `json:"hospital_city"`
	HospitalPincode string  `json:"hospital_pincode"`
	Diagnosis       string  `json:"diagnosis"`
	ClaimAmount     float64 `json:"claim_amount"`
}

// ClaimPayload is sent to the insurer in phase 1 and, with the insurer ack
// id, to the local system of record in phase 2.
type ClaimPayload struct {
	DraftID          string                 `json:"draft_id"`
	PolicyID         string                 `json:"policy_id"`
	PolicyNumber     string                 `json:"policy_number"`
	InsurerID        string                 `json:"insurer_id,omitempty"`
	TPAID            string                 `json:"tpa_id,omitempty"`
	PatientRef       string                 `json:"patient_ref"`
	PatientName      string                 `json:"patient_name,omitempty"`
	ClaimType        ClaimType              `json:"claim_type"`
	Mobile           string                 `json:"mobile,omitempty"`
	Email            string                 `json:"email,omitempty"`
	Hospitalization  HospitalizationPayload `json:"hospitalization_details"`
	FileURL          string                 `json:"file_url,omitempty"`
	FileEncoding     string                 `json:"file_encoding,omitempty"`
	IdempotencyToken string                 `json:"idempotency_token"`
}

type LocalClaimRecord struct {
	ClaimPayload
	InsurerAckID string `json:"insurer_ack_id"`
}

func NewClaimPayload(draft ClaimDraft) ClaimPayload {
	payload := ClaimPayload{
		DraftID:          draft.ID,
		PolicyID:         strings.TrimSpace(draft.Policy.PolicyID),
		PolicyNumber:     strings.TrimSpace(draft.Policy.PolicyNumber),
		InsurerID:        strings.TrimSpace(draft.Policy.InsurerID),
		TPAID:            strings.TrimSpace(draft.Policy.TPAID),
		PatientRef:       strings.TrimSpace(draft.Patient.UHID),
		PatientName:      strings.TrimSpace(draft.Patient.InsuredName),
		ClaimType:        draft.ClaimType,
		Mobile:           strings.TrimSpace(draft.Contact.Mobile),
		Email:            strings.TrimSpace(draft.Contact.Email),
		IdempotencyToken: draft.IdempotencyToken,
		Hospitalization: HospitalizationPayload{
			AdmissionDate:   formatDate(draft.Hospitalization.AdmissionDate),
			DischargeDate:   formatDate(draft.Hospitalization.DischargeDate),
			HospitalName:    strings.TrimSpace(draft.Hospitalization.HospitalName),
			HospitalState:   strings.TrimSpace(draft.Hospitalization.HospitalState),
			HospitalCity:    strings.TrimSpace(draft.Hospitalization.HospitalCity),
			HospitalPincode: strings.TrimSpace(draft.Hospitalization.HospitalPincode),
			Diagnosis:       strings.TrimSpace(draft.Hospitalization.Diagnosis),
			ClaimAmount:     draft.Hospitalization.ClaimAmount,
		},
	}
	if draft.Document.Attached() {
		payload.FileURL = draft.Document.Value
		payload.FileEncoding = string(draft.Document.Kind)
	}
	return payload
}

func formatDate(value *time.Time) string {
	if value == nil || value.IsZero() {
		return ""
	}
	return value.Format(dateLayout)
}

func ParseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("core: invalid date %q: %w", raw, err)
	}
	return &parsed, nil
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
