package core

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

const (
	FieldPolicy          = "policy"
	FieldClaimType       = "claim_type"
	FieldPatientUHID     = "patient_uhid"
	FieldAdmissionDate   = "admission_date"
	FieldDischargeDate   = "discharge_date"
	FieldHospitalName    = "hospital_name"
	FieldHospitalState   = "hospital_state"
	FieldHospitalCity    = "hospital_city"
	FieldHospitalPincode = "hospital_pincode"
	FieldDiagnosis       = "diagnosis"
	FieldClaimAmount     = "claim_amount"
	FieldFileURL         = "file_url"
	FieldMobile          = "mobile"
	FieldEmail           = "email"
)

var (
	mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)
	emailPattern  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationResult struct {
	Valid       bool         `json:"valid"`
	FieldErrors []FieldError `json:"field_errors,omitempty"`
}

// Err returns nil for a valid result, otherwise a go-errors validation
// envelope carrying every field error.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	fields := make([]goerrors.FieldError, 0, len(r.FieldErrors))
	for _, fieldErr := range r.FieldErrors {
		fields = append(fields, goerrors.FieldError{
			Field:   fieldErr.Field,
			Message: fieldErr.Message,
		})
	}
	return goerrors.NewValidation("core: validation failed", fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(ClaimErrorValidationFailed).
		WithSeverity(goerrors.SeverityError)
}

func (r ValidationResult) HasField(field string) bool {
	for _, fieldErr := range r.FieldErrors {
		if fieldErr.Field == field {
			return true
		}
	}
	return false
}

// ValidationInput is the draft plus whatever the current step fetched.
type ValidationInput struct {
	Draft      ClaimDraft
	Dependents []PatientRef
}

type ValidationGate struct {
	pincodeLength int
	Now           func() time.Time
	// Location decides which calendar day is today. Nil means UTC.
	Location *time.Location
}

func NewValidationGate(pincodeLength int) *ValidationGate {
	if pincodeLength <= 0 {
		pincodeLength = defaultPincodeLength
	}
	return &ValidationGate{
		pincodeLength: pincodeLength,
		Now: func() time.Time {
			return time.Now().UTC()
		},
		Location: time.UTC,
	}
}

func (g *ValidationGate) Validate(state WizardState, input ValidationInput) ValidationResult {
	if g == nil {
		g = NewValidationGate(defaultPincodeLength)
	}
	var rules validation.Errors
	switch state {
	case WizardPolicySelect:
		rules = g.policyRules(input.Draft)
	case WizardDependentSelect:
		rules = g.dependentRules(input)
	case WizardDetailEntry:
		rules = g.detailRules(input.Draft)
	default:
		rules = validation.Errors{}
	}
	return toValidationResult(rules)
}

func (g *ValidationGate) policyRules(draft ClaimDraft) validation.Errors {
	return validation.Errors{
		FieldPolicy: validation.Validate(draft.Policy,
			validation.By(func(value any) error {
				policy, _ := value.(PolicySelection)
				if !policy.Bound() {
					return errors.New("a policy must be selected")
				}
				return nil
			}),
		),
		FieldClaimType: validation.Validate(string(draft.ClaimType),
			validation.Required.Error("claim type is required"),
			validation.In(string(ClaimTypeIntimation), string(ClaimTypeReimbursement)).Error("claim type is not supported"),
		),
	}
}

func (g *ValidationGate) dependentRules(input ValidationInput) validation.Errors {
	uhid := strings.TrimSpace(input.Draft.Patient.UHID)
	return validation.Errors{
		FieldPatientUHID: validation.Validate(uhid,
			validation.Required.Error("a patient must be selected"),
			validation.By(func(value any) error {
				candidate, _ := value.(string)
				for _, dependent := range input.Dependents {
					if strings.TrimSpace(dependent.UHID) == candidate {
						return nil
					}
				}
				return errors.New("patient is not covered by the selected policy")
			}),
		),
	}
}

func (g *ValidationGate) detailRules(draft ClaimDraft) validation.Errors {
	details := draft.Hospitalization
	today := truncateDay(g.now().In(g.location()))
	pincodePattern := regexp.MustCompile(fmt.Sprintf(`^[0-9]{%d}$`, g.pincodeLength))

	errs := validation.Errors{
		FieldAdmissionDate: validation.Validate(details.AdmissionDate,
			validation.Required.Error("admission date is required"),
			validation.By(func(value any) error {
				admission, _ := value.(*time.Time)
				if admission != nil && truncateDay(*admission).After(today) {
					return errors.New("admission date cannot be in the future")
				}
				return nil
			}),
		),
		FieldDischargeDate: validation.Validate(details.DischargeDate,
			validation.By(func(value any) error {
				discharge, _ := value.(*time.Time)
				if discharge == nil || details.AdmissionDate == nil {
					return nil
				}
				if truncateDay(*discharge).Before(truncateDay(*details.AdmissionDate)) {
					return errors.New("discharge date cannot be before admission date")
				}
				return nil
			}),
		),
		FieldHospitalName:  validation.Validate(strings.TrimSpace(details.HospitalName), validation.Required.Error("hospital name is required")),
		FieldHospitalState: validation.Validate(strings.TrimSpace(details.HospitalState), validation.Required.Error("hospital state is required")),
		FieldHospitalCity:  validation.Validate(strings.TrimSpace(details.HospitalCity), validation.Required.Error("hospital city is required")),
		FieldHospitalPincode: validation.Validate(strings.TrimSpace(details.HospitalPincode),
			validation.Required.Error("hospital pincode is required"),
			validation.Match(pincodePattern).Error(fmt.Sprintf("hospital pincode must be %d digits", g.pincodeLength)),
		),
		FieldDiagnosis: validation.Validate(strings.TrimSpace(details.Diagnosis), validation.Required.Error("diagnosis is required")),
		FieldClaimAmount: validation.Validate(details.ClaimAmount,
			validation.By(func(value any) error {
				amount, _ := value.(float64)
				if amount <= 0 {
					return errors.New("claim amount must be greater than zero")
				}
				return nil
			}),
		),
		FieldFileURL: validation.Validate(draft.Document,
			validation.When(draft.ClaimType == ClaimTypeReimbursement,
				validation.By(func(value any) error {
					document, _ := value.(DocumentHandle)
					if document.Attached() {
						return nil
					}
					if document.Kind == DocumentRejected && document.Reason != "" {
						return errors.New("document upload was rejected: " + document.Reason)
					}
					return errors.New("a supporting document is required for reimbursement claims")
				}),
			),
		),
		FieldMobile: validation.Validate(strings.TrimSpace(draft.Contact.Mobile),
			validation.Match(mobilePattern).Error("mobile must be 10 digits"),
		),
		FieldEmail: validation.Validate(strings.TrimSpace(draft.Contact.Email),
			validation.Match(emailPattern).Error("email is not valid"),
		),
	}
	return errs
}

func (g *ValidationGate) location() *time.Location {
	if g.Location == nil {
		return time.UTC
	}
	return g.Location
}

func (g *ValidationGate) now() time.Time {
	if g.Now == nil {
		return time.Now().UTC()
	}
	return g.Now()
}

func toValidationResult(errs validation.Errors) ValidationResult {
	fieldErrors := make([]FieldError, 0, len(errs))
	for field, err := range errs {
		if err == nil {
			continue
		}
		fieldErrors = append(fieldErrors, FieldError{Field: field, Message: err.Error()})
	}
	sort.Slice(fieldErrors, func(i, j int) bool {
		return fieldErrors[i].Field < fieldErrors[j].Field
	})
	return ValidationResult{
		Valid:       len(fieldErrors) == 0,
		FieldErrors: fieldErrors,
	}
}

// truncateDay keeps the calendar date of value as written in its own zone.
// Dates of stay are date-only values, so they are never shifted between zones.
func truncateDay(value time.Time) time.Time {
	year, month, day := value.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
