package transport

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-claimintake/core"
)

type dependentsRequestBody struct {
	PolicyID string `json:"policy_id"`
}

type dependentBody struct {
	UHID        string `json:"uhid"`
	InsuredName string `json:"insured_name"`
	Relation    string `json:"relation"`
	DOB         string `json:"dob"`
	Gender      string `json:"gender"`
}

type dependentsEnvelope struct {
	Dependents []dependentBody `json:"dependents"`
	Data       []dependentBody `json:"data"`
}

// PolicyDependentsClient lists the members covered by a policy. Responses
// may be a bare array or wrapped under "dependents" or "data".
type PolicyDependentsClient struct {
	endpoint endpoint
}

func NewPolicyDependentsClient(adapter Adapter, config EndpointConfig) *PolicyDependentsClient {
	return &PolicyDependentsClient{endpoint: newEndpoint("policy_dependents", adapter, config)}
}

func (c *PolicyDependentsClient) ListDependents(ctx context.Context, policyID string) ([]core.PatientRef, error) {
	if c == nil {
		return nil, fmt.Errorf("transport: policy dependents client is nil")
	}
	res, err := c.endpoint.postJSON(ctx, c.endpoint.config.URL, dependentsRequestBody{PolicyID: strings.TrimSpace(policyID)}, "")
	if err != nil {
		return nil, err
	}
	if !isSuccess(res.StatusCode) {
		return nil, statusError(c.endpoint.name, res)
	}

	var items []dependentBody
	if bytes.HasPrefix(bytes.TrimSpace(res.Body), []byte("[")) {
		if err := c.endpoint.decode(res, &items); err != nil {
			return nil, err
		}
	} else {
		var envelope dependentsEnvelope
		if err := c.endpoint.decode(res, &envelope); err != nil {
			return nil, err
		}
		items = envelope.Dependents
		if len(items) == 0 {
			items = envelope.Data
		}
	}

	out := make([]core.PatientRef, 0, len(items))
	for _, item := range items {
		uhid := strings.TrimSpace(item.UHID)
		if uhid == "" {
			continue
		}
		out = append(out, core.PatientRef{
			UHID:        uhid,
			InsuredName: strings.TrimSpace(item.InsuredName),
			Relation:    strings.TrimSpace(item.Relation),
			DOB:         strings.TrimSpace(item.DOB),
			Gender:      strings.TrimSpace(item.Gender),
		})
	}
	return out, nil
}

var _ core.PolicyDependents = (*PolicyDependentsClient)(nil)
