package core

import (
	"context"
	"fmt"
	"strings"
)

type DependentDirectory struct {
	source PolicyDependents
}

func NewDependentDirectory(source PolicyDependents) *DependentDirectory {
	return &DependentDirectory{source: source}
}

// Eligible returns the covered dependents of policyID. Any collaborator
// failure is reported as a retryable directory-unavailable error.
func (d *DependentDirectory) Eligible(ctx context.Context, policyID string) ([]PatientRef, error) {
	policyID = strings.TrimSpace(policyID)
	if policyID == "" {
		return nil, fmt.Errorf("core: policy id is required")
	}
	if d == nil || d.source == nil {
		return nil, newDirectoryUnavailableError(policyID, fmt.Errorf("core: policy dependents source is not configured"))
	}
	dependents, err := d.source.ListDependents(ctx, policyID)
	if err != nil {
		return nil, newDirectoryUnavailableError(policyID, err)
	}
	out := make([]PatientRef, 0, len(dependents))
	seen := map[string]struct{}{}
	for _, dependent := range dependents {
		uhid := strings.TrimSpace(dependent.UHID)
		if uhid == "" {
			continue
		}
		if _, ok := seen[uhid]; ok {
			continue
		}
		seen[uhid] = struct{}{}
		dependent.UHID = uhid
		out = append(out, dependent)
	}
	return out, nil
}
