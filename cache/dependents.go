package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-claimintake/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type CachedPolicyDependents struct {
	base  core.PolicyDependents
	cache repositorycache.CacheService
}

func NewCachedPolicyDependents(base core.PolicyDependents, cacheService repositorycache.CacheService) (*CachedPolicyDependents, error) {
	if base == nil {
		return nil, fmt.Errorf("cache: base policy dependents source is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("cache: policy dependents cache service is required")
	}
	return &CachedPolicyDependents{base: base, cache: cacheService}, nil
}

// PolicyDependentsCacheKey returns go-claimintake::policy_dependents::v1::<policy_id>.
func PolicyDependentsCacheKey(policyID string) (string, error) {
	return cacheKey("policy_dependents", policyID)
}

func (c *CachedPolicyDependents) ListDependents(ctx context.Context, policyID string) ([]core.PatientRef, error) {
	if c == nil || c.base == nil || c.cache == nil {
		return nil, fmt.Errorf("cache: cached policy dependents is not configured")
	}
	policyID = strings.TrimSpace(policyID)
	key, err := PolicyDependentsCacheKey(policyID)
	if err != nil {
		return nil, err
	}
	dependents, err := repositorycache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) ([]core.PatientRef, error) {
		fetched, fetchErr := c.base.ListDependents(ctx, policyID)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return append([]core.PatientRef(nil), fetched...), nil
	})
	if err != nil {
		return nil, err
	}
	return append([]core.PatientRef(nil), dependents...), nil
}

// Invalidate drops the cached dependents of a policy, e.g. after an
// endorsement adds a member.
func (c *CachedPolicyDependents) Invalidate(ctx context.Context, policyID string) error {
	if c == nil || c.cache == nil {
		return fmt.Errorf("cache: cached policy dependents is not configured")
	}
	key, err := PolicyDependentsCacheKey(policyID)
	if err != nil {
		return err
	}
	return c.cache.Delete(ctx, key)
}

var _ core.PolicyDependents = (*CachedPolicyDependents)(nil)
