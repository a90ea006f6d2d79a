package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-claimintake/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type CachedPostalLookup struct {
	base  core.PostalLookup
	cache repositorycache.CacheService
}

func NewCachedPostalLookup(base core.PostalLookup, cacheService repositorycache.CacheService) (*CachedPostalLookup, error) {
	if base == nil {
		return nil, fmt.Errorf("cache: base postal lookup is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("cache: postal lookup cache service is required")
	}
	return &CachedPostalLookup{base: base, cache: cacheService}, nil
}

// PostalLookupCacheKey returns go-claimintake::postal_lookup::v1::<pincode>.
func PostalLookupCacheKey(pincode string) (string, error) {
	return cacheKey("postal_lookup", pincode)
}

func (c *CachedPostalLookup) LookupPincode(ctx context.Context, pincode string) (core.PostalAddress, error) {
	if c == nil || c.base == nil || c.cache == nil {
		return core.PostalAddress{}, fmt.Errorf("cache: cached postal lookup is not configured")
	}
	pincode = strings.TrimSpace(pincode)
	key, err := PostalLookupCacheKey(pincode)
	if err != nil {
		return core.PostalAddress{}, err
	}
	return repositorycache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (core.PostalAddress, error) {
		return c.base.LookupPincode(ctx, pincode)
	})
}

var _ core.PostalLookup = (*CachedPostalLookup)(nil)
