// Package cache puts go-repository-cache in front of the postal lookup and
// policy dependents collaborators.
package cache

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const keyPrefix = "go-claimintake"

// NewCacheService builds a cache service with the given entry TTL.
func NewCacheService(ttl time.Duration) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		return nil, fmt.Errorf("cache: new cache service: %w", err)
	}
	return service, nil
}

func cacheKey(kind string, segment string) (string, error) {
	trimmed := strings.TrimSpace(segment)
	if trimmed == "" {
		return "", fmt.Errorf("cache: %s key segment is required", kind)
	}
	return strings.Join([]string{keyPrefix, kind, "v1", url.PathEscape(trimmed)}, "::"), nil
}
