package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "aegis:authz"

// ClosureCache memoizes descendant closures in Redis, keyed by the graph
// version of the snapshot each closure was built from. Every item/edge
// mutation bumps the store version, so entries built against an older
// snapshot simply stop matching; a reader holding a pre-mutation snapshot
// writes under the old version and can never poison the current one.
// Concurrent rebuilds of the same closure are collapsed through singleflight.
//
// The cache is strictly an optimization: on any Redis failure it falls back
// to building the closure directly.
type ClosureCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewClosureCache wraps a Redis client. ttl bounds how long a versioned
// closure entry may linger after its version stops being current.
func NewClosureCache(client *redis.Client, ttl time.Duration) *ClosureCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ClosureCache{client: client, ttl: ttl}
}

// Descendants returns the cached closure for name at the given graph version,
// building and storing it on a miss. version must come from the same snapshot
// the build closure reads, never from a separate lookup.
func (c *ClosureCache) Descendants(ctx context.Context, version int64, name string, build func() (map[string]struct{}, error)) (map[string]struct{}, error) {
	key := fmt.Sprintf("%s:closure:v%d:%s", cacheKeyPrefix, version, name)

	raw, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var names []string
		if jsonErr := json.Unmarshal([]byte(raw), &names); jsonErr == nil {
			recordClosureHit()
			set := make(map[string]struct{}, len(names))
			for _, n := range names {
				set[n] = struct{}{}
			}
			return set, nil
		}
		// Corrupt entry: fall through and rebuild.
	} else if !errors.Is(err, redis.Nil) {
		return build()
	}
	recordClosureMiss()

	resultChan := c.group.DoChan(key, func() (interface{}, error) {
		start := time.Now()
		set, err := build()
		if err != nil {
			return nil, err
		}
		observeClosureBuild(time.Since(start))
		if data, jsonErr := json.Marshal(sortedNames(set)); jsonErr == nil {
			_ = c.client.Set(ctx, key, data, c.ttl).Err()
		}
		return set, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]struct{}), nil
	}
}
