package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/aegis-rbac/aegis/internal/authz"
	"github.com/aegis-rbac/aegis/internal/observability"
)

const defaultWarmupLimit = 32

// CacheWarmupJob pre-builds descendant closures for the most-assigned
// items so the first access checks after an invalidation hit warm cache.
type CacheWarmupJob struct {
	Manager *authz.Manager
	Store   authz.Store
	Logger  *slog.Logger
	Metrics *observability.Metrics
	clock   func() time.Time
}

// NewCacheWarmupJob wires dependencies for the warmup handler.
func NewCacheWarmupJob(manager *authz.Manager, store authz.Store, logger *slog.Logger, metrics *observability.Metrics) *CacheWarmupJob {
	return &CacheWarmupJob{
		Manager: manager,
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes cache warmup tasks.
func (j *CacheWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Manager == nil || j.Store == nil {
		return errors.New("cache warmup: handler not configured")
	}
	var payload CacheWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = defaultWarmupLimit
	}

	logger := j.logger().With(slog.Int("limit", limit))
	started := j.now()
	logger.Info("starting closure warmup")

	names, err := j.hotItems(ctx, limit)
	if err != nil {
		j.Metrics.RecordJob(TaskCacheWarmup, "error")
		logger.Error("load assignment counts", slog.Any("error", err))
		return err
	}
	if len(names) == 0 {
		j.Metrics.RecordJob(TaskCacheWarmup, "ok")
		logger.Info("no assigned items to warm")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, name := range names {
		g.Go(func() error {
			// Descendants goes through the closure cache, so this both
			// builds and stores the entry for the current graph version.
			_, err := j.Manager.Descendants(gctx, name)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		j.Metrics.RecordJob(TaskCacheWarmup, "error")
		logger.Error("warm closures", slog.Any("error", err))
		return err
	}

	j.Metrics.RecordJob(TaskCacheWarmup, "ok")
	logger.Info("completed closure warmup",
		slog.Int("items", len(names)),
		slog.Duration("duration", time.Since(started)))
	return nil
}

// hotItems returns up to limit item names ordered by assignment count.
func (j *CacheWarmupJob) hotItems(ctx context.Context, limit int) ([]string, error) {
	assignments, err := j.Store.ListAssignments(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, a := range assignments {
		counts[a.ItemName]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, k int) bool {
		if counts[names[i]] != counts[names[k]] {
			return counts[names[i]] > counts[names[k]]
		}
		return names[i] < names[k]
	})
	if len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (j *CacheWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCacheWarmup))
	}
	return slog.Default().With(slog.String("job", TaskCacheWarmup))
}

func (j *CacheWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
