package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntegrityScan is the task type for the periodic graph integrity scan.
	TaskIntegrityScan = "authz:integrity_scan"
	// TaskCacheWarmup is the task type for pre-building hot descendant closures.
	TaskCacheWarmup = "authz:cache_warmup"
)

// IntegrityScanPayload parameterises an integrity scan run.
type IntegrityScanPayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// NewIntegrityScanTask constructs an Asynq task.
func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityScan, data), nil
}

// CacheWarmupPayload parameterises a closure warmup run.
type CacheWarmupPayload struct {
	// Limit caps how many of the most-assigned items get warmed. Zero
	// falls back to the handler default.
	Limit int `json:"limit,omitempty"`
}

// NewCacheWarmupTask constructs an Asynq task.
func NewCacheWarmupTask(payload CacheWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheWarmup, data), nil
}
