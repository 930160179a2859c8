/**
 * Redis Job Status Tracker
 *
 * Mirrors each job's lifecycle into Redis so the upload front end can poll
 * progress and stream completion events without touching PostgreSQL:
 *
 *   <queue>:processing   SET of job IDs currently being processed
 *   <queue>:completed    SET of finished job IDs
 *   <queue>:failed       SET of failed job IDs
 *   <queue>:results      HASH jobID -> result JSON
 *   <queue>:errors       HASH jobID -> error JSON
 *   <queue>:events       PUBSUB channel for job:<status> events
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusTracker records job lifecycle state in Redis
type StatusTracker struct {
	client    *redis.Client
	keyPrefix string
}

// NewStatusTracker creates a tracker over the given Redis URL. keyPrefix
// namespaces all keys, e.g. "figprocess:jobs".
func NewStatusTracker(redisURL string, keyPrefix string) (*StatusTracker, error) {
	if keyPrefix == "" {
		keyPrefix = "figprocess:jobs"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &StatusTracker{
		client:    client,
		keyPrefix: keyPrefix,
	}, nil
}

// Close releases the Redis connection
func (t *StatusTracker) Close() error {
	return t.client.Close()
}

func (t *StatusTracker) key(suffix string) string {
	return fmt.Sprintf("%s:%s", t.keyPrefix, suffix)
}

// MarkProcessing records a job as in flight
func (t *StatusTracker) MarkProcessing(ctx context.Context, jobID string) {
	if err := t.client.SAdd(ctx, t.key("processing"), jobID).Err(); err != nil {
		log.Printf("[Job %s] Warning: failed to mark processing in Redis: %v", jobID, err)
	}
	t.publishEvent(ctx, jobID, "processing")
}

// MarkCompleted records a job as finished and stores its result
func (t *StatusTracker) MarkCompleted(ctx context.Context, jobID string, result interface{}) {
	t.client.SRem(ctx, t.key("processing"), jobID)
	if err := t.client.SAdd(ctx, t.key("completed"), jobID).Err(); err != nil {
		log.Printf("[Job %s] Warning: failed to mark completed in Redis: %v", jobID, err)
	}
	if result != nil {
		if data, err := json.Marshal(result); err == nil {
			t.client.HSet(ctx, t.key("results"), jobID, data)
		}
	}
	t.publishEvent(ctx, jobID, "completed")
}

// MarkFailed records a job as failed and stores the error details
func (t *StatusTracker) MarkFailed(ctx context.Context, jobID string, errorDetails map[string]interface{}) {
	t.client.SRem(ctx, t.key("processing"), jobID)
	if err := t.client.SAdd(ctx, t.key("failed"), jobID).Err(); err != nil {
		log.Printf("[Job %s] Warning: failed to mark failed in Redis: %v", jobID, err)
	}
	if errorDetails != nil {
		if data, err := json.Marshal(errorDetails); err == nil {
			t.client.HSet(ctx, t.key("errors"), jobID, data)
		}
	}
	t.publishEvent(ctx, jobID, "failed")
}

// publishEvent emits a job lifecycle event for WebSocket streaming
func (t *StatusTracker) publishEvent(ctx context.Context, jobID string, status string) {
	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := t.client.Publish(ctx, t.key("events"), data).Err(); err != nil {
		log.Printf("[Job %s] Warning: failed to publish %s event: %v", jobID, status, err)
	}
}

// Stats returns current queue counters
func (t *StatusTracker) Stats(ctx context.Context) (map[string]int64, error) {
	processing, err := t.client.SCard(ctx, t.key("processing")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	completed, _ := t.client.SCard(ctx, t.key("completed")).Result()
	failed, _ := t.client.SCard(ctx, t.key("failed")).Result()

	return map[string]int64{
		"processing": processing,
		"completed":  completed,
		"failed":     failed,
	}, nil
}
