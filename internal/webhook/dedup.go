package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers delivered event ids. Dedup is a fast-path optimization
// only: every reconciler path is idempotent, so missing or failing dedup
// degrades to harmless reprocessing.
type Deduper interface {
	// Seen reports whether the event id was already fully processed.
	Seen(ctx context.Context, eventID string) bool
	// Mark records the event id after successful processing.
	Mark(ctx context.Context, eventID string)
}

// RedisDeduper keeps processed event ids in redis with a TTL covering the
// provider's redelivery horizon.
type RedisDeduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisDeduper builds a deduper on rdb.
func NewRedisDeduper(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl, logger: logger}
}

func dedupKey(eventID string) string {
	return "webhook:delivered:" + eventID
}

func (d *RedisDeduper) Seen(ctx context.Context, eventID string) bool {
	n, err := d.rdb.Exists(ctx, dedupKey(eventID)).Result()
	if err != nil {
		// Treat a dedup outage as "not seen"; reprocessing is safe.
		d.logger.Warn("dedup lookup failed", "event_id", eventID, "error", err)
		return false
	}
	return n > 0
}

func (d *RedisDeduper) Mark(ctx context.Context, eventID string) {
	if err := d.rdb.Set(ctx, dedupKey(eventID), 1, d.ttl).Err(); err != nil {
		d.logger.Warn("dedup mark failed", "event_id", eventID, "error", err)
	}
}
