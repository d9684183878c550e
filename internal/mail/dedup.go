package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// dedupTTL is how long a seen envelope id is remembered. Transports
	// retry webhook deliveries for at most a day.
	dedupTTL = 24 * time.Hour

	dedupKeyPrefix = "infodesk:seen:"
)

// Dedup tracks which inbound envelope ids have already been dispatched, so
// a re-delivered ingress webhook does not enqueue the same message twice.
// A nil Dedup lets everything through.
type Dedup struct {
	rdb *redis.Client
}

// NewDedup creates a dedup filter backed by Redis.
func NewDedup(rdb *redis.Client) *Dedup {
	return &Dedup{rdb: rdb}
}

// IsNew returns true if the envelope id has NOT been seen before. If true,
// the id is marked as seen atomically (SETNX).
func (d *Dedup) IsNew(ctx context.Context, envelopeID string) (bool, error) {
	if d == nil || d.rdb == nil {
		return true, nil
	}
	key := dedupKeyPrefix + envelopeID
	set, err := d.rdb.SetNX(ctx, key, 1, dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}
