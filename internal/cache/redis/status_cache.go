package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predictledger/internal/codec"
	"github.com/alanyoungcy/predictledger/internal/domain"
)

const statusTTL = 10 * time.Minute

// StatusCache implements domain.StatusCache. The blob is the source of
// truth; the decoded status is rebuilt from it on read.
//
// Key schema:
//
//	status:{marketID} - hash with fields "blob" and "meta" (JSON)
type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ domain.StatusCache = (*StatusCache)(nil)

// NewStatusCache creates a StatusCache backed by the given Client.
func NewStatusCache(c *Client) *StatusCache {
	return &StatusCache{rdb: c.Underlying(), ttl: statusTTL}
}

func statusKey(id string) string { return "status:" + id }

// statusMeta is the part of a StatusVersion not carried by the blob.
type statusMeta struct {
	Version      int64                 `json:"version"`
	Kind         domain.TransitionKind `json:"kind"`
	Payment      int64                 `json:"payment"`
	TransitionID string                `json:"transition_id"`
	CreatedAt    time.Time             `json:"created_at"`
}

// Set caches v unless a newer version is already cached.
func (sc *StatusCache) Set(ctx context.Context, v domain.StatusVersion) error {
	if cur, err := sc.Get(ctx, v.MarketID); err == nil && cur.Version > v.Version {
		return nil
	}
	meta, err := json.Marshal(statusMeta{
		Version:      v.Version,
		Kind:         v.Kind,
		Payment:      v.Payment,
		TransitionID: v.TransitionID,
		CreatedAt:    v.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal status %s: %w", v.MarketID, err)
	}

	key := statusKey(v.MarketID)
	pipe := sc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "blob", v.Blob, "meta", meta)
	pipe.Expire(ctx, key, sc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set status %s: %w", v.MarketID, err)
	}
	return nil
}

// Get returns the cached status or domain.ErrNotFound.
func (sc *StatusCache) Get(ctx context.Context, marketID string) (domain.StatusVersion, error) {
	vals, err := sc.rdb.HMGet(ctx, statusKey(marketID), "blob", "meta").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.StatusVersion{}, domain.ErrNotFound
		}
		return domain.StatusVersion{}, fmt.Errorf("redis: get status %s: %w", marketID, err)
	}
	blob, ok1 := vals[0].(string)
	metaRaw, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return domain.StatusVersion{}, domain.ErrNotFound
	}
	return decodeCached(marketID, []byte(blob), []byte(metaRaw))
}

func decodeCached(marketID string, blob, metaRaw []byte) (domain.StatusVersion, error) {
	var meta statusMeta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return domain.StatusVersion{}, fmt.Errorf("redis: unmarshal status meta %s: %w", marketID, err)
	}
	status, err := codec.DecodeStatus(blob)
	if err != nil {
		return domain.StatusVersion{}, fmt.Errorf("redis: decode status %s: %w", marketID, err)
	}
	return domain.StatusVersion{
		MarketID:     marketID,
		Version:      meta.Version,
		Status:       status,
		Blob:         blob,
		Kind:         meta.Kind,
		Payment:      meta.Payment,
		TransitionID: meta.TransitionID,
		CreatedAt:    meta.CreatedAt,
	}, nil
}

// Invalidate drops the cached status.
func (sc *StatusCache) Invalidate(ctx context.Context, marketID string) error {
	if err := sc.rdb.Del(ctx, statusKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate status %s: %w", marketID, err)
	}
	return nil
}
