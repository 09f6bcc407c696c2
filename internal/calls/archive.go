package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	archiveKeyPrefix = "call_archive:"
	archiveRecentKey = "call_archive:recent"
)

// RecentCallStore keeps just-ended calls in Redis so the dashboard can show
// them instantly after the live session is torn down, without a database
// round trip. Entries expire after the configured retention.
type RecentCallStore struct {
	redis     *redis.Client
	tracer    trace.Tracer
	retention time.Duration
	maxRecent int64
}

func NewRecentCallStore(redisClient *redis.Client, retention time.Duration) *RecentCallStore {
	if redisClient == nil {
		return nil
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RecentCallStore{
		redis:     redisClient,
		tracer:    otel.Tracer("callops.internal.calls.archive"),
		retention: retention,
		maxRecent: 100,
	}
}

// Put stores one ended call. Nil-receiver safe so wiring without Redis is a
// no-op, same as the metrics.
func (s *RecentCallStore) Put(ctx context.Context, detail *CallDetail) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if detail == nil || detail.ID == "" {
		return errors.New("calls: archive entry requires a call id")
	}

	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("calls: marshal archive entry: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "calls.archive.put")
	defer span.End()

	key := archiveKey(detail.ID)
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, key, data, s.retention)
	pipe.LRem(ctx, archiveRecentKey, 0, detail.ID)
	pipe.LPush(ctx, archiveRecentKey, detail.ID)
	pipe.Expire(ctx, archiveRecentKey, s.retention)
	if s.maxRecent > 0 {
		pipe.LTrim(ctx, archiveRecentKey, 0, s.maxRecent-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("calls: archive put: %w", err)
	}
	return nil
}

// Get returns one archived call, or (nil, nil) when it is absent or expired.
func (s *RecentCallStore) Get(ctx context.Context, callID string) (*CallDetail, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if callID == "" {
		return nil, errors.New("calls: archive lookup requires a call id")
	}

	ctx, span := s.tracer.Start(ctx, "calls.archive.get")
	defer span.End()

	raw, err := s.redis.Get(ctx, archiveKey(callID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("calls: archive get: %w", err)
	}

	var detail CallDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("calls: decode archive entry: %w", err)
	}
	return &detail, nil
}

// Recent lists the most recently ended calls, newest first. Expired entries
// are skipped.
func (s *RecentCallStore) Recent(ctx context.Context, limit int64) ([]*CallDetail, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 || limit > s.maxRecent {
		limit = s.maxRecent
	}

	ctx, span := s.tracer.Start(ctx, "calls.archive.recent")
	defer span.End()

	ids, err := s.redis.LRange(ctx, archiveRecentKey, 0, limit-1).Result()
	if err != nil {
		if err == redis.Nil {
			return []*CallDetail{}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("calls: archive recent: %w", err)
	}

	out := make([]*CallDetail, 0, len(ids))
	for _, id := range ids {
		detail, err := s.Get(ctx, id)
		if err != nil {
			span.RecordError(err)
			continue
		}
		if detail != nil {
			out = append(out, detail)
		}
	}
	return out, nil
}

func archiveKey(callID string) string {
	return archiveKeyPrefix + callID
}
