package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ai_selector/internal/models"
)

const secondsPerDay = 24 * 60 * 60

// RedisUsageStore keeps one hash per usage key and a per-tenant sorted set of
// those hashes scored by day. Increments run inside MULTI/EXEC using HINCRBY and
// HINCRBYFLOAT, so concurrent writers never lose updates.
type RedisUsageStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisUsageStore creates a usage store on top of an existing client.
// prefix namespaces every key (default "usage").
func NewRedisUsageStore(client redis.UniversalClient, prefix string) *RedisUsageStore {
	if prefix == "" {
		prefix = "usage"
	}
	return &RedisUsageStore{client: client, prefix: prefix, now: time.Now}
}

// keySegment escapes caller-supplied values so they never contain ":" and
// every key keeps a fixed number of segments.
func keySegment(v string) string {
	return url.QueryEscape(v)
}

func (s *RedisUsageStore) recordKey(k models.UsageKey) string {
	return fmt.Sprintf("%s:rec:%s:%s:%s:%s:%s",
		s.prefix,
		keySegment(k.TenantID),
		models.UsageDate(k.Date).Format(models.UsageDateLayout),
		k.Provider,
		k.Capability,
		keySegment(k.Model),
	)
}

func (s *RedisUsageStore) indexKey(tenantID string) string {
	return fmt.Sprintf("%s:idx:%s", s.prefix, keySegment(tenantID))
}

func dayScore(t time.Time) float64 {
	return float64(models.UsageDate(t).Unix() / secondsPerDay)
}

func (s *RedisUsageStore) Increment(ctx context.Context, delta models.UsageDelta) error {
	key := s.recordKey(delta.Key)
	date := models.UsageDate(delta.Key.Date)
	now := s.now().UTC().Format(time.RFC3339Nano)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "units", delta.Units)
		pipe.HIncrByFloat(ctx, key, "cost", delta.Cost)
		pipe.HIncrBy(ctx, key, "requests", 1)
		pipe.HSetNX(ctx, key, "created_at", now)
		pipe.HSet(ctx, key,
			"tenant_id", delta.Key.TenantID,
			"provider", string(delta.Key.Provider),
			"model", delta.Key.Model,
			"capability", string(delta.Key.Capability),
			"date", date.Format(models.UsageDateLayout),
			"updated_at", now,
		)
		pipe.ZAdd(ctx, s.indexKey(delta.Key.TenantID), redis.Z{Score: dayScore(date), Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}

func (s *RedisUsageStore) Query(ctx context.Context, q models.UsageQuery) ([]models.UsageRecord, error) {
	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !q.Since.IsZero() {
		rng.Min = strconv.FormatFloat(dayScore(q.Since), 'f', 0, 64)
	}
	if !q.Until.IsZero() {
		rng.Max = "(" + strconv.FormatFloat(dayScore(q.Until), 'f', 0, 64)
	}

	keys, err := s.client.ZRangeByScore(ctx, s.indexKey(q.TenantID), rng).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query usage index: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HGetAll(ctx, k)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load usage records: %w", err)
	}

	out := make([]models.UsageRecord, 0, len(keys))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := parseUsageHash(fields)
		if err != nil {
			return nil, fmt.Errorf("malformed usage record %s: %w", keys[i], err)
		}
		if q.Provider != "" && rec.Provider != q.Provider {
			continue
		}
		out = append(out, rec)
	}

	sortRecords(out)
	return out, nil
}

func parseUsageHash(f map[string]string) (models.UsageRecord, error) {
	rec := models.UsageRecord{
		TenantID:   f["tenant_id"],
		Provider:   models.ProviderID(f["provider"]),
		Model:      f["model"],
		Capability: models.Capability(f["capability"]),
	}

	var err error
	if rec.Date, err = time.Parse(models.UsageDateLayout, f["date"]); err != nil {
		return rec, err
	}
	if rec.Units, err = strconv.ParseInt(f["units"], 10, 64); err != nil {
		return rec, err
	}
	if rec.Cost, err = strconv.ParseFloat(f["cost"], 64); err != nil {
		return rec, err
	}
	if rec.Requests, err = strconv.ParseInt(f["requests"], 10, 64); err != nil {
		return rec, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, f["created_at"])
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, f["updated_at"])
	return rec, nil
}

func (s *RedisUsageStore) SumCost(ctx context.Context, tenantID string, since, until time.Time) (float64, error) {
	recs, err := s.Query(ctx, models.UsageQuery{TenantID: tenantID, Since: since, Until: until})
	if err != nil {
		return 0, err
	}
	var total float64
	for _, r := range recs {
		total += r.Cost
	}
	return total, nil
}

func (s *RedisUsageStore) CountRequests(ctx context.Context, tenantID string, provider models.ProviderID, since time.Time) (int64, error) {
	recs, err := s.Query(ctx, models.UsageQuery{TenantID: tenantID, Provider: provider, Since: since})
	if err != nil {
		return 0, err
	}
	var total int64
	for _, r := range recs {
		total += r.Requests
	}
	return total, nil
}

// RedisGenerationLog appends generation records as JSON to a per-tenant list.
type RedisGenerationLog struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisGenerationLog creates a generation log (key prefix default "generations").
func NewRedisGenerationLog(client redis.UniversalClient, prefix string) *RedisGenerationLog {
	if prefix == "" {
		prefix = "generations"
	}
	return &RedisGenerationLog{client: client, prefix: prefix}
}

func (l *RedisGenerationLog) key(tenantID string) string {
	return fmt.Sprintf("%s:gen:%s", l.prefix, keySegment(tenantID))
}

func (l *RedisGenerationLog) Append(ctx context.Context, rec *models.GenerationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal generation record: %w", err)
	}
	if err := l.client.RPush(ctx, l.key(rec.TenantID), data).Err(); err != nil {
		return fmt.Errorf("failed to append generation record: %w", err)
	}
	return nil
}

// Recent returns up to n of the tenant's most recent records, oldest first.
func (l *RedisGenerationLog) Recent(ctx context.Context, tenantID string, n int64) ([]models.GenerationRecord, error) {
	raw, err := l.client.LRange(ctx, l.key(tenantID), -n, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read generation log: %w", err)
	}
	out := make([]models.GenerationRecord, 0, len(raw))
	for _, item := range raw {
		var rec models.GenerationRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("malformed generation record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
