package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"ai_selector/internal/models"
)

type memoryKey struct {
	tenant     string
	provider   models.ProviderID
	model      string
	capability models.Capability
	date       string
}

func keyOf(k models.UsageKey) memoryKey {
	return memoryKey{
		tenant:     k.TenantID,
		provider:   k.Provider,
		model:      k.Model,
		capability: k.Capability,
		date:       models.UsageDate(k.Date).Format(models.UsageDateLayout),
	}
}

// MemoryStore implements UsageStore and GenerationLog in process memory.
// Data is lost on restart; intended for single-process deployments and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	usage       map[memoryKey]*models.UsageRecord
	generations []models.GenerationRecord
	now         func() time.Time
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usage: make(map[memoryKey]*models.UsageRecord),
		now:   time.Now,
	}
}

func (s *MemoryStore) Increment(ctx context.Context, delta models.UsageDelta) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(delta.Key)
	now := s.now().UTC()
	rec, ok := s.usage[k]
	if !ok {
		rec = &models.UsageRecord{
			TenantID:   delta.Key.TenantID,
			Provider:   delta.Key.Provider,
			Model:      delta.Key.Model,
			Capability: delta.Key.Capability,
			Date:       models.UsageDate(delta.Key.Date),
			CreatedAt:  now,
		}
		s.usage[k] = rec
	}
	rec.Units += delta.Units
	rec.Cost += delta.Cost
	rec.Requests++
	rec.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, q models.UsageQuery) ([]models.UsageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.UsageRecord
	for _, rec := range s.usage {
		if rec.TenantID != q.TenantID {
			continue
		}
		if q.Provider != "" && rec.Provider != q.Provider {
			continue
		}
		if !inRange(rec.Date, q.Since, q.Until) {
			continue
		}
		out = append(out, *rec)
	}

	sortRecords(out)
	return out, nil
}

func (s *MemoryStore) SumCost(ctx context.Context, tenantID string, since, until time.Time) (float64, error) {
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

func (s *MemoryStore) CountRequests(ctx context.Context, tenantID string, provider models.ProviderID, since time.Time) (int64, error) {
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

func (s *MemoryStore) Append(ctx context.Context, rec *models.GenerationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations = append(s.generations, *rec)
	return nil
}

// Generations returns a copy of the generation log for a tenant, oldest first.
func (s *MemoryStore) Generations(tenantID string) []models.GenerationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.GenerationRecord
	for _, g := range s.generations {
		if g.TenantID == tenantID {
			out = append(out, g)
		}
	}
	return out
}

// sortRecords orders records by date, then provider, capability and model, so
// callers get deterministic output regardless of backend.
func sortRecords(recs []models.UsageRecord) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		if a.Capability != b.Capability {
			return a.Capability < b.Capability
		}
		return a.Model < b.Model
	})
}
