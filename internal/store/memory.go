package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AngelCh415/funnel-insights/internal/analytics"
	"github.com/AngelCh415/funnel-insights/internal/models"
)

var ErrUnattributable = errors.New("lead has no id or creation time")

// LeadSource hands out raw leads created in [from, to). A zero bound is open.
type LeadSource interface {
	Leads(ctx context.Context, from, to time.Time) ([]models.RawLead, error)
}

type storedLead struct {
	created time.Time
	raw     models.RawLead
}

type MemoryStore struct {
	mu    sync.RWMutex
	leads map[string]storedLead
	seen  map[string]struct{} // idempotencia por versión de lead
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads: make(map[string]storedLead),
		seen:  make(map[string]struct{}),
	}
}

func (s *MemoryStore) MarkSeen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Forget drops key so the next MarkSeen for it succeeds again.
func (s *MemoryStore) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, key)
}

// Upsert stores l under its id, replacing an older version of the same lead.
func (s *MemoryStore) Upsert(l models.RawLead) error {
	id := strings.TrimSpace(l.ID)
	created := analytics.ParseTimestamp(l.CreatedAt)
	if id == "" || created == nil {
		return ErrUnattributable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[id] = storedLead{created: *created, raw: l}
	return nil
}

// UpsertLeads stores every attributable lead and skips the rest.
func (s *MemoryStore) UpsertLeads(_ context.Context, leads []models.RawLead) error {
	for _, l := range leads {
		if err := s.Upsert(l); err != nil && !errors.Is(err, ErrUnattributable) {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.leads)
}

func (s *MemoryStore) All() []models.RawLead {
	return s.query(time.Time{}, time.Time{})
}

func (s *MemoryStore) Leads(_ context.Context, from, to time.Time) ([]models.RawLead, error) {
	return s.query(from, to), nil
}

func (s *MemoryStore) query(from, to time.Time) []models.RawLead {
	s.mu.RLock()
	hits := make([]storedLead, 0, len(s.leads))
	for _, v := range s.leads {
		if !from.IsZero() && v.created.Before(from) {
			continue
		}
		if !to.IsZero() && !v.created.Before(to) {
			continue
		}
		hits = append(hits, v)
	}
	s.mu.RUnlock()

	// orden determinista
	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].created.Equal(hits[j].created) {
			return hits[i].created.Before(hits[j].created)
		}
		return hits[i].raw.ID < hits[j].raw.ID
	})
	out := make([]models.RawLead, len(hits))
	for i, h := range hits {
		out[i] = h.raw
	}
	return out
}
