// Package memory is a process-local calculation store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ecocalc/internal/core"
	"ecocalc/internal/storage"
)

type Store struct {
	mu       sync.RWMutex
	items    []core.CalculationRecord // insertion order
	byID     map[string]int
	summary  core.UsageSummary
	exported map[string]time.Time
}

func New() *Store {
	return &Store{
		byID:     map[string]int{},
		exported: map[string]time.Time{},
	}
}

var _ storage.Repository = (*Store)(nil)

// SaveCalculation appends the record and updates the summary under one lock.
func (s *Store) SaveCalculation(_ context.Context, rec core.CalculationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byID[rec.ID]; dup {
		return fmt.Errorf("save calculation: duplicate id %s", rec.ID)
	}
	rec.Date = rec.Date.UTC()
	s.byID[rec.ID] = len(s.items)
	s.items = append(s.items, rec)
	s.summary.Apply(rec.Total, rec.Date)
	return nil
}

// ListRecent returns up to limit records ordered by date, newest first; ties
// resolve to the later insertion.
func (s *Store) ListRecent(_ context.Context, limit int) ([]core.CalculationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := make([]int, len(s.items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		da, db := s.items[idx[a]].Date, s.items[idx[b]].Date
		if !da.Equal(db) {
			return da.After(db)
		}
		return idx[a] > idx[b]
	})

	if limit < 0 {
		limit = 0
	}
	if limit > len(idx) {
		limit = len(idx)
	}
	out := make([]core.CalculationRecord, 0, limit)
	for _, i := range idx[:limit] {
		out = append(out, s.items[i])
	}
	return out, nil
}

func (s *Store) GetCalculation(_ context.Context, id string) (core.CalculationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return core.CalculationRecord{}, fmt.Errorf("calculation %s: %w", id, storage.ErrNotFound)
	}
	return s.items[i], nil
}

func (s *Store) Summary(_ context.Context) (core.UsageSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary, nil
}

func (s *Store) ScopeAverages(_ context.Context) (core.ScopeAverages, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return core.ScopeAverages{}, nil
	}
	var sum core.ScopeAverages
	for _, rec := range s.items {
		sum.Scope1 += rec.Scope1
		sum.Scope2 += rec.Scope2
		sum.Scope3 += rec.Scope3
	}
	n := float64(len(s.items))
	return core.ScopeAverages{Scope1: sum.Scope1 / n, Scope2: sum.Scope2 / n, Scope3: sum.Scope3 / n}, nil
}

// PendingExports returns records never marked as exported, oldest first.
func (s *Store) PendingExports(_ context.Context, limit int) ([]core.CalculationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.CalculationRecord
	for _, rec := range s.items {
		if len(out) >= limit {
			break
		}
		if _, done := s.exported[rec.ID]; !done {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) MarkExported(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return fmt.Errorf("mark exported: calculation %s: %w", id, storage.ErrNotFound)
	}
	if _, done := s.exported[id]; !done {
		s.exported[id] = at
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
