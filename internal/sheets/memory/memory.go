// Package memory keeps exported rows in process, for local runs without a spreadsheet.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ecocalc/internal/core"
	ports "ecocalc/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows []core.CalculationRecord
	fail error
}

var (
	_ ports.CalculationExporter = (*Store)(nil)
	_ ports.HeaderWriter        = (*Store)(nil)
)

func New() *Store {
	return &Store{}
}

// ExportCalculation stores the record and returns a synthetic row reference.
func (s *Store) ExportCalculation(_ context.Context, rec core.CalculationRecord) (string, error) {
	if rec.ID == "" {
		return "", errors.New("export calculation: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.rows = append(s.rows, rec)
	// Row 1 is the header.
	return fmt.Sprintf("mem:%d", len(s.rows)+1), nil
}

func (s *Store) EnsureHeader(context.Context) error { return nil }

// FailWith makes subsequent exports return err. Pass nil to recover.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Rows returns a copy of the exported records in export order.
func (s *Store) Rows() []core.CalculationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.CalculationRecord(nil), s.rows...)
}
