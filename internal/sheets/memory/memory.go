// Package memory is an in-memory spreadsheet backend used for tests and for
// running without Google credentials.
package memory

import (
	"context"
	"sync"
)

type Store struct {
	mu     sync.Mutex
	sheets map[string][][]string
}

func New() *Store {
	return &Store{sheets: map[string][][]string{}}
}

// ReadAllRows returns a copy of every sheet's rows.
func (s *Store) ReadAllRows(_ context.Context) (map[string][][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][][]string, len(s.sheets))
	for key, rows := range s.sheets {
		if len(rows) == 0 {
			continue
		}
		copied := make([][]string, len(rows))
		for i, row := range rows {
			copied[i] = append([]string(nil), row...)
		}
		out[key] = copied
	}
	return out, nil
}

// WriteRows replaces a sheet's rows.
func (s *Store) WriteRows(_ context.Context, sheetKey string, rows [][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([][]string, len(rows))
	for i, row := range rows {
		copied[i] = append([]string(nil), row...)
	}
	s.sheets[sheetKey] = copied
	return nil
}

// AppendRow adds a row to a sheet.
func (s *Store) AppendRow(_ context.Context, sheetKey string, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[sheetKey] = append(s.sheets[sheetKey], append([]string(nil), row...))
	return nil
}
