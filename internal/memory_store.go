package internal

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lychee-technology/tabula"
)

// MemoryEntityStore is an in-process EntityStore used by dry runs and tests.
// Identifiers are sequential int64 values. Populate is a no-op: relations are
// returned as the identifiers they were stored with.
type MemoryEntityStore struct {
	mu   sync.Mutex
	seq  int64
	data map[string][]tabula.Entity
}

// NewMemoryEntityStore creates an empty in-memory store.
func NewMemoryEntityStore() *MemoryEntityStore {
	return &MemoryEntityStore{data: make(map[string][]tabula.Entity)}
}

func (s *MemoryEntityStore) Create(ctx context.Context, schemaUID string, data map[string]any) (tabula.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	entity := make(tabula.Entity, len(data)+1)
	for k, v := range data {
		entity[k] = v
	}
	entity["id"] = s.seq
	s.data[schemaUID] = append(s.data[schemaUID], entity)
	return entity, nil
}

func (s *MemoryEntityStore) Update(ctx context.Context, schemaUID string, id any, data map[string]any) (tabula.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entity := range s.data[schemaUID] {
		if looseEqual(entity["id"], id) {
			for k, v := range data {
				entity[k] = v
			}
			return entity, nil
		}
	}
	return nil, fmt.Errorf("entity %v not found in %s", id, schemaUID)
}

func (s *MemoryEntityStore) FindMany(ctx context.Context, schemaUID string, opts tabula.FindOptions) ([]tabula.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []tabula.Entity
	for _, entity := range s.data[schemaUID] {
		if matchesFilters(entity, opts.Filters) {
			out = append(out, entity)
			if opts.Limit > 0 && len(out) >= opts.Limit {
				break
			}
		}
	}
	return out, nil
}

func matchesFilters(entity tabula.Entity, filters []tabula.Filter) bool {
	for _, f := range filters {
		value, ok := entity[f.Field]
		if !ok {
			return false
		}
		have := fmt.Sprintf("%v", value)
		want := fmt.Sprintf("%v", f.Value)
		switch f.Op {
		case tabula.OpEq:
			if have != want {
				return false
			}
		case tabula.OpEqCI:
			if !strings.EqualFold(have, want) {
				return false
			}
		case tabula.OpContainsCI:
			if !strings.Contains(strings.ToLower(have), strings.ToLower(want)) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func looseEqual(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// MemoryMediaStore is an in-process MediaStore used by dry runs and tests.
type MemoryMediaStore struct {
	mu    sync.Mutex
	Files []tabula.UploadedFile
}

// NewMemoryMediaStore creates an empty in-memory media store.
func NewMemoryMediaStore() *MemoryMediaStore {
	return &MemoryMediaStore{}
}

func (s *MemoryMediaStore) Upload(ctx context.Context, info tabula.FileInfo, r io.Reader) (tabula.UploadedFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return tabula.UploadedFile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	file := tabula.UploadedFile{
		ID:   uuid.NewString(),
		Name: info.Name,
		URL:  "memory://" + info.Name,
		Size: int64(len(data)),
	}
	s.Files = append(s.Files, file)
	return file, nil
}
