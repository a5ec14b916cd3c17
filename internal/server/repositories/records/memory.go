package records

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/poikeeper/internal/common"
	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
	"github.com/dmitrijs2005/poikeeper/internal/server/models"
)

// MemoryRepository keeps records in process memory. Writes are not
// transactional. It backs service tests.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID map[string]int64
	tables map[string]map[int64]*models.Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextID: make(map[string]int64),
		tables: make(map[string]map[int64]*models.Record),
	}
}

func (m *MemoryRepository) Create(_ context.Context, e *fieldmap.Entity, rec *models.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID[e.Table]++
	id := m.nextID[e.Table]

	stored := rec.Clone()
	stored.ID = id
	stored.Version = 1
	for _, c := range e.Columns() {
		if _, ok := stored.Columns[c]; !ok {
			stored.Columns[c] = nil
		}
	}

	if m.tables[e.Table] == nil {
		m.tables[e.Table] = make(map[int64]*models.Record)
	}
	m.tables[e.Table][id] = stored
	return id, nil
}

func (m *MemoryRepository) GetByID(_ context.Context, e *fieldmap.Entity, id int64) (*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tables[e.Table][id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryRepository) ListAll(_ context.Context, e *fieldmap.Entity) ([]*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sorted(e, func(*models.Record) bool { return true }), nil
}

func (m *MemoryRepository) ListByParent(_ context.Context, e *fieldmap.Entity, parentID int64) ([]*models.Record, error) {
	if e.Parent == "" {
		return nil, fmt.Errorf("%s has no parent column", e.Resource)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sorted(e, func(r *models.Record) bool { return r.Ref(e.Parent) == parentID }), nil
}

func (m *MemoryRepository) Update(_ context.Context, e *fieldmap.Entity, id, version int64, columns map[string]*string) error {
	if len(columns) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tables[e.Table][id]
	if !ok || rec.Version != version {
		return common.ErrVersionConflict
	}
	for name, v := range columns {
		if _, known := e.Field(name); !known {
			return fmt.Errorf("%s: update names unknown columns", e.Resource)
		}
		if v == nil {
			rec.Columns[name] = nil
			continue
		}
		s := *v
		rec.Columns[name] = &s
	}
	rec.Version++
	return nil
}

func (m *MemoryRepository) DeleteRow(_ context.Context, e *fieldmap.Entity, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[e.Table][id]; !ok {
		return common.ErrorNotFound
	}
	delete(m.tables[e.Table], id)
	return nil
}

// Len returns the number of stored rows of e, deleted flags included.
func (m *MemoryRepository) Len(e *fieldmap.Entity) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[e.Table])
}

func (m *MemoryRepository) sorted(e *fieldmap.Entity, keep func(*models.Record) bool) []*models.Record {
	var out []*models.Record
	for _, rec := range m.tables[e.Table] {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
