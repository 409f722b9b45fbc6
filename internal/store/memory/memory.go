// Package memory provides an in-memory Store used by tests and by the CLI
// when no database URL is configured.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bomdb/bomdb/internal/model"
	"github.com/bomdb/bomdb/internal/store"
)

// Store holds all entities in process memory. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	nextID int64

	customers map[int64]model.Customer
	projects  map[int64]model.Project
	asms      map[int64]model.Assembly
	parts     map[int64]model.Part
	partsByPN map[string]int64 // case-folded part number -> id
	items     map[int64]model.BOMItem
	itemOrder []int64
	maps      []model.PartTestMap
	overrides []model.TestOverride
	tasks     map[int64]model.Task
}

// Verify interface compliance.
var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		customers: make(map[int64]model.Customer),
		projects:  make(map[int64]model.Project),
		asms:      make(map[int64]model.Assembly),
		parts:     make(map[int64]model.Part),
		partsByPN: make(map[string]int64),
		items:     make(map[int64]model.BOMItem),
		tasks:     make(map[int64]model.Task),
	}
}

func (s *Store) nextIDLocked() int64 {
	s.nextID++
	return s.nextID
}

// AddCustomer inserts a customer and returns it with its assigned id.
func (s *Store) AddCustomer(c model.Customer) model.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextIDLocked()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.customers[c.ID] = c
	return c
}

// AddProject inserts a project and returns it with its assigned id.
func (s *Store) AddProject(p model.Project) model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextIDLocked()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.projects[p.ID] = p
	return p
}

// AddAssembly inserts an assembly and returns it with its assigned id.
func (s *Store) AddAssembly(a model.Assembly) model.Assembly {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.nextIDLocked()
	if a.TestMode == "" {
		a.TestMode = model.ModeUnpowered
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.asms[a.ID] = a
	return a
}

func (s *Store) GetCustomer(_ context.Context, id int64) (model.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return model.Customer{}, store.ErrNotFound
	}
	return c, nil
}

func (s *Store) GetProject(_ context.Context, id int64) (model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return model.Project{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetAssembly(_ context.Context, id int64) (model.Assembly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.asms[id]
	if !ok {
		return model.Assembly{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) UpdateAssemblyTestMode(_ context.Context, id int64, mode model.TestMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.asms[id]
	if !ok {
		return store.ErrNotFound
	}
	a.TestMode = mode
	s.asms[id] = a
	return nil
}

func (s *Store) GetPart(_ context.Context, id int64) (model.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parts[id]
	if !ok {
		return model.Part{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetPartByNumber(_ context.Context, partNumber string) (model.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.partsByPN[foldPN(partNumber)]
	if !ok {
		return model.Part{}, store.ErrNotFound
	}
	return s.parts[id], nil
}

func (s *Store) InsertPart(_ context.Context, p *model.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := foldPN(p.PartNumber)
	if _, exists := s.partsByPN[key]; exists {
		return store.ErrDuplicatePart
	}
	p.ID = s.nextIDLocked()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.parts[p.ID] = *p
	s.partsByPN[key] = p.ID
	return nil
}

func (s *Store) InsertBOMItem(_ context.Context, item *model.BOMItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.nextIDLocked()
	s.items[item.ID] = *item
	s.itemOrder = append(s.itemOrder, item.ID)
	return nil
}

func (s *Store) ListBOMItems(_ context.Context, assemblyID int64) ([]model.BOMItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.BOMItem
	for _, id := range s.itemOrder {
		if it := s.items[id]; it.AssemblyID == assemblyID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *Store) ListPartTestMaps(_ context.Context, partIDs []int64) ([]model.PartTestMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[int64]bool, len(partIDs))
	for _, id := range partIDs {
		want[id] = true
	}
	var out []model.PartTestMap
	for _, m := range s.maps {
		if want[m.PartID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) InsertPartTestMap(_ context.Context, m model.PartTestMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maps = append(s.maps, m)
	return nil
}

func (s *Store) ListTestOverrides(_ context.Context, bomItemIDs []int64) ([]model.TestOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[int64]bool, len(bomItemIDs))
	for _, id := range bomItemIDs {
		want[id] = true
	}
	var out []model.TestOverride
	for _, o := range s.overrides {
		if want[o.BOMItemID] {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Store) InsertTestOverride(_ context.Context, o model.TestOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides = append(s.overrides, o)
	return nil
}

func (s *Store) InsertTask(_ context.Context, t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.nextIDLocked()
	if t.Status == "" {
		t.Status = model.TaskTodo
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.tasks[t.ID] = *t
	return nil
}

// Tasks returns all tasks in insertion order by id. Test helper.
func (s *Store) Tasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Task, 0, len(s.tasks))
	for i := int64(1); i <= s.nextID; i++ {
		if t, ok := s.tasks[i]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Parts returns all parts. Test helper.
func (s *Store) Parts() []model.Part {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Part, 0, len(s.parts))
	for i := int64(1); i <= s.nextID; i++ {
		if p, ok := s.parts[i]; ok {
			out = append(out, p)
		}
	}
	return out
}

func foldPN(pn string) string {
	return strings.ToLower(strings.TrimSpace(pn))
}
