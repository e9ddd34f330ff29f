package authz

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store guarded by a single RWMutex. It is the
// reference implementation for store semantics and the backend used in tests
// and library-only embeddings.
type MemStore struct {
	mu          sync.RWMutex
	items       map[string]Item
	rules       map[string]Rule
	children    map[string]map[string]struct{}
	assignments map[string]map[string]Assignment // userID -> itemName -> assignment
	version     int64

	// now is swappable for deterministic timestamps in tests.
	now func() time.Time
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		items:       make(map[string]Item),
		rules:       make(map[string]Rule),
		children:    make(map[string]map[string]struct{}),
		assignments: make(map[string]map[string]Assignment),
		now:         time.Now,
	}
}

// CreateItem implements Store.
func (s *MemStore) CreateItem(ctx context.Context, item Item) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.Name]; ok {
		return Item{}, ErrDuplicateName
	}
	if item.RuleName != "" {
		if _, ok := s.rules[item.RuleName]; !ok {
			return Item{}, ErrRuleNotFound
		}
	}
	now := s.now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.items[item.Name] = item
	s.version++
	return item, nil
}

// GetItem implements Store.
func (s *MemStore) GetItem(ctx context.Context, name string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[name]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

// UpdateItem implements Store. Name and type are immutable.
func (s *MemStore) UpdateItem(ctx context.Context, item Item) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[item.Name]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	if item.RuleName != "" {
		if _, ok := s.rules[item.RuleName]; !ok {
			return Item{}, ErrRuleNotFound
		}
	}
	current.Description = item.Description
	current.RuleName = item.RuleName
	current.Data = item.Data
	current.UpdatedAt = s.now().UTC()
	s.items[item.Name] = current
	s.version++
	return current, nil
}

// ListItems implements Store.
func (s *MemStore) ListItems(ctx context.Context, typ *ItemType) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		if typ != nil && item.Type != *typ {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// DeleteItem implements Store with cascade semantics: edges touching the item
// and assignments of it go in the same critical section.
func (s *MemStore) DeleteItem(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[name]; !ok {
		return ErrItemNotFound
	}
	delete(s.items, name)
	delete(s.children, name)
	for parent := range s.children {
		delete(s.children[parent], name)
	}
	for userID := range s.assignments {
		delete(s.assignments[userID], name)
	}
	s.version++
	return nil
}

// CreateRule implements Store.
func (s *MemStore) CreateRule(ctx context.Context, rule Rule) (Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.Name]; ok {
		return Rule{}, ErrDuplicateName
	}
	now := s.now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[rule.Name] = rule
	s.version++
	return rule, nil
}

// GetRule implements Store.
func (s *MemStore) GetRule(ctx context.Context, name string) (Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[name]
	if !ok {
		return Rule{}, ErrRuleNotFound
	}
	return rule, nil
}

// ListRules implements Store.
func (s *MemStore) ListRules(ctx context.Context) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := make([]Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules, nil
}

// DeleteRule implements Store. Items referencing the rule block deletion.
func (s *MemStore) DeleteRule(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[name]; !ok {
		return ErrRuleNotFound
	}
	for _, item := range s.items {
		if item.RuleName == name {
			return ErrRuleInUse
		}
	}
	delete(s.rules, name)
	s.version++
	return nil
}

// AddChild implements Store. The cycle check runs under the write lock, so it
// always sees the full current edge set.
func (s *MemStore) AddChild(ctx context.Context, parent, child string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[parent]; !ok {
		return ErrItemNotFound
	}
	if _, ok := s.items[child]; !ok {
		return ErrItemNotFound
	}
	if parent == child || s.reachableLocked(child, parent) {
		return ErrCycle
	}
	if s.children[parent] == nil {
		s.children[parent] = make(map[string]struct{})
	}
	s.children[parent][child] = struct{}{}
	s.version++
	return nil
}

// reachableLocked reports whether target is reachable from start over child
// edges. Callers must hold at least the read lock.
func (s *MemStore) reachableLocked(start, target string) bool {
	visited := map[string]struct{}{start: {}}
	queue := []string{start}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for child := range s.children[node] {
			if child == target {
				return true
			}
			if _, seen := visited[child]; seen {
				continue
			}
			visited[child] = struct{}{}
			queue = append(queue, child)
		}
	}
	return false
}

// RemoveChild implements Store.
func (s *MemStore) RemoveChild(ctx context.Context, parent, child string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.children[parent][child]; !ok {
		return ErrEdgeNotFound
	}
	delete(s.children[parent], child)
	s.version++
	return nil
}

// CreateAssignment implements Store.
func (s *MemStore) CreateAssignment(ctx context.Context, userID, itemName string) (Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[itemName]; !ok {
		return Assignment{}, ErrItemNotFound
	}
	if _, ok := s.assignments[userID][itemName]; ok {
		return Assignment{}, ErrDuplicateAssignment
	}
	if s.assignments[userID] == nil {
		s.assignments[userID] = make(map[string]Assignment)
	}
	a := Assignment{ItemName: itemName, UserID: userID, CreatedAt: s.now().UTC()}
	s.assignments[userID][itemName] = a
	return a, nil
}

// DeleteAssignment implements Store.
func (s *MemStore) DeleteAssignment(ctx context.Context, userID, itemName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[userID][itemName]; !ok {
		return ErrNotAssigned
	}
	delete(s.assignments[userID], itemName)
	return nil
}

// DeleteAssignmentsForUser implements Store. Idempotent.
func (s *MemStore) DeleteAssignmentsForUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assignments, userID)
	return nil
}

// AssignmentsForUser implements Store.
func (s *MemStore) AssignmentsForUser(ctx context.Context, userID string) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Assignment, 0, len(s.assignments[userID]))
	for _, a := range s.assignments[userID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemName < out[j].ItemName })
	return out, nil
}

// ListAssignments implements Store.
func (s *MemStore) ListAssignments(ctx context.Context) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Assignment
	for _, byItem := range s.assignments {
		for _, a := range byItem {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].ItemName < out[j].ItemName
	})
	return out, nil
}

// State implements Store. The snapshot is built under one read lock.
func (s *MemStore) State(ctx context.Context) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := NewState()
	for name, item := range s.items {
		state.Items[name] = item
	}
	for name, rule := range s.rules {
		state.Rules[name] = rule
	}
	for parent, kids := range s.children {
		for child := range kids {
			state.AddEdge(parent, child)
		}
	}
	state.Version = s.version
	return state, nil
}
