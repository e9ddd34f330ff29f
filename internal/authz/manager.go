package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Manager ties the store, the rule registry and the optional closure cache
// together and exposes the engine's public API. All collaborators are passed
// in explicitly; the manager holds no ambient state.
type Manager struct {
	store  Store
	rules  *Registry
	cache  *ClosureCache
	logger *slog.Logger
}

// NewManager constructs a Manager. cache may be nil to disable caching;
// logger may be nil to silence diagnostics.
func NewManager(store Store, rules *Registry, cache *ClosureCache, logger *slog.Logger) *Manager {
	if rules == nil {
		rules = NewRegistry()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{store: store, rules: rules, cache: cache, logger: logger}
}

// Rules exposes the registry so callers can bind evaluators.
func (m *Manager) Rules() *Registry { return m.rules }

// CreateRole creates a role item.
func (m *Manager) CreateRole(ctx context.Context, name, description string) (Item, error) {
	return m.CreateItem(ctx, Item{Name: name, Type: TypeRole, Description: description})
}

// CreatePermission creates a permission item.
func (m *Manager) CreatePermission(ctx context.Context, name, description string) (Item, error) {
	return m.CreateItem(ctx, Item{Name: name, Type: TypePermission, Description: description})
}

// CreateItem validates and persists an item.
func (m *Manager) CreateItem(ctx context.Context, item Item) (Item, error) {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return Item{}, errors.New("authz: item name required")
	}
	if !item.Type.Valid() {
		return Item{}, fmt.Errorf("authz: invalid item type %d", item.Type)
	}
	created, err := m.store.CreateItem(ctx, item)
	if err != nil {
		return Item{}, m.storeErr(err)
	}
	if created.RuleName != "" {
		if _, ok := m.rules.Lookup(created.RuleName); !ok {
			m.logger.Warn("item references rule with no registered evaluator",
				slog.String("item", created.Name), slog.String("rule", created.RuleName))
		}
	}
	return created, nil
}

// GetItem fetches an item by name.
func (m *Manager) GetItem(ctx context.Context, name string) (Item, error) {
	item, err := m.store.GetItem(ctx, name)
	if err != nil {
		return Item{}, m.storeErr(err)
	}
	return item, nil
}

// ListItems lists items, optionally filtered by type.
func (m *Manager) ListItems(ctx context.Context, typ *ItemType) ([]Item, error) {
	items, err := m.store.ListItems(ctx, typ)
	if err != nil {
		return nil, m.storeErr(err)
	}
	return items, nil
}

// UpdateItem replaces an item's description, rule reference and data.
func (m *Manager) UpdateItem(ctx context.Context, item Item) (Item, error) {
	updated, err := m.store.UpdateItem(ctx, item)
	if err != nil {
		return Item{}, m.storeErr(err)
	}
	return updated, nil
}

// DeleteItem removes an item. The store cascades: edges touching the item and
// assignments of it disappear in the same atomic step.
func (m *Manager) DeleteItem(ctx context.Context, name string) error {
	return m.storeErr(m.store.DeleteItem(ctx, name))
}

// CreateRule persists a rule record.
func (m *Manager) CreateRule(ctx context.Context, rule Rule) (Rule, error) {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.Name == "" {
		return Rule{}, errors.New("authz: rule name required")
	}
	created, err := m.store.CreateRule(ctx, rule)
	if err != nil {
		return Rule{}, m.storeErr(err)
	}
	if _, ok := m.rules.Lookup(created.Name); !ok {
		m.logger.Warn("rule stored without a registered evaluator", slog.String("rule", created.Name))
	}
	return created, nil
}

// GetRule fetches a rule by name.
func (m *Manager) GetRule(ctx context.Context, name string) (Rule, error) {
	rule, err := m.store.GetRule(ctx, name)
	if err != nil {
		return Rule{}, m.storeErr(err)
	}
	return rule, nil
}

// ListRules lists all rules.
func (m *Manager) ListRules(ctx context.Context) ([]Rule, error) {
	rules, err := m.store.ListRules(ctx)
	if err != nil {
		return nil, m.storeErr(err)
	}
	return rules, nil
}

// DeleteRule removes a rule. Fails with ErrRuleInUse while referenced.
func (m *Manager) DeleteRule(ctx context.Context, name string) error {
	return m.storeErr(m.store.DeleteRule(ctx, name))
}

// AddChild inserts a parent→child edge after the store's cycle check.
func (m *Manager) AddChild(ctx context.Context, parent, child string) error {
	return m.storeErr(m.store.AddChild(ctx, parent, child))
}

// RemoveChild deletes an edge.
func (m *Manager) RemoveChild(ctx context.Context, parent, child string) error {
	return m.storeErr(m.store.RemoveChild(ctx, parent, child))
}

// Children returns the direct children of an item.
func (m *Manager) Children(ctx context.Context, name string) ([]Item, error) {
	state, err := m.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := state.Items[name]; !ok {
		return nil, ErrItemNotFound
	}
	return itemsByName(state, state.Children[name]), nil
}

// Descendants returns the transitive closure over child edges, excluding the
// item itself. Diamonds collapse to a single visit per node.
func (m *Manager) Descendants(ctx context.Context, name string) ([]Item, error) {
	state, err := m.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := state.Items[name]; !ok {
		return nil, ErrItemNotFound
	}
	names, err := m.descendantNames(ctx, state, name)
	if err != nil {
		return nil, err
	}
	return itemsByName(state, sortedNames(names)), nil
}

// Ancestors returns the transitive closure over parent edges.
func (m *Manager) Ancestors(ctx context.Context, name string) ([]Item, error) {
	state, err := m.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := state.Items[name]; !ok {
		return nil, ErrItemNotFound
	}
	names, err := closure(state.Parents, name)
	if err != nil {
		return nil, err
	}
	return itemsByName(state, sortedNames(names)), nil
}

// Assign grants an item to a user.
func (m *Manager) Assign(ctx context.Context, userID, itemName string) (Assignment, error) {
	a, err := m.store.CreateAssignment(ctx, userID, itemName)
	if err != nil {
		return Assignment{}, m.storeErr(err)
	}
	return a, nil
}

// Revoke removes a single assignment.
func (m *Manager) Revoke(ctx context.Context, userID, itemName string) error {
	return m.storeErr(m.store.DeleteAssignment(ctx, userID, itemName))
}

// RevokeAll removes every assignment the user holds. Idempotent.
func (m *Manager) RevokeAll(ctx context.Context, userID string) error {
	return m.storeErr(m.store.DeleteAssignmentsForUser(ctx, userID))
}

// Assignments returns the user's direct assignments.
func (m *Manager) Assignments(ctx context.Context, userID string) ([]Assignment, error) {
	out, err := m.store.AssignmentsForUser(ctx, userID)
	if err != nil {
		return nil, m.storeErr(err)
	}
	return out, nil
}

// RolesForUser returns the directly assigned roles.
func (m *Manager) RolesForUser(ctx context.Context, userID string) ([]Item, error) {
	assignments, err := m.Assignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	state, err := m.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var roles []Item
	for _, a := range assignments {
		if item, ok := state.Items[a.ItemName]; ok && item.Type == TypeRole {
			roles = append(roles, item)
		}
	}
	return roles, nil
}

// PermissionsForUser returns every permission reachable from the user's
// assignments, deduplicated.
func (m *Manager) PermissionsForUser(ctx context.Context, userID string) ([]Item, error) {
	assignments, err := m.Assignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	state, err := m.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	reach := make(map[string]struct{})
	for _, a := range assignments {
		reach[a.ItemName] = struct{}{}
		names, err := m.descendantNames(ctx, state, a.ItemName)
		if err != nil {
			return nil, err
		}
		for name := range names {
			reach[name] = struct{}{}
		}
	}
	var perms []Item
	for _, name := range sortedNames(reach) {
		if item, ok := state.Items[name]; ok && item.Type == TypePermission {
			perms = append(perms, item)
		}
	}
	return perms, nil
}

// CheckAccess reports whether the user holds the named permission. A plain
// deny is (false, nil); errors are reserved for infrastructure failures.
//
// The walk runs upward from the permission through parent edges toward the
// user's assignments. Each node's rule is evaluated before its parents are
// explored, so a failing rule vetoes every path through that node; any single
// surviving path to an assignment grants.
func (m *Manager) CheckAccess(ctx context.Context, userID, permission string, params Params) (bool, error) {
	if userID == "" || permission == "" {
		return false, nil
	}
	assignments, err := m.store.AssignmentsForUser(ctx, userID)
	if err != nil {
		return false, m.storeErr(err)
	}
	if len(assignments) == 0 {
		return false, nil
	}
	state, err := m.snapshot(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := state.Items[permission]; !ok {
		return false, nil
	}

	assigned := make(map[string]struct{}, len(assignments))
	for _, a := range assignments {
		assigned[a.ItemName] = struct{}{}
	}

	// Fast reject: the permission must sit in some assignment's closure
	// before any rule runs.
	reachable := false
	for name := range assigned {
		if name == permission {
			reachable = true
			break
		}
		desc, err := m.descendantNames(ctx, state, name)
		if err != nil {
			return false, err
		}
		if _, ok := desc[permission]; ok {
			reachable = true
			break
		}
	}
	if !reachable {
		return false, nil
	}

	walk := &accessWalk{
		ctx:      ctx,
		manager:  m,
		state:    state,
		assigned: assigned,
		userID:   userID,
		params:   params,
		memo:     make(map[string]bool),
		walking:  make(map[string]struct{}),
	}
	return walk.check(permission)
}

// accessWalk carries the per-query mutable state of one CheckAccess call.
type accessWalk struct {
	ctx      context.Context
	manager  *Manager
	state    *State
	assigned map[string]struct{}
	userID   string
	params   Params
	memo     map[string]bool
	walking  map[string]struct{}
}

func (w *accessWalk) check(name string) (bool, error) {
	// Cancellation mid-traversal discards partial results: no partial grant.
	if err := w.ctx.Err(); err != nil {
		return false, w.manager.storeErr(err)
	}
	if granted, ok := w.memo[name]; ok {
		return granted, nil
	}
	if _, busy := w.walking[name]; busy {
		return false, nil
	}
	item, ok := w.state.Items[name]
	if !ok {
		return false, nil
	}
	if item.RuleName != "" {
		pass, err := w.manager.evaluateStoredRule(w.ctx, w.state, item, w.userID, w.params)
		if err != nil {
			return false, err
		}
		if !pass {
			w.memo[name] = false
			return false, nil
		}
	}
	if _, ok := w.assigned[name]; ok {
		w.memo[name] = true
		return true, nil
	}
	w.walking[name] = struct{}{}
	defer delete(w.walking, name)
	for _, parent := range w.state.Parents[name] {
		granted, err := w.check(parent)
		if err != nil {
			return false, err
		}
		if granted {
			w.memo[name] = true
			return true, nil
		}
	}
	w.memo[name] = false
	return false, nil
}

// evaluateStoredRule resolves item's attached rule against the snapshot and
// runs it. A dangling rule reference or an unregistered evaluator is a deny
// with a logged warning, never a hard failure: stale rule data must not lock
// users out without a diagnostic trail.
func (m *Manager) evaluateStoredRule(ctx context.Context, state *State, item Item, userID string, params Params) (bool, error) {
	rule, ok := state.Rules[item.RuleName]
	if !ok {
		m.logger.Warn("item references missing rule, denying",
			slog.String("item", item.Name), slog.String("rule", item.RuleName))
		return false, nil
	}
	pass, err := m.rules.Evaluate(ctx, rule.Name, userID, item, rule.Data, params)
	if err != nil {
		if errors.Is(err, ErrUnknownRule) {
			m.logger.Warn("no evaluator registered for rule, denying",
				slog.String("item", item.Name), slog.String("rule", rule.Name))
			return false, nil
		}
		return false, fmt.Errorf("authz: evaluate rule %q: %w", rule.Name, err)
	}
	return pass, nil
}

// descendantNames resolves the child-edge closure for name, through the cache
// when one is configured. Cache entries are keyed on the snapshot's own
// version so a closure built from state can never be served to readers of a
// later graph generation.
func (m *Manager) descendantNames(ctx context.Context, state *State, name string) (map[string]struct{}, error) {
	if m.cache == nil {
		names, err := closure(state.Children, name)
		if err != nil && !errors.Is(err, ErrCycleDetected) {
			return nil, err
		}
		return names, nil
	}
	return m.cache.Descendants(ctx, state.Version, name, func() (map[string]struct{}, error) {
		names, err := closure(state.Children, name)
		if err != nil && !errors.Is(err, ErrCycleDetected) {
			return nil, err
		}
		return names, nil
	})
}

// snapshot loads a consistent graph snapshot.
func (m *Manager) snapshot(ctx context.Context) (*State, error) {
	state, err := m.store.State(ctx)
	if err != nil {
		return nil, m.storeErr(err)
	}
	return state, nil
}

// storeErr maps deadline expiry on store calls to ErrStoreUnavailable so
// callers see one infrastructure error regardless of backend.
func (m *Manager) storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

func itemsByName(state *State, names []string) []Item {
	items := make([]Item, 0, len(names))
	for _, name := range names {
		if item, ok := state.Items[name]; ok {
			items = append(items, item)
		}
	}
	return items
}
