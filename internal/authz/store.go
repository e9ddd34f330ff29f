package authz

import "context"

// Store is the persistence port for the four entity families. Implementations
// must apply every mutation atomically with respect to readers: a State read
// never observes a half-applied edge removal or cascade delete.
//
// AddChild carries the cycle check because only the store can run it against
// a transaction-consistent view of the edge set.
type Store interface {
	// CreateItem inserts an item. ErrDuplicateName if the name is taken
	// (by a role or a permission; they share one namespace), ErrRuleNotFound
	// if RuleName is set but no such rule exists.
	CreateItem(ctx context.Context, item Item) (Item, error)
	// GetItem fetches an item by name. ErrItemNotFound if absent.
	GetItem(ctx context.Context, name string) (Item, error)
	// UpdateItem replaces description, rule reference and data. The name and
	// type are immutable. ErrItemNotFound, ErrRuleNotFound as for create.
	UpdateItem(ctx context.Context, item Item) (Item, error)
	// ListItems returns all items, optionally filtered by type, ordered by name.
	ListItems(ctx context.Context, typ *ItemType) ([]Item, error)
	// DeleteItem removes the item, every edge touching it and every
	// assignment of it in one atomic step. ErrItemNotFound if absent.
	DeleteItem(ctx context.Context, name string) error

	// CreateRule inserts a rule. ErrDuplicateName if the name is taken.
	CreateRule(ctx context.Context, rule Rule) (Rule, error)
	// GetRule fetches a rule by name. ErrRuleNotFound if absent.
	GetRule(ctx context.Context, name string) (Rule, error)
	// ListRules returns all rules ordered by name.
	ListRules(ctx context.Context) ([]Rule, error)
	// DeleteRule removes a rule. ErrRuleInUse while any item references it,
	// ErrRuleNotFound if absent.
	DeleteRule(ctx context.Context, name string) error

	// AddChild inserts a parent→child edge. ErrItemNotFound if either
	// endpoint is missing, ErrCycle if the edge would make child an ancestor
	// of itself. Inserting an existing edge is a no-op.
	AddChild(ctx context.Context, parent, child string) error
	// RemoveChild deletes an edge. ErrEdgeNotFound if absent.
	RemoveChild(ctx context.Context, parent, child string) error

	// CreateAssignment grants an item to a user. ErrItemNotFound if the item
	// is missing, ErrDuplicateAssignment if already granted.
	CreateAssignment(ctx context.Context, userID, itemName string) (Assignment, error)
	// DeleteAssignment revokes a grant. ErrNotAssigned if absent.
	DeleteAssignment(ctx context.Context, userID, itemName string) error
	// DeleteAssignmentsForUser revokes everything the user holds. Idempotent.
	DeleteAssignmentsForUser(ctx context.Context, userID string) error
	// AssignmentsForUser returns the user's direct assignments.
	AssignmentsForUser(ctx context.Context, userID string) ([]Assignment, error)
	// ListAssignments returns every assignment. Used by the cache warmup job.
	ListAssignments(ctx context.Context) ([]Assignment, error)

	// State returns an atomic snapshot of items and edges for traversal. The
	// snapshot's Version increments on every item/edge mutation and must be
	// read inside the same critical section as the rest of the snapshot.
	State(ctx context.Context) (*State, error)
}
