package authz

import "errors"

// Sentinel errors surfaced by stores and the manager. All are recoverable:
// the admin surface maps them to validation failures, never a crash.
var (
	// ErrDuplicateName indicates an item or rule name is already taken.
	ErrDuplicateName = errors.New("authz: name already exists")
	// ErrItemNotFound indicates the referenced item does not exist.
	ErrItemNotFound = errors.New("authz: item not found")
	// ErrRuleNotFound indicates the referenced rule does not exist.
	ErrRuleNotFound = errors.New("authz: rule not found")
	// ErrUnknownRule indicates a rule name has no registered evaluator.
	ErrUnknownRule = errors.New("authz: no evaluator registered for rule")
	// ErrRuleInUse indicates a rule is still referenced by at least one item.
	ErrRuleInUse = errors.New("authz: rule is referenced by an item")
	// ErrCycle indicates an edge insert would make the hierarchy cyclic.
	ErrCycle = errors.New("authz: edge would create a cycle")
	// ErrCycleDetected indicates a traversal found a cycle in stored data,
	// e.g. after an external import bypassed the write-time check.
	ErrCycleDetected = errors.New("authz: cycle detected in stored hierarchy")
	// ErrDuplicateAssignment indicates the user already holds the item.
	ErrDuplicateAssignment = errors.New("authz: item already assigned to user")
	// ErrNotAssigned indicates no such assignment exists.
	ErrNotAssigned = errors.New("authz: item not assigned to user")
	// ErrEdgeNotFound indicates no such parent/child edge exists.
	ErrEdgeNotFound = errors.New("authz: edge not found")
	// ErrStoreUnavailable indicates the backing store timed out or is down.
	ErrStoreUnavailable = errors.New("authz: store unavailable")
)
