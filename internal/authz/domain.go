package authz

import "time"

// ItemType distinguishes roles from permissions. Both live in the same
// namespace and share one storage table.
type ItemType int8

const (
	// TypeRole marks an item that groups other items and is assigned to users.
	TypeRole ItemType = 1
	// TypePermission marks an item representing a concrete allowed action.
	TypePermission ItemType = 2
)

// String returns the lowercase label used on the wire and in logs.
func (t ItemType) String() string {
	switch t {
	case TypeRole:
		return "role"
	case TypePermission:
		return "permission"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the known item types.
func (t ItemType) Valid() bool {
	return t == TypeRole || t == TypePermission
}

// Item is the atomic authorizable unit: a role or a permission.
type Item struct {
	Name        string
	Type        ItemType
	Description string
	// RuleName references a stored rule making the grant conditional.
	// Empty means the item passes unconditionally.
	RuleName string
	// Data is an opaque payload owned by the caller (typically JSON for the
	// attached rule). The engine never interprets it.
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Rule is the stored record of a named predicate. The evaluation logic is
// code registered in a Registry under the same name; Data carries the
// serialized configuration handed to the evaluator.
type Rule struct {
	Name      string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ItemChild is a directed edge: Parent inherits everything Child grants.
type ItemChild struct {
	Parent string
	Child  string
}

// Assignment grants an item to a user. UserID is an opaque caller-defined
// identity key.
type Assignment struct {
	ItemName  string
	UserID    string
	CreatedAt time.Time
}

// State is a consistent snapshot of the item graph used by read-side
// traversals. Stores build it atomically so a traversal never observes a
// half-applied mutation.
type State struct {
	Items    map[string]Item
	Rules    map[string]Rule
	Children map[string][]string
	Parents  map[string][]string
	// Version is the store's graph generation at the moment the snapshot was
	// taken, captured inside the same critical section as the maps. Cache
	// layers key on it, so derived data can never outlive the snapshot it
	// was computed from.
	Version int64
}

// NewState returns an empty snapshot.
func NewState() *State {
	return &State{
		Items:    make(map[string]Item),
		Rules:    make(map[string]Rule),
		Children: make(map[string][]string),
		Parents:  make(map[string][]string),
	}
}

// AddEdge records a parent→child edge in both adjacency maps.
func (s *State) AddEdge(parent, child string) {
	s.Children[parent] = append(s.Children[parent], child)
	s.Parents[child] = append(s.Parents[child], parent)
}
