package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemStoreItemLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return frozen }

	created, err := store.CreateItem(ctx, Item{Name: "editor", Type: TypeRole, Description: "desc"})
	require.NoError(t, err)
	require.Equal(t, frozen, created.CreatedAt)
	require.Equal(t, frozen, created.UpdatedAt)

	_, err = store.CreateItem(ctx, Item{Name: "editor", Type: TypePermission})
	require.ErrorIs(t, err, ErrDuplicateName)

	later := frozen.Add(time.Hour)
	store.now = func() time.Time { return later }
	updated, err := store.UpdateItem(ctx, Item{Name: "editor", Type: TypeRole, Description: "changed"})
	require.NoError(t, err)
	require.Equal(t, "changed", updated.Description)
	require.Equal(t, frozen, updated.CreatedAt)
	require.Equal(t, later, updated.UpdatedAt)

	_, err = store.UpdateItem(ctx, Item{Name: "ghost", Type: TypeRole})
	require.ErrorIs(t, err, ErrItemNotFound)

	_, err = store.GetItem(ctx, "ghost")
	require.ErrorIs(t, err, ErrItemNotFound)

	require.NoError(t, store.DeleteItem(ctx, "editor"))
	require.ErrorIs(t, store.DeleteItem(ctx, "editor"), ErrItemNotFound)
}

func TestMemStoreListItemsFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	_, err := store.CreateItem(ctx, Item{Name: "admin", Type: TypeRole})
	require.NoError(t, err)
	_, err = store.CreateItem(ctx, Item{Name: "post.view", Type: TypePermission})
	require.NoError(t, err)

	all, err := store.ListItems(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	roleType := TypeRole
	roles, err := store.ListItems(ctx, &roleType)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.Equal(t, "admin", roles[0].Name)
}

func TestMemStoreEdges(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	for _, name := range []string{"a", "b"} {
		_, err := store.CreateItem(ctx, Item{Name: name, Type: TypeRole})
		require.NoError(t, err)
	}

	require.ErrorIs(t, store.AddChild(ctx, "a", "ghost"), ErrItemNotFound)
	require.ErrorIs(t, store.AddChild(ctx, "ghost", "a"), ErrItemNotFound)

	require.NoError(t, store.AddChild(ctx, "a", "b"))
	require.ErrorIs(t, store.AddChild(ctx, "b", "a"), ErrCycle)

	require.NoError(t, store.RemoveChild(ctx, "a", "b"))
	require.ErrorIs(t, store.RemoveChild(ctx, "a", "b"), ErrEdgeNotFound)

	// With the edge gone the reverse direction is legal again.
	require.NoError(t, store.AddChild(ctx, "b", "a"))
}

func TestMemStoreAssignments(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	_, err := store.CreateItem(ctx, Item{Name: "admin", Type: TypeRole})
	require.NoError(t, err)

	_, err = store.CreateAssignment(ctx, "u1", "ghost")
	require.ErrorIs(t, err, ErrItemNotFound)

	a, err := store.CreateAssignment(ctx, "u1", "admin")
	require.NoError(t, err)
	require.Equal(t, "u1", a.UserID)
	require.Equal(t, "admin", a.ItemName)

	_, err = store.CreateAssignment(ctx, "u1", "admin")
	require.ErrorIs(t, err, ErrDuplicateAssignment)

	list, err := store.ListAssignments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.DeleteAssignment(ctx, "u1", "admin"))
	require.ErrorIs(t, store.DeleteAssignment(ctx, "u1", "admin"), ErrNotAssigned)
	require.NoError(t, store.DeleteAssignmentsForUser(ctx, "u1"))
}

func TestMemStoreVersionBumps(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	s0, err := store.State(ctx)
	require.NoError(t, err)

	_, err = store.CreateItem(ctx, Item{Name: "a", Type: TypeRole})
	require.NoError(t, err)
	_, err = store.CreateItem(ctx, Item{Name: "b", Type: TypeRole})
	require.NoError(t, err)
	require.NoError(t, store.AddChild(ctx, "a", "b"))

	s1, err := store.State(ctx)
	require.NoError(t, err)
	require.Greater(t, s1.Version, s0.Version)

	// Assignments do not alter closures, so they leave the version alone.
	_, err = store.CreateAssignment(ctx, "u1", "a")
	require.NoError(t, err)
	s2, err := store.State(ctx)
	require.NoError(t, err)
	require.Equal(t, s1.Version, s2.Version)
}

func TestMemStoreStateSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	_, err := store.CreateRule(ctx, Rule{Name: "r"})
	require.NoError(t, err)
	for _, name := range []string{"a", "b"} {
		_, err := store.CreateItem(ctx, Item{Name: name, Type: TypeRole})
		require.NoError(t, err)
	}
	require.NoError(t, store.AddChild(ctx, "a", "b"))

	state, err := store.State(ctx)
	require.NoError(t, err)
	require.Len(t, state.Items, 2)
	require.Contains(t, state.Rules, "r")
	require.Equal(t, []string{"b"}, state.Children["a"])
	require.Equal(t, []string{"a"}, state.Parents["b"])

	// Mutations after the snapshot must not leak into it.
	require.NoError(t, store.DeleteItem(ctx, "b"))
	require.Len(t, state.Items, 2)
}
