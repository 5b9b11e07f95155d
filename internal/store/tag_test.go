package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangleapp/tangle-server/internal/domain"
)

// setupTestStore creates a temporary store for testing
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "tangle-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := New(dbPath, nil)
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func newTestTag(id, ownerID, name, parentID string) *domain.Tag {
	now := time.Now().UTC()
	return &domain.Tag{
		ID:        id,
		OwnerID:   ownerID,
		Name:      name,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// assertClosuresConsistent recomputes every tag's transitive descendant set
// from parent pointers alone and checks it against the stored cache.
func assertClosuresConsistent(t *testing.T, store *Store, ownerID string) {
	t.Helper()

	ctx := context.Background()
	tags, err := store.ListTagsByOwner(ctx, ownerID)
	require.NoError(t, err)

	byID := make(map[string]*domain.Tag, len(tags))
	for _, tag := range tags {
		byID[tag.ID] = tag
	}

	expected := make(map[string]map[string]bool, len(tags))
	for _, tag := range tags {
		expected[tag.ID] = map[string]bool{}
	}
	for _, tag := range tags {
		for ancestor := byID[tag.ParentID]; ancestor != nil; ancestor = byID[ancestor.ParentID] {
			expected[ancestor.ID][tag.ID] = true
		}
	}

	for _, tag := range tags {
		want := expected[tag.ID]
		assert.Len(t, tag.ChildrenRecursive, len(want),
			"tag %s (%s) cached descendant count", tag.ID, tag.Name)
		for _, descendantID := range tag.ChildrenRecursive {
			assert.True(t, want[descendantID],
				"tag %s (%s) caches %s which is not a real descendant", tag.ID, tag.Name, descendantID)
		}
	}
}

func TestCreateTag(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	root := newTestTag("tag-work", "user-1", "Work", "")
	require.NoError(t, store.CreateTag(ctx, root))

	got, err := store.GetTag(ctx, "user-1", "tag-work")
	require.NoError(t, err)
	assert.Equal(t, "Work", got.Name)
	assert.True(t, got.IsRoot())
	assert.Empty(t, got.ChildrenRecursive)
}

func TestCreateTag_ChildUpdatesAncestors(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-work", "user-1", "Work", "")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-proj", "user-1", "Project A", "tag-work")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-sub", "user-1", "Subtask 1", "tag-proj")))

	work, err := store.GetTag(ctx, "user-1", "tag-work")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tag-proj", "tag-sub"}, work.ChildrenRecursive)

	proj, err := store.GetTag(ctx, "user-1", "tag-proj")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tag-sub"}, proj.ChildrenRecursive)

	assertClosuresConsistent(t, store, "user-1")
}

func TestCreateTag_DuplicateName(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-1", "user-1", "Work", "")))

	err := store.CreateTag(ctx, newTestTag("tag-2", "user-1", "Work", ""))
	assert.ErrorIs(t, err, ErrDuplicateTagName)

	// Same name under another owner is fine
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-3", "user-2", "Work", "")))
}

func TestCreateTag_InvalidParent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	err := store.CreateTag(ctx, newTestTag("tag-1", "user-1", "Work", "tag-missing"))
	assert.ErrorIs(t, err, ErrInvalidTagParent)

	// Another owner's tag is not a usable parent
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-other", "user-2", "Theirs", "")))
	err = store.CreateTag(ctx, newTestTag("tag-2", "user-1", "Work", "tag-other"))
	assert.ErrorIs(t, err, ErrInvalidTagParent)
}

func TestCreateTag_NameWithColon(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-1", "user-1", "reading: fiction", "")))

	got, err := store.FindTagByName(ctx, "user-1", "reading: fiction")
	require.NoError(t, err)
	assert.Equal(t, "tag-1", got.ID)
}

func TestUpdateTag_Rename(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-1", "user-1", "Work", "")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-2", "user-1", "Home", "")))

	name := "Office"
	updated, err := store.UpdateTag(ctx, "user-1", "tag-1", TagUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Office", updated.Name)

	// Old name is free again, new name is taken
	_, err = store.FindTagByName(ctx, "user-1", "Work")
	assert.ErrorIs(t, err, ErrTagNotFound)

	taken := "Office"
	_, err = store.UpdateTag(ctx, "user-1", "tag-2", TagUpdate{Name: &taken})
	assert.ErrorIs(t, err, ErrDuplicateTagName)

	// Renaming a tag to its current name is a no-op, not a conflict
	same := "Office"
	_, err = store.UpdateTag(ctx, "user-1", "tag-1", TagUpdate{Name: &same})
	assert.NoError(t, err)
}

func TestUpdateTag_MoveSubtree(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	// A > B > C, plus root D. Move B (with its subtree) under D.
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-a", "user-1", "A", "")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-b", "user-1", "B", "tag-a")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-c", "user-1", "C", "tag-b")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-d", "user-1", "D", "")))

	parent := "tag-d"
	moved, err := store.UpdateTag(ctx, "user-1", "tag-b", TagUpdate{ParentID: &parent})
	require.NoError(t, err)
	assert.Equal(t, "tag-d", moved.ParentID)
	assert.ElementsMatch(t, []string{"tag-c"}, moved.ChildrenRecursive)

	a, err := store.GetTag(ctx, "user-1", "tag-a")
	require.NoError(t, err)
	assert.Empty(t, a.ChildrenRecursive)

	d, err := store.GetTag(ctx, "user-1", "tag-d")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tag-b", "tag-c"}, d.ChildrenRecursive)

	assertClosuresConsistent(t, store, "user-1")
}

func TestUpdateTag_MoveBetweenSiblingsSharingAncestor(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	// root > left > leaf, root > right. Moving leaf from left to right patches
	// root on both the removal and the addition side; the net effect on root
	// must be zero.
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-root", "user-1", "Root", "")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-left", "user-1", "Left", "tag-root")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-leaf", "user-1", "Leaf", "tag-left")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-right", "user-1", "Right", "tag-root")))

	parent := "tag-right"
	_, err := store.UpdateTag(ctx, "user-1", "tag-leaf", TagUpdate{ParentID: &parent})
	require.NoError(t, err)

	root, err := store.GetTag(ctx, "user-1", "tag-root")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tag-left", "tag-leaf", "tag-right"}, root.ChildrenRecursive)

	left, err := store.GetTag(ctx, "user-1", "tag-left")
	require.NoError(t, err)
	assert.Empty(t, left.ChildrenRecursive)

	assertClosuresConsistent(t, store, "user-1")
}

func TestUpdateTag_MoveToRoot(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-a", "user-1", "A", "")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-b", "user-1", "B", "tag-a")))

	root := ""
	moved, err := store.UpdateTag(ctx, "user-1", "tag-b", TagUpdate{ParentID: &root})
	require.NoError(t, err)
	assert.True(t, moved.IsRoot())

	a, err := store.GetTag(ctx, "user-1", "tag-a")
	require.NoError(t, err)
	assert.Empty(t, a.ChildrenRecursive)

	roots, err := store.ListDirectChildren(ctx, "user-1", "")
	require.NoError(t, err)
	require.Len(t, roots, 2)
}

func TestUpdateTag_SelfParent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-a", "user-1", "A", "")))

	parent := "tag-a"
	_, err := store.UpdateTag(ctx, "user-1", "tag-a", TagUpdate{ParentID: &parent})
	assert.ErrorIs(t, err, ErrSelfTagParent)
}

func TestUpdateTag_CycleRejected(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-a", "user-1", "A", "")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-b", "user-1", "B", "tag-a")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-c", "user-1", "C", "tag-b")))

	// Moving A under its grandchild would close a cycle
	parent := "tag-c"
	_, err := store.UpdateTag(ctx, "user-1", "tag-a", TagUpdate{ParentID: &parent})
	assert.ErrorIs(t, err, ErrCircularTagReference)

	// Nothing moved
	a, err := store.GetTag(ctx, "user-1", "tag-a")
	require.NoError(t, err)
	assert.True(t, a.IsRoot())
	assert.ElementsMatch(t, []string{"tag-b", "tag-c"}, a.ChildrenRecursive)
}

func TestDeleteTag_SplicesChildren(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	// Work > Project A > Subtask 1. Deleting Project A must leave Subtask 1
	// as a direct child of Work, and Work's cache keeps Subtask 1 while
	// forgetting Project A.
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-work", "user-1", "Work", "")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-proj", "user-1", "Project A", "tag-work")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-sub", "user-1", "Subtask 1", "tag-proj")))

	require.NoError(t, store.DeleteTag(ctx, "user-1", "tag-proj"))

	_, err := store.GetTag(ctx, "user-1", "tag-proj")
	assert.ErrorIs(t, err, ErrTagNotFound)

	sub, err := store.GetTag(ctx, "user-1", "tag-sub")
	require.NoError(t, err)
	assert.Equal(t, "tag-work", sub.ParentID)

	work, err := store.GetTag(ctx, "user-1", "tag-work")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tag-sub"}, work.ChildrenRecursive)

	children, err := store.ListDirectChildren(ctx, "user-1", "tag-work")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "tag-sub", children[0].ID)

	assertClosuresConsistent(t, store, "user-1")
}

func TestDeleteTag_RootWithChildren(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-a", "user-1", "A", "")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-b", "user-1", "B", "tag-a")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-c", "user-1", "C", "tag-a")))

	require.NoError(t, store.DeleteTag(ctx, "user-1", "tag-a"))

	roots, err := store.ListDirectChildren(ctx, "user-1", "")
	require.NoError(t, err)
	require.Len(t, roots, 2)

	// The deleted tag's name is reusable
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-a2", "user-1", "A", "")))

	assertClosuresConsistent(t, store, "user-1")
}

func TestDeleteTag_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	err := store.DeleteTag(ctx, "user-1", "tag-missing")
	assert.ErrorIs(t, err, ErrTagNotFound)

	// Another owner's tag reads as missing
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-1", "user-2", "Theirs", "")))
	err = store.DeleteTag(ctx, "user-1", "tag-1")
	assert.ErrorIs(t, err, ErrTagNotFound)
}

func TestListTagsByOwner(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-2", "user-1", "Beta", "")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-1", "user-1", "Alpha", "")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-3", "user-2", "Other", "")))

	tags, err := store.ListTagsByOwner(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "Alpha", tags[0].Name)
	assert.Equal(t, "Beta", tags[1].Name)

	empty, err := store.ListTagsByOwner(ctx, "user-3")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCountTagsByOwner(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	count, err := store.CountTagsByOwner(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-1", "user-1", "A", "")))
	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-2", "user-1", "B", "")))

	count, err = store.CountTagsByOwner(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAncestorWalk_CorruptionDetected(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	// Plant two tags whose parent pointers form a loop, bypassing the
	// command handlers, then check that a structural edit fails fast
	// instead of spinning.
	a := newTestTag("tag-a", "user-1", "A", "tag-b")
	b := newTestTag("tag-b", "user-1", "B", "tag-a")
	require.NoError(t, store.set(tagKey(a.ID), a))
	require.NoError(t, store.set(tagKey(b.ID), b))
	require.NoError(t, store.set(tagOwnerIndexKey("user-1", a.ID), struct{}{}))
	require.NoError(t, store.set(tagOwnerIndexKey("user-1", b.ID), struct{}{}))

	err := store.CreateTag(ctx, newTestTag("tag-c", "user-1", "C", "tag-a"))
	assert.ErrorIs(t, err, ErrTagTreeCorrupted)

	err = store.DeleteTag(ctx, "user-1", "tag-a")
	assert.ErrorIs(t, err, ErrTagTreeCorrupted)
}

func TestAncestorWalk_MissingAncestorStopsWalk(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	// A tag pointing at a vanished parent is an orphan, not a fatal error.
	orphan := newTestTag("tag-orphan", "user-1", "Orphan", "tag-gone")
	require.NoError(t, store.set(tagKey(orphan.ID), orphan))
	require.NoError(t, store.set(tagOwnerIndexKey("user-1", orphan.ID), struct{}{}))
	require.NoError(t, store.set(tagParentIndexKey("user-1", "tag-gone", orphan.ID), struct{}{}))

	require.NoError(t, store.CreateTag(ctx, newTestTag("tag-child", "user-1", "Child", "tag-orphan")))

	parent, err := store.GetTag(ctx, "user-1", "tag-orphan")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tag-child"}, parent.ChildrenRecursive)
}
