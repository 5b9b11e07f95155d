package domain

import (
	"slices"
	"time"
)

// Tag is a node in a per-owner forest of labels. Tags organize captures:
// a capture tagged "ProjectA" is found when filtering by "Work" if
// ProjectA sits under Work in the tree.
//
// ParentID is the source of truth for tree shape. ChildrenRecursive is a
// denormalized cache of every id reachable below this tag (children,
// grandchildren, ...), maintained transactionally alongside the edges it
// derives from. Records written before the cache existed carry no field;
// a nil slice always reads as the empty set.
type Tag struct {
	ID                string    `json:"id"`
	OwnerID           string    `json:"owner_id"`
	Name              string    `json:"name"`                 // Unique within owner, case-sensitive exact match
	ParentID          string    `json:"parent_id,omitempty"`  // Empty for root tags
	Color             string    `json:"color,omitempty"`      // Display attribute, no semantics
	ChildrenRecursive []string  `json:"children_recursive,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsRoot returns true if this tag has no parent.
func (t *Tag) IsRoot() bool {
	return t.ParentID == ""
}

// Touch updates the UpdatedAt timestamp.
func (t *Tag) Touch() {
	t.UpdatedAt = time.Now()
}

// HasDescendant reports whether id is in this tag's descendant cache.
func (t *Tag) HasDescendant(id string) bool {
	return slices.Contains(t.ChildrenRecursive, id)
}

// AddDescendants unions ids into the descendant cache.
// The cache stays sorted and duplicate-free.
func (t *Tag) AddDescendants(ids []string) {
	if len(ids) == 0 {
		return
	}
	t.ChildrenRecursive = append(t.ChildrenRecursive, ids...)
	slices.Sort(t.ChildrenRecursive)
	t.ChildrenRecursive = slices.Compact(t.ChildrenRecursive)
}

// RemoveDescendants subtracts ids from the descendant cache.
func (t *Tag) RemoveDescendants(ids []string) {
	if len(ids) == 0 || len(t.ChildrenRecursive) == 0 {
		return
	}
	remove := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		remove[id] = struct{}{}
	}
	t.ChildrenRecursive = slices.DeleteFunc(t.ChildrenRecursive, func(id string) bool {
		_, ok := remove[id]
		return ok
	})
}

// Subtree returns the tag's own id plus every descendant id, the set a
// filter on this tag expands to ("this tag or any of its sub-tags").
func (t *Tag) Subtree() []string {
	out := make([]string, 0, len(t.ChildrenRecursive)+1)
	out = append(out, t.ID)
	out = append(out, t.ChildrenRecursive...)
	return out
}
