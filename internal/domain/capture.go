package domain

import (
	"slices"
	"time"
)

// CaptureKind distinguishes what a capture has been triaged into.
type CaptureKind string

const (
	// CaptureKindNote is reference material with no completion state.
	CaptureKindNote CaptureKind = "note"
	// CaptureKindTask is actionable and can be completed.
	CaptureKindTask CaptureKind = "task"
)

// IsValid reports whether k is a known capture kind.
func (k CaptureKind) IsValid() bool {
	return k == CaptureKindNote || k == CaptureKindTask
}

// Capture is a single piece of captured input, a note or a task, owned by
// one user. Content is Markdown. TagIDs reference the owner's tags; captures
// carry no obligation toward the tag tree's shape, and a deleted tag may
// leave dangling ids here.
type Capture struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"owner_id"`
	Kind        CaptureKind `json:"kind"`
	Title       string      `json:"title,omitempty"`
	Content     string      `json:"content"`
	TagIDs      []string    `json:"tag_ids,omitempty"`
	Completed   bool        `json:"completed"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Touch updates the UpdatedAt timestamp.
func (c *Capture) Touch() {
	c.UpdatedAt = time.Now()
}

// HasTag reports whether the capture carries the given tag id.
func (c *Capture) HasTag(tagID string) bool {
	return slices.Contains(c.TagIDs, tagID)
}

// HasAnyTag reports whether the capture carries at least one of the given ids.
// Used by tag filtering after a selected tag is expanded to its subtree.
func (c *Capture) HasAnyTag(tagIDs []string) bool {
	for _, id := range tagIDs {
		if slices.Contains(c.TagIDs, id) {
			return true
		}
	}
	return false
}

// Complete marks a task capture as done. No-op if already completed.
func (c *Capture) Complete() {
	if c.Completed {
		return
	}
	now := time.Now()
	c.Completed = true
	c.CompletedAt = &now
	c.UpdatedAt = now
}
