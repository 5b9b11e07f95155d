package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapture_HasAnyTag(t *testing.T) {
	c := &Capture{ID: "cap-1", TagIDs: []string{"tag-a", "tag-b"}}

	assert.True(t, c.HasAnyTag([]string{"tag-b", "tag-z"}))
	assert.False(t, c.HasAnyTag([]string{"tag-x", "tag-y"}))
	assert.False(t, c.HasAnyTag(nil))
}

func TestCapture_Complete(t *testing.T) {
	c := &Capture{ID: "cap-1", Kind: CaptureKindTask}

	c.Complete()
	assert.True(t, c.Completed)
	require.NotNil(t, c.CompletedAt)

	// Completing again keeps the original timestamp.
	first := *c.CompletedAt
	c.Complete()
	assert.Equal(t, first, *c.CompletedAt)
}

func TestCaptureKind_IsValid(t *testing.T) {
	assert.True(t, CaptureKindNote.IsValid())
	assert.True(t, CaptureKindTask.IsValid())
	assert.False(t, CaptureKind("reminder").IsValid())
}
