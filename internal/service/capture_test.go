package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangleapp/tangle-server/internal/domain"
	domainerrors "github.com/tangleapp/tangle-server/internal/errors"
	"github.com/tangleapp/tangle-server/internal/sse"
	"github.com/tangleapp/tangle-server/internal/store"
	"github.com/tangleapp/tangle-server/internal/validation"
)

// setupTestCaptureService creates capture and tag services over one temp database.
func setupTestCaptureService(t *testing.T) (*CaptureService, *TagService, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "tangle-capture-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	sseManager := sse.NewManager(logger)

	testStore, err := store.New(dbPath, nil)
	require.NoError(t, err)

	validator := validation.New()
	tagService := NewTagService(testStore, sseManager, validator, logger)
	captureService := NewCaptureService(testStore, tagService, sseManager, validator, logger)

	cleanup := func() {
		_ = testStore.Close()    //nolint:errcheck // Test cleanup
		_ = os.RemoveAll(tmpDir) //nolint:errcheck // Test cleanup
	}

	return captureService, tagService, cleanup
}

func TestCaptureService_CreateCapture(t *testing.T) {
	svc, _, cleanup := setupTestCaptureService(t)
	defer cleanup()

	ctx := context.Background()

	capture, err := svc.CreateCapture(ctx, "user-1", CreateCaptureRequest{
		Kind:    "note",
		Title:   "Meeting notes",
		Content: "Plain text body",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CaptureKindNote, capture.Kind)
	assert.Equal(t, "Plain text body", capture.Content)
	assert.False(t, capture.Completed)
}

func TestCaptureService_CreateCapture_ConvertsHTML(t *testing.T) {
	svc, _, cleanup := setupTestCaptureService(t)
	defer cleanup()

	ctx := context.Background()

	capture, err := svc.CreateCapture(ctx, "user-1", CreateCaptureRequest{
		Kind:    "note",
		Title:   "Clipped page",
		Content: "<h1>Heading</h1><p>Some <strong>bold</strong> text</p>",
	})
	require.NoError(t, err)
	assert.NotContains(t, capture.Content, "<h1>")
	assert.Contains(t, capture.Content, "Heading")
	assert.True(t, strings.Contains(capture.Content, "**bold**"))
}

func TestCaptureService_CreateCapture_UnknownTag(t *testing.T) {
	svc, _, cleanup := setupTestCaptureService(t)
	defer cleanup()

	ctx := context.Background()

	_, err := svc.CreateCapture(ctx, "user-1", CreateCaptureRequest{
		Kind:   "task",
		Title:  "Tagged task",
		TagIDs: []string{"tag-missing"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrValidation))
}

func TestCaptureService_UpdateCapture_Complete(t *testing.T) {
	svc, _, cleanup := setupTestCaptureService(t)
	defer cleanup()

	ctx := context.Background()

	capture, err := svc.CreateCapture(ctx, "user-1", CreateCaptureRequest{
		Kind:  "task",
		Title: "Finish the report",
	})
	require.NoError(t, err)

	done := true
	updated, err := svc.UpdateCapture(ctx, "user-1", capture.ID, UpdateCaptureRequest{Completed: &done})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	require.NotNil(t, updated.CompletedAt)
	firstCompletion := *updated.CompletedAt

	// Completing again keeps the original completion time
	updated, err = svc.UpdateCapture(ctx, "user-1", capture.ID, UpdateCaptureRequest{Completed: &done})
	require.NoError(t, err)
	assert.Equal(t, firstCompletion, *updated.CompletedAt)

	// Un-completing clears the timestamp
	undone := false
	updated, err = svc.UpdateCapture(ctx, "user-1", capture.ID, UpdateCaptureRequest{Completed: &undone})
	require.NoError(t, err)
	assert.False(t, updated.Completed)
	assert.Nil(t, updated.CompletedAt)
}

func TestCaptureService_CompleteCapture(t *testing.T) {
	svc, _, cleanup := setupTestCaptureService(t)
	defer cleanup()

	ctx := context.Background()

	capture, err := svc.CreateCapture(ctx, "user-1", CreateCaptureRequest{
		Kind:  "task",
		Title: "Water the plants",
	})
	require.NoError(t, err)

	completed, err := svc.CompleteCapture(ctx, "user-1", capture.ID)
	require.NoError(t, err)
	assert.True(t, completed.Completed)
	require.NotNil(t, completed.CompletedAt)

	_, err = svc.CompleteCapture(ctx, "user-1", "cap-missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestCaptureService_ListCaptures_CompletedFilter(t *testing.T) {
	svc, _, cleanup := setupTestCaptureService(t)
	defer cleanup()

	ctx := context.Background()

	done, err := svc.CreateCapture(ctx, "user-1", CreateCaptureRequest{Kind: "task", Title: "Done"})
	require.NoError(t, err)
	_, err = svc.CreateCapture(ctx, "user-1", CreateCaptureRequest{Kind: "task", Title: "Open"})
	require.NoError(t, err)

	_, err = svc.CompleteCapture(ctx, "user-1", done.ID)
	require.NoError(t, err)

	isDone := true
	captures, err := svc.ListCaptures(ctx, "user-1", CaptureFilter{Completed: &isDone})
	require.NoError(t, err)
	require.Len(t, captures, 1)
	assert.Equal(t, "Done", captures[0].Title)

	isDone = false
	captures, err = svc.ListCaptures(ctx, "user-1", CaptureFilter{Completed: &isDone})
	require.NoError(t, err)
	require.Len(t, captures, 1)
	assert.Equal(t, "Open", captures[0].Title)
}

func TestCaptureService_ListCaptures_TagFilter(t *testing.T) {
	svc, tags, cleanup := setupTestCaptureService(t)
	defer cleanup()

	ctx := context.Background()

	work, err := tags.CreateTag(ctx, "user-1", CreateTagRequest{Name: "Work"})
	require.NoError(t, err)
	project, err := tags.CreateTag(ctx, "user-1", CreateTagRequest{Name: "Project A", ParentID: work.ID})
	require.NoError(t, err)
	home, err := tags.CreateTag(ctx, "user-1", CreateTagRequest{Name: "Home"})
	require.NoError(t, err)

	_, err = svc.CreateCapture(ctx, "user-1", CreateCaptureRequest{
		Kind: "note", Title: "Project note", TagIDs: []string{project.ID},
	})
	require.NoError(t, err)
	_, err = svc.CreateCapture(ctx, "user-1", CreateCaptureRequest{
		Kind: "task", Title: "Home chore", TagIDs: []string{home.ID},
	})
	require.NoError(t, err)

	// Exact tag match misses descendants
	exact, err := svc.ListCaptures(ctx, "user-1", CaptureFilter{TagID: work.ID})
	require.NoError(t, err)
	assert.Empty(t, exact)

	// Subtree match picks up the descendant tag
	subtree, err := svc.ListCaptures(ctx, "user-1", CaptureFilter{TagID: work.ID, IncludeDescendants: true})
	require.NoError(t, err)
	require.Len(t, subtree, 1)
	assert.Equal(t, "Project note", subtree[0].Title)

	// Kind filter
	taskList, err := svc.ListCaptures(ctx, "user-1", CaptureFilter{Kind: "task"})
	require.NoError(t, err)
	require.Len(t, taskList, 1)
	assert.Equal(t, "Home chore", taskList[0].Title)
}

func TestCaptureService_DeleteCapture(t *testing.T) {
	svc, _, cleanup := setupTestCaptureService(t)
	defer cleanup()

	ctx := context.Background()

	capture, err := svc.CreateCapture(ctx, "user-1", CreateCaptureRequest{Kind: "note", Title: "Temp"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteCapture(ctx, "user-1", capture.ID))

	_, err = svc.GetCapture(ctx, "user-1", capture.ID)
	assert.True(t, errors.Is(err, domainerrors.ErrNotFound))
}
