package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tangleapp/tangle-server/internal/domain"
	domainerrors "github.com/tangleapp/tangle-server/internal/errors"
	"github.com/tangleapp/tangle-server/internal/id"
	"github.com/tangleapp/tangle-server/internal/markdown"
	"github.com/tangleapp/tangle-server/internal/sse"
	"github.com/tangleapp/tangle-server/internal/store"
	"github.com/tangleapp/tangle-server/internal/validation"
)

// CaptureService manages capture ingest and retrieval. HTML content (from
// browser clippers or share sheets) is converted to Markdown at ingest time.
type CaptureService struct {
	store      *store.Store
	tagService *TagService
	sseManager *sse.Manager
	validator  *validation.Validator
	logger     *slog.Logger
}

// NewCaptureService creates a new capture service.
func NewCaptureService(
	store *store.Store,
	tagService *TagService,
	sseManager *sse.Manager,
	validator *validation.Validator,
	logger *slog.Logger,
) *CaptureService {
	return &CaptureService{
		store:      store,
		tagService: tagService,
		sseManager: sseManager,
		validator:  validator,
		logger:     logger,
	}
}

// CreateCaptureRequest contains the data for a new capture.
type CreateCaptureRequest struct {
	Kind    string   `json:"kind" validate:"required,oneof=note task"`
	Title   string   `json:"title" validate:"required,max=500"`
	Content string   `json:"content"`
	TagIDs  []string `json:"tag_ids"`
}

// UpdateCaptureRequest contains a partial capture update.
type UpdateCaptureRequest struct {
	Title     *string   `json:"title" validate:"omitempty,min=1,max=500"`
	Content   *string   `json:"content"`
	TagIDs    *[]string `json:"tag_ids"`
	Completed *bool     `json:"completed"`
}

// CaptureFilter narrows ListCaptures results. When TagID is set with
// IncludeDescendants, captures tagged anywhere in that tag's subtree match.
type CaptureFilter struct {
	Kind               string
	TagID              string
	IncludeDescendants bool
	Completed          *bool
}

// CreateCapture ingests a new note or task.
func (s *CaptureService) CreateCapture(ctx context.Context, ownerID string, req CreateCaptureRequest) (*domain.Capture, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	if err := s.checkTagsExist(ctx, ownerID, req.TagIDs); err != nil {
		return nil, err
	}

	captureID, err := id.Generate("cap")
	if err != nil {
		return nil, fmt.Errorf("generate capture ID: %w", err)
	}

	content := req.Content
	if markdown.ContainsHTML(content) {
		content = markdown.FromHTML(content)
	}

	now := time.Now()
	capture := &domain.Capture{
		ID:        captureID,
		OwnerID:   ownerID,
		Kind:      domain.CaptureKind(req.Kind),
		Title:     req.Title,
		Content:   content,
		TagIDs:    req.TagIDs,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateCapture(ctx, capture); err != nil {
		return nil, err
	}

	s.sseManager.Emit(sse.NewCaptureCreatedEvent(capture))

	s.logger.Info("capture created",
		"capture_id", capture.ID,
		"owner_id", ownerID,
		"kind", capture.Kind,
	)

	return capture, nil
}

// UpdateCapture applies a partial update to a capture.
func (s *CaptureService) UpdateCapture(ctx context.Context, ownerID, captureID string, req UpdateCaptureRequest) (*domain.Capture, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	capture, err := s.store.GetCapture(ctx, ownerID, captureID)
	if err != nil {
		return nil, translateCaptureError(err)
	}

	if req.Title != nil {
		capture.Title = *req.Title
	}
	if req.Content != nil {
		content := *req.Content
		if markdown.ContainsHTML(content) {
			content = markdown.FromHTML(content)
		}
		capture.Content = content
	}
	if req.TagIDs != nil {
		if err := s.checkTagsExist(ctx, ownerID, *req.TagIDs); err != nil {
			return nil, err
		}
		capture.TagIDs = *req.TagIDs
	}
	if req.Completed != nil {
		if *req.Completed {
			capture.Complete()
		} else {
			capture.Completed = false
			capture.CompletedAt = nil
		}
	}

	capture.Touch()
	if err := s.store.UpdateCapture(ctx, capture); err != nil {
		return nil, translateCaptureError(err)
	}

	s.sseManager.Emit(sse.NewCaptureUpdatedEvent(capture))

	return capture, nil
}

// CompleteCapture marks a capture done. Completing an already-completed
// capture keeps the original completion time.
func (s *CaptureService) CompleteCapture(ctx context.Context, ownerID, captureID string) (*domain.Capture, error) {
	capture, err := s.store.GetCapture(ctx, ownerID, captureID)
	if err != nil {
		return nil, translateCaptureError(err)
	}

	capture.Complete()
	capture.Touch()
	if err := s.store.UpdateCapture(ctx, capture); err != nil {
		return nil, translateCaptureError(err)
	}

	s.sseManager.Emit(sse.NewCaptureUpdatedEvent(capture))

	return capture, nil
}

// DeleteCapture removes a capture.
func (s *CaptureService) DeleteCapture(ctx context.Context, ownerID, captureID string) error {
	if err := s.store.DeleteCapture(ctx, ownerID, captureID); err != nil {
		return translateCaptureError(err)
	}

	s.sseManager.Emit(sse.NewCaptureDeletedEvent(ownerID, captureID))

	s.logger.Info("capture deleted",
		"capture_id", captureID,
		"owner_id", ownerID,
	)

	return nil
}

// GetCapture returns a single capture.
func (s *CaptureService) GetCapture(ctx context.Context, ownerID, captureID string) (*domain.Capture, error) {
	capture, err := s.store.GetCapture(ctx, ownerID, captureID)
	if err != nil {
		return nil, translateCaptureError(err)
	}
	return capture, nil
}

// ListCaptures returns an owner's captures, newest first, optionally filtered
// by kind and tag.
func (s *CaptureService) ListCaptures(ctx context.Context, ownerID string, filter CaptureFilter) ([]*domain.Capture, error) {
	captures, err := s.store.ListCapturesByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var tagSet []string
	if filter.TagID != "" {
		if filter.IncludeDescendants {
			tagSet, err = s.tagService.ResolveDescendantSet(ctx, ownerID, filter.TagID)
			if err != nil {
				return nil, err
			}
		} else {
			tagSet = []string{filter.TagID}
		}
	}

	filtered := captures[:0]
	for _, capture := range captures {
		if filter.Kind != "" && string(capture.Kind) != filter.Kind {
			continue
		}
		if tagSet != nil && !capture.HasAnyTag(tagSet) {
			continue
		}
		if filter.Completed != nil && capture.Completed != *filter.Completed {
			continue
		}
		filtered = append(filtered, capture)
	}
	return filtered, nil
}

// checkTagsExist verifies every tag id belongs to the owner.
func (s *CaptureService) checkTagsExist(ctx context.Context, ownerID string, tagIDs []string) error {
	for _, tagID := range tagIDs {
		if _, err := s.store.GetTag(ctx, ownerID, tagID); err != nil {
			if errors.Is(err, store.ErrTagNotFound) {
				return domainerrors.Validationf("tag %s does not exist", tagID)
			}
			return err
		}
	}
	return nil
}

func translateCaptureError(err error) error {
	if errors.Is(err, store.ErrCaptureNotFound) {
		return domainerrors.NotFound("capture not found").WithCause(err)
	}
	return err
}
