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
	"github.com/tangleapp/tangle-server/internal/sse"
	"github.com/tangleapp/tangle-server/internal/store"
	"github.com/tangleapp/tangle-server/internal/validation"
)

// TagService orchestrates tag tree operations. Every structural edit goes
// through the store as one atomic command; this layer adds validation, id
// generation, event emission and error translation.
type TagService struct {
	store      *store.Store
	sseManager *sse.Manager
	validator  *validation.Validator
	logger     *slog.Logger
}

// NewTagService creates a new tag service.
func NewTagService(
	store *store.Store,
	sseManager *sse.Manager,
	validator *validation.Validator,
	logger *slog.Logger,
) *TagService {
	return &TagService{
		store:      store,
		sseManager: sseManager,
		validator:  validator,
		logger:     logger,
	}
}

// CreateTagRequest contains the data for a new tag.
type CreateTagRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	ParentID string `json:"parent_id"`
	Color    string `json:"color" validate:"omitempty,hexcolor"`
}

// UpdateTagRequest contains a partial tag update. Nil fields stay unchanged;
// an empty parent_id moves the tag to the root.
type UpdateTagRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	ParentID *string `json:"parent_id"`
	Color    *string `json:"color" validate:"omitempty,hexcolor"`
}

// CreateTag creates a tag under an optional parent.
func (s *TagService) CreateTag(ctx context.Context, ownerID string, req CreateTagRequest) (*domain.Tag, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	tagID, err := id.Generate("tag")
	if err != nil {
		return nil, fmt.Errorf("generate tag ID: %w", err)
	}

	now := time.Now()
	tag := &domain.Tag{
		ID:        tagID,
		OwnerID:   ownerID,
		Name:      req.Name,
		ParentID:  req.ParentID,
		Color:     req.Color,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateTag(ctx, tag); err != nil {
		return nil, translateTagError(err)
	}

	s.sseManager.Emit(sse.NewTagCreatedEvent(tag))

	s.logger.Info("tag created",
		"tag_id", tag.ID,
		"owner_id", ownerID,
		"parent_id", tag.ParentID,
	)

	return tag, nil
}

// UpdateTag renames, recolors or moves a tag.
func (s *TagService) UpdateTag(ctx context.Context, ownerID, tagID string, req UpdateTagRequest) (*domain.Tag, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	tag, err := s.store.UpdateTag(ctx, ownerID, tagID, store.TagUpdate{
		Name:     req.Name,
		ParentID: req.ParentID,
		Color:    req.Color,
	})
	if err != nil {
		return nil, translateTagError(err)
	}

	s.sseManager.Emit(sse.NewTagUpdatedEvent(tag))

	s.logger.Info("tag updated",
		"tag_id", tagID,
		"owner_id", ownerID,
		"moved", req.ParentID != nil,
	)

	return tag, nil
}

// DeleteTag removes a tag and reparents its direct children onto the deleted
// tag's parent.
func (s *TagService) DeleteTag(ctx context.Context, ownerID, tagID string) error {
	if err := s.store.DeleteTag(ctx, ownerID, tagID); err != nil {
		return translateTagError(err)
	}

	s.sseManager.Emit(sse.NewTagDeletedEvent(ownerID, tagID))

	s.logger.Info("tag deleted",
		"tag_id", tagID,
		"owner_id", ownerID,
	)

	return nil
}

// GetTag returns a single tag.
func (s *TagService) GetTag(ctx context.Context, ownerID, tagID string) (*domain.Tag, error) {
	tag, err := s.store.GetTag(ctx, ownerID, tagID)
	if err != nil {
		return nil, translateTagError(err)
	}
	return tag, nil
}

// ListTags returns all of an owner's tags as a flat list.
func (s *TagService) ListTags(ctx context.Context, ownerID string) ([]*domain.Tag, error) {
	return s.store.ListTagsByOwner(ctx, ownerID)
}

// GetTagTree returns the owner's tags assembled into a forest of nested
// nodes, roots sorted by name.
func (s *TagService) GetTagTree(ctx context.Context, ownerID string) ([]*domain.TagNode, error) {
	tags, err := s.store.ListTagsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return domain.BuildTagTree(tags), nil
}

// ResolveDescendantSet returns the ids of a tag and its whole subtree in one
// cheap read, for "this tag or anything under it" queries.
func (s *TagService) ResolveDescendantSet(ctx context.Context, ownerID, tagID string) ([]string, error) {
	tag, err := s.store.GetTag(ctx, ownerID, tagID)
	if err != nil {
		return nil, translateTagError(err)
	}
	return tag.Subtree(), nil
}

// translateTagError converts store sentinels into domain errors with the
// right HTTP semantics.
func translateTagError(err error) error {
	switch {
	case errors.Is(err, store.ErrTagNotFound):
		return domainerrors.NotFound("tag not found").WithCause(err)
	case errors.Is(err, store.ErrDuplicateTagName):
		return domainerrors.DuplicateName("a tag with this name already exists").WithCause(err)
	case errors.Is(err, store.ErrInvalidTagParent):
		return domainerrors.InvalidParent("parent tag does not exist").WithCause(err)
	case errors.Is(err, store.ErrSelfTagParent):
		return domainerrors.SelfParent("a tag cannot be its own parent").WithCause(err)
	case errors.Is(err, store.ErrCircularTagReference):
		return domainerrors.CircularReference("move would place a tag under its own descendant").WithCause(err)
	case errors.Is(err, store.ErrTagTreeCorrupted):
		return domainerrors.InternalConsistency("tag ancestry is corrupted").WithCause(err)
	default:
		return err
	}
}
