package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tangleapp/tangle-server/internal/domain"
	"github.com/tangleapp/tangle-server/internal/service"
)

func (s *Server) registerTagRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags",
		Summary:     "List tags",
		Description: "Returns all tags for the current user as a flat list",
		Tags:        []string{"Tags"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListTags)

	huma.Register(s.api, huma.Operation{
		OperationID: "getTagTree",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags/tree",
		Summary:     "Get tag tree",
		Description: "Returns the current user's tags as a nested forest",
		Tags:        []string{"Tags"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetTagTree)

	huma.Register(s.api, huma.Operation{
		OperationID: "createTag",
		Method:      http.MethodPost,
		Path:        "/api/v1/tags",
		Summary:     "Create tag",
		Description: "Creates a new tag, optionally under a parent",
		Tags:        []string{"Tags"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleCreateTag)

	huma.Register(s.api, huma.Operation{
		OperationID: "getTag",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags/{id}",
		Summary:     "Get tag",
		Description: "Returns a tag by ID",
		Tags:        []string{"Tags"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetTag)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateTag",
		Method:      http.MethodPatch,
		Path:        "/api/v1/tags/{id}",
		Summary:     "Update tag",
		Description: "Renames, recolors or moves a tag",
		Tags:        []string{"Tags"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateTag)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteTag",
		Method:      http.MethodDelete,
		Path:        "/api/v1/tags/{id}",
		Summary:     "Delete tag",
		Description: "Deletes a tag, splicing its children onto its parent",
		Tags:        []string{"Tags"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteTag)

	huma.Register(s.api, huma.Operation{
		OperationID: "getTagDescendants",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags/{id}/descendants",
		Summary:     "Get tag descendants",
		Description: "Returns the tag's ID plus every descendant tag ID",
		Tags:        []string{"Tags"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetTagDescendants)
}

// === DTOs ===

// TagResponse contains tag data in API responses.
type TagResponse struct {
	ID            string    `json:"id" doc:"Tag ID"`
	Name          string    `json:"name" doc:"Tag name"`
	ParentID      string    `json:"parent_id,omitempty" doc:"Parent tag ID, empty for root tags"`
	Color         string    `json:"color,omitempty" doc:"Display color"`
	DescendantIDs []string  `json:"descendant_ids,omitempty" doc:"IDs of every tag in this tag's subtree"`
	CreatedAt     time.Time `json:"created_at" doc:"Creation time"`
	UpdatedAt     time.Time `json:"updated_at" doc:"Last update time"`
}

// TagTreeNode is a tag with its direct children nested inside.
type TagTreeNode struct {
	TagResponse
	Children []TagTreeNode `json:"children" doc:"Child tags sorted by name"`
}

// ListTagsInput contains parameters for listing tags.
type ListTagsInput struct {
	Authorization string `header:"Authorization"`
}

// ListTagsResponse contains a flat list of tags.
type ListTagsResponse struct {
	Tags []TagResponse `json:"tags" doc:"List of tags"`
}

// ListTagsOutput wraps the list tags response for Huma.
type ListTagsOutput struct {
	Body ListTagsResponse
}

// TagTreeResponse contains the nested tag forest.
type TagTreeResponse struct {
	Roots []TagTreeNode `json:"roots" doc:"Root tags with nested children"`
}

// TagTreeOutput wraps the tag tree response for Huma.
type TagTreeOutput struct {
	Body TagTreeResponse
}

// CreateTagInput wraps the create tag request for Huma.
type CreateTagInput struct {
	Authorization string `header:"Authorization"`
	Body          service.CreateTagRequest
}

// TagOutput wraps a single tag response for Huma.
type TagOutput struct {
	Body TagResponse
}

// GetTagInput contains parameters for getting a tag.
type GetTagInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Tag ID"`
}

// UpdateTagInput wraps the update tag request for Huma.
type UpdateTagInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Tag ID"`
	Body          service.UpdateTagRequest
}

// DeleteTagInput contains parameters for deleting a tag.
type DeleteTagInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Tag ID"`
}

// TagDescendantsInput contains parameters for the descendant set lookup.
type TagDescendantsInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Tag ID"`
}

// TagDescendantsResponse contains a tag's resolved descendant set.
type TagDescendantsResponse struct {
	TagIDs []string `json:"tag_ids" doc:"The tag's ID plus every descendant tag ID"`
}

// TagDescendantsOutput wraps the descendant set response for Huma.
type TagDescendantsOutput struct {
	Body TagDescendantsResponse
}

// === Handlers ===

func (s *Server) handleListTags(ctx context.Context, input *ListTagsInput) (*ListTagsOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	tags, err := s.services.Tag.ListTags(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]TagResponse, len(tags))
	for i, t := range tags {
		resp[i] = tagResponse(t)
	}

	return &ListTagsOutput{Body: ListTagsResponse{Tags: resp}}, nil
}

func (s *Server) handleGetTagTree(ctx context.Context, input *ListTagsInput) (*TagTreeOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	roots, err := s.services.Tag.GetTagTree(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &TagTreeOutput{Body: TagTreeResponse{Roots: tagTreeNodes(roots)}}, nil
}

func (s *Server) handleCreateTag(ctx context.Context, input *CreateTagInput) (*TagOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	t, err := s.services.Tag.CreateTag(ctx, userID, input.Body)
	if err != nil {
		return nil, err
	}

	return &TagOutput{Body: tagResponse(t)}, nil
}

func (s *Server) handleGetTag(ctx context.Context, input *GetTagInput) (*TagOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	t, err := s.services.Tag.GetTag(ctx, userID, input.ID)
	if err != nil {
		return nil, err
	}

	return &TagOutput{Body: tagResponse(t)}, nil
}

func (s *Server) handleUpdateTag(ctx context.Context, input *UpdateTagInput) (*TagOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	t, err := s.services.Tag.UpdateTag(ctx, userID, input.ID, input.Body)
	if err != nil {
		return nil, err
	}

	return &TagOutput{Body: tagResponse(t)}, nil
}

func (s *Server) handleDeleteTag(ctx context.Context, input *DeleteTagInput) (*MessageOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	if err := s.services.Tag.DeleteTag(ctx, userID, input.ID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Tag deleted"}}, nil
}

func (s *Server) handleGetTagDescendants(ctx context.Context, input *TagDescendantsInput) (*TagDescendantsOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	tagIDs, err := s.services.Tag.ResolveDescendantSet(ctx, userID, input.ID)
	if err != nil {
		return nil, err
	}

	return &TagDescendantsOutput{Body: TagDescendantsResponse{TagIDs: tagIDs}}, nil
}

func tagResponse(t *domain.Tag) TagResponse {
	return TagResponse{
		ID:            t.ID,
		Name:          t.Name,
		ParentID:      t.ParentID,
		Color:         t.Color,
		DescendantIDs: t.ChildrenRecursive,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func tagTreeNodes(nodes []*domain.TagNode) []TagTreeNode {
	out := make([]TagTreeNode, len(nodes))
	for i, node := range nodes {
		out[i] = TagTreeNode{
			TagResponse: tagResponse(&node.Tag),
			Children:    tagTreeNodes(node.Children),
		}
	}
	return out
}
