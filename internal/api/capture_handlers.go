package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tangleapp/tangle-server/internal/domain"
	"github.com/tangleapp/tangle-server/internal/service"
)

func (s *Server) registerCaptureRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listCaptures",
		Method:      http.MethodGet,
		Path:        "/api/v1/captures",
		Summary:     "List captures",
		Description: "Returns the current user's captures, newest first, optionally filtered by kind and tag",
		Tags:        []string{"Captures"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListCaptures)

	huma.Register(s.api, huma.Operation{
		OperationID: "createCapture",
		Method:      http.MethodPost,
		Path:        "/api/v1/captures",
		Summary:     "Create capture",
		Description: "Ingests a new note or task",
		Tags:        []string{"Captures"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleCreateCapture)

	huma.Register(s.api, huma.Operation{
		OperationID: "getCapture",
		Method:      http.MethodGet,
		Path:        "/api/v1/captures/{id}",
		Summary:     "Get capture",
		Description: "Returns a capture by ID",
		Tags:        []string{"Captures"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetCapture)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateCapture",
		Method:      http.MethodPatch,
		Path:        "/api/v1/captures/{id}",
		Summary:     "Update capture",
		Description: "Updates a capture's title, content, tags or completion state",
		Tags:        []string{"Captures"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateCapture)

	huma.Register(s.api, huma.Operation{
		OperationID: "completeCapture",
		Method:      http.MethodPost,
		Path:        "/api/v1/captures/{id}/complete",
		Summary:     "Complete capture",
		Description: "Marks a capture done, keeping the original completion time on repeat calls",
		Tags:        []string{"Captures"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleCompleteCapture)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteCapture",
		Method:      http.MethodDelete,
		Path:        "/api/v1/captures/{id}",
		Summary:     "Delete capture",
		Description: "Deletes a capture",
		Tags:        []string{"Captures"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteCapture)
}

// === DTOs ===

// CaptureResponse contains capture data in API responses.
type CaptureResponse struct {
	ID          string     `json:"id" doc:"Capture ID"`
	Kind        string     `json:"kind" doc:"Capture kind, note or task" enum:"note,task"`
	Title       string     `json:"title,omitempty" doc:"Title"`
	Content     string     `json:"content" doc:"Markdown content"`
	TagIDs      []string   `json:"tag_ids,omitempty" doc:"Attached tag IDs"`
	Completed   bool       `json:"completed" doc:"Completion state, tasks only"`
	CompletedAt *time.Time `json:"completed_at,omitempty" doc:"Completion time"`
	CreatedAt   time.Time  `json:"created_at" doc:"Creation time"`
	UpdatedAt   time.Time  `json:"updated_at" doc:"Last update time"`
}

// ListCapturesInput contains parameters for listing captures.
type ListCapturesInput struct {
	Authorization      string `header:"Authorization"`
	Kind               string `query:"kind" enum:"note,task" required:"false" doc:"Filter by capture kind"`
	TagID              string `query:"tag_id" required:"false" doc:"Filter by attached tag"`
	IncludeDescendants bool   `query:"include_descendants" required:"false" doc:"Match captures tagged anywhere in the tag's subtree"`
	Completed          string `query:"completed" enum:"true,false" required:"false" doc:"Filter by completion state"`
}

// ListCapturesResponse contains a list of captures.
type ListCapturesResponse struct {
	Captures []CaptureResponse `json:"captures" doc:"Captures, newest first"`
}

// ListCapturesOutput wraps the list captures response for Huma.
type ListCapturesOutput struct {
	Body ListCapturesResponse
}

// CreateCaptureInput wraps the create capture request for Huma.
type CreateCaptureInput struct {
	Authorization string `header:"Authorization"`
	Body          service.CreateCaptureRequest
}

// CaptureOutput wraps a single capture response for Huma.
type CaptureOutput struct {
	Body CaptureResponse
}

// GetCaptureInput contains parameters for getting a capture.
type GetCaptureInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Capture ID"`
}

// UpdateCaptureInput wraps the update capture request for Huma.
type UpdateCaptureInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Capture ID"`
	Body          service.UpdateCaptureRequest
}

// DeleteCaptureInput contains parameters for deleting a capture.
type DeleteCaptureInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Capture ID"`
}

// === Handlers ===

func (s *Server) handleListCaptures(ctx context.Context, input *ListCapturesInput) (*ListCapturesOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	filter := service.CaptureFilter{
		Kind:               input.Kind,
		TagID:              input.TagID,
		IncludeDescendants: input.IncludeDescendants,
	}
	if input.Completed != "" {
		completed := input.Completed == "true"
		filter.Completed = &completed
	}

	captures, err := s.services.Capture.ListCaptures(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	resp := make([]CaptureResponse, len(captures))
	for i, c := range captures {
		resp[i] = captureResponse(c)
	}

	return &ListCapturesOutput{Body: ListCapturesResponse{Captures: resp}}, nil
}

func (s *Server) handleCreateCapture(ctx context.Context, input *CreateCaptureInput) (*CaptureOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	c, err := s.services.Capture.CreateCapture(ctx, userID, input.Body)
	if err != nil {
		return nil, err
	}

	return &CaptureOutput{Body: captureResponse(c)}, nil
}

func (s *Server) handleGetCapture(ctx context.Context, input *GetCaptureInput) (*CaptureOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	c, err := s.services.Capture.GetCapture(ctx, userID, input.ID)
	if err != nil {
		return nil, err
	}

	return &CaptureOutput{Body: captureResponse(c)}, nil
}

func (s *Server) handleUpdateCapture(ctx context.Context, input *UpdateCaptureInput) (*CaptureOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	c, err := s.services.Capture.UpdateCapture(ctx, userID, input.ID, input.Body)
	if err != nil {
		return nil, err
	}

	return &CaptureOutput{Body: captureResponse(c)}, nil
}

func (s *Server) handleCompleteCapture(ctx context.Context, input *GetCaptureInput) (*CaptureOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	c, err := s.services.Capture.CompleteCapture(ctx, userID, input.ID)
	if err != nil {
		return nil, err
	}

	return &CaptureOutput{Body: captureResponse(c)}, nil
}

func (s *Server) handleDeleteCapture(ctx context.Context, input *DeleteCaptureInput) (*MessageOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	if err := s.services.Capture.DeleteCapture(ctx, userID, input.ID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Capture deleted"}}, nil
}

func captureResponse(c *domain.Capture) CaptureResponse {
	return CaptureResponse{
		ID:          c.ID,
		Kind:        string(c.Kind),
		Title:       c.Title,
		Content:     c.Content,
		TagIDs:      c.TagIDs,
		Completed:   c.Completed,
		CompletedAt: c.CompletedAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
