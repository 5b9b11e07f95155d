package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status",
		Tags:        []string{"System"},
	}, s.handleHealthCheck)
}

// HealthResponse contains server health data.
type HealthResponse struct {
	Status     string    `json:"status" doc:"Health status"`
	ServerTime time.Time `json:"server_time" doc:"Current server time"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	return &HealthOutput{
		Body: HealthResponse{
			Status:     "ok",
			ServerTime: time.Now(),
		},
	}, nil
}
