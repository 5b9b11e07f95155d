package api

import (
	"github.com/tangleapp/tangle-server/internal/service"
)

// Services groups all business logic services used by the API server.
// This reduces the parameter count for NewServer and improves testability.
type Services struct {
	Auth    *service.AuthService
	Tag     *service.TagService
	Capture *service.CaptureService
}
