package api

import (
	"github.com/danielgtaylor/huma/v2"
)

// envelope is the uniform response wrapper for every API body.
type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Error   any  `json:"error,omitempty"`
}

// EnvelopeTransformer wraps every response body in the standard envelope so
// clients always read {"success": ..., "data": ...} or an error object.
func EnvelopeTransformer(_ huma.Context, _ string, v any) (any, error) {
	if v == nil {
		return v, nil
	}

	if apiErr, ok := v.(*APIError); ok {
		return &envelope{Success: false, Error: apiErr}, nil
	}

	return &envelope{Success: true, Data: v}, nil
}
