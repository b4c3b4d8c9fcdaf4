package http

import "github.com/fyrsmithlabs/chatloop/internal/embeddings"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// EngineResponse is the response body for GET /api/v1/engine.
type EngineResponse struct {
	embeddings.Status
	RequireModel bool `json:"requireModel"`
}

// ErrorResponse is the body of 4xx and 5xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
