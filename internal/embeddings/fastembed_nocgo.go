//go:build !cgo

package embeddings

import (
	"context"
	"errors"
	"fmt"
)

// ErrFastEmbedNotAvailable is returned when FastEmbed is not available (requires CGO).
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without CGO support)")

// LoadFastEmbed always fails in builds without CGO; engines fall back to
// heuristic vectors.
func LoadFastEmbed(_ context.Context, _ ModelConfig) (Model, error) {
	return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, ErrFastEmbedNotAvailable)
}
