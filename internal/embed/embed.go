// Package embed is the boundary to the external face-embedding collaborator.
// The model itself (face detection + vector extraction) lives in a separate
// service; this package only consumes it.
package embed

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks facetrace/internal/embed Embedder

import (
	"context"
	"errors"
)

// ErrNoFace is returned when an image yields no embeddable face. Callers skip
// the image and log; it is never fatal to a batch.
var ErrNoFace = errors.New("no embeddable face found")

// Embedder extracts an identity embedding from an image file. Implementations
// must be idempotent per file and side-effect-free on the filesystem.
type Embedder interface {
	EmbedImage(ctx context.Context, path string) ([]float32, error)
}
