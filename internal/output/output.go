package output

import (
	"context"

	"github.com/crimson-sun/persona/internal/model"
)

// Output defines the interface for per-user prediction destinations.
type Output interface {
	Write(ctx context.Context, result model.UserPredictions) error
	Close() error
}
