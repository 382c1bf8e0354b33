package model

import "fmt"

// ArtifactLoadError reports a vocabulary, label or weights file that could
// not be loaded. It is fatal at startup.
type ArtifactLoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ArtifactLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("artifact %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("artifact %s: %s", e.Path, e.Reason)
}

func (e *ArtifactLoadError) Unwrap() error { return e.Err }

// ShapeMismatchError reports tensors or feature vectors whose dimensions
// disagree with what a consumer was built for.
type ShapeMismatchError struct {
	What string
	Want []int
	Got  []int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch for %s: want %v, got %v", e.What, e.Want, e.Got)
}

// OutOfRangeError reports a class index outside the loaded label set.
type OutOfRangeError struct {
	Index int
	Len   int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("class index %d out of range [0, %d)", e.Index, e.Len)
}

// UpstreamRetrievalFailure wraps a post store error. The serving loop
// treats it as recoverable.
type UpstreamRetrievalFailure struct {
	UserID string
	Err    error
}

func (e *UpstreamRetrievalFailure) Error() string {
	return fmt.Sprintf("retrieve posts for %q: %v", e.UserID, e.Err)
}

func (e *UpstreamRetrievalFailure) Unwrap() error { return e.Err }
