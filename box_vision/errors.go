package boxvision

import "errors"

var (
	// ErrMissingAPIKey is returned when the LLM client is built without a key.
	ErrMissingAPIKey = errors.New("vision api key is not set")

	// ErrMissingModel is returned when the LLM client is built without a model name.
	ErrMissingModel = errors.New("vision model is not set")

	// ErrNilImage is returned when a nil image is passed to a vision call.
	ErrNilImage = errors.New("image is nil")

	// ErrEmptyCompletion is returned when the model reply carries no choices.
	ErrEmptyCompletion = errors.New("completion has no choices")

	// ErrNoHint is returned when a segmentation request has neither a point
	// nor a box prompt.
	ErrNoHint = errors.New("segmentation hint is empty")
)
