package pipeline

import "errors"

// Sentinel errors for the pipeline layer.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTrainerDisabled   = errors.New("nudges disabled for trainer")
)
