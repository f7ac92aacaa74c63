package medic

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request, image or tool argument failed validation.
	ErrValidation = errors.New("validation error")

	// ErrUpstream indicates a model provider call failed (network, non-2xx, malformed response).
	ErrUpstream = errors.New("upstream model error")

	// ErrStreamNotReady indicates Message() was called before Next().
	ErrStreamNotReady = errors.New("stream not ready: call Next() first")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrImageFormat indicates an image is not JPEG, PNG or WEBP.
	ErrImageFormat = fmt.Errorf("unsupported image format: %w", ErrValidation)

	// ErrImageTooLarge indicates an image exceeds the accepted payload size.
	ErrImageTooLarge = fmt.Errorf("image too large: %w", ErrValidation)
)
