package normalize

import "errors"

// Errors shared by the adapter's components. Only ErrInvalidModality and
// ErrUnsupportedFormat are returned to callers; the other two are absorbed
// inside the adapter.
var (
	// ErrInvalidModality is returned when modality parameters are incoherent.
	ErrInvalidModality = errors.New("invalid modality parameters")
	// ErrUnsupportedFormat is returned for an unrecognized response format.
	ErrUnsupportedFormat = errors.New("unsupported response format")
	// ErrShapeMismatch marks a response or cached payload whose shape is not
	// one of the known variants.
	ErrShapeMismatch = errors.New("response shape mismatch")
	// ErrLengthMismatch marks a cached moderation result whose result count
	// differs from the number of inputs.
	ErrLengthMismatch = errors.New("moderation result count mismatch")
)
