package semcache

import (
	"errors"

	"github.com/ferro-labs/semcache/internal/synth"
	"github.com/ferro-labs/semcache/normalize"
	"github.com/ferro-labs/semcache/providers"
)

// Errors returned by the adapter. Provider failures are returned as
// *ProviderFailure.
var (
	ErrInvalidModality   = normalize.ErrInvalidModality
	ErrUnsupportedFormat = normalize.ErrUnsupportedFormat
	// ErrNotSupported is returned on a miss when the provider lacks the
	// capability the modality needs.
	ErrNotSupported = errors.New("provider does not support this modality")
)

// ProviderFailure is the uniform provider error.
type ProviderFailure = providers.ProviderFailure

// ImageWriter persists url-mode image output.
type ImageWriter = synth.ImageWriter

// DirWriter writes images into a directory and returns absolute paths.
type DirWriter = synth.DirWriter
