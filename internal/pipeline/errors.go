package pipeline

import "errors"

// Sentinel errors of the inference entry point. The command entrypoint maps
// each of them to a distinct exit code; everything else is a generic
// failure.
var (
	// ErrInputNotFound: the input path does not exist.
	ErrInputNotFound = errors.New("input volume not found")
	// ErrUnsupportedFormat: the input exists but is not a readable
	// single-channel NIfTI volume.
	ErrUnsupportedFormat = errors.New("unsupported input format")
	// ErrDeviceUnavailable: cuda was requested but no NVIDIA runtime is
	// visible.
	ErrDeviceUnavailable = errors.New("compute device unavailable")
	// ErrInferenceFailed: the delegated engine failed or produced output
	// the pipeline cannot accept.
	ErrInferenceFailed = errors.New("inference failed")
	// ErrOutputExists: the output file exists and overwriting was not
	// permitted.
	ErrOutputExists = errors.New("output file already exists")
)
