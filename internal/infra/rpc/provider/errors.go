package provider

import "errors"

var (
	// ErrNoData signals a valid empty result: the address has no activity,
	// the asset is unknown to this provider. It means "nothing here", not
	// "this provider is broken", and must not count against its health.
	ErrNoData = errors.New("provider has no data for this query")

	// ErrUnsupported is returned when a provider is asked for an operation
	// or asset outside its declared capabilities.
	ErrUnsupported = errors.New("operation not supported by provider")
)
