package tour

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across stages.
var (
	// ErrRendererDisabled signals that no renderer is configured.
	ErrRendererDisabled = errors.New("renderer disabled")
	// ErrNoPayload means the extraction response held no structured object.
	ErrNoPayload = errors.New("no structured payload in response")
	// ErrMalformedPayload means the structured object could not be decoded.
	ErrMalformedPayload = errors.New("malformed structured payload")
	// ErrContract means the payload is missing a required field.
	ErrContract = errors.New("payload violates field contract")
	// ErrInputNotFound is returned when the URL list cannot be located.
	ErrInputNotFound = errors.New("input not found")
)

// FetchError reports a page that could not be loaded or rendered. The page is
// skipped for the rest of the run.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StructureError reports a chunk rejected by the Structurer: a service
// failure, an unparsable response or a contract violation.
type StructureError struct {
	SourceURL string
	TitleHint string
	Err       error
}

func (e *StructureError) Error() string {
	if e.TitleHint != "" {
		return fmt.Sprintf("structure %s (%s): %v", e.SourceURL, e.TitleHint, e.Err)
	}
	return fmt.Sprintf("structure %s: %v", e.SourceURL, e.Err)
}

func (e *StructureError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err is or wraps a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsStructureError reports whether err is or wraps a StructureError.
func IsStructureError(err error) bool {
	var se *StructureError
	return errors.As(err, &se)
}
