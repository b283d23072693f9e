package replay

import (
	"errors"
	"fmt"
)

// ErrDecode reports that a file could not be turned into a JSON document by
// any supported route.
var ErrDecode = errors.New("replay: could not decode file")

// errNotJSON marks plain bytes that are not JSON so callers can try a compressed route.
var errNotJSON = errors.New("replay: not plain json")

// Known foreign formats recognised during validation.
const (
	FormatHalite2 = "Halite 2"
	FormatUnknown = ""
)

// SchemaError reports a JSON document that is not a supported replay.
type SchemaError struct {
	Format string
	Reason string
}

// Error implements error.
func (e *SchemaError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Format != FormatUnknown {
		return fmt.Sprintf("replay: %s replay is not supported", e.Format)
	}
	if e.Reason != "" {
		return "replay: unsupported document: " + e.Reason
	}
	return "replay: unsupported document"
}

// UserMessage renders the error the way it is shown to a person loading the file.
func (e *SchemaError) UserMessage() string {
	if e != nil && e.Format == FormatHalite2 {
		return "This is a Halite 2 replay. Fluorine only opens Halite 3 replays."
	}
	return "Read some JSON but it doesn't seem to be a Halite 3 replay."
}

// IsSchemaError reports whether err wraps a SchemaError.
func IsSchemaError(err error) bool {
	var schemaErr *SchemaError
	return errors.As(err, &schemaErr)
}
