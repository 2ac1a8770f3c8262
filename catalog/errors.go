package catalog

import "fmt"

// SchemaError is returned when a catalog document fails validation. Path
// names the first schema violation using the validator package's
// dotted/indexed namespace notation (e.g. "Catalog.Video.Renditions[1080p].Codec").
type SchemaError struct {
	Path string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("catalog: schema violation at %s: %v", e.Path, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
