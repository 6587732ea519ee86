package outbound

import "github.com/ajkula/plistener/domain/model"

// DataReader parses a structured file into a data tree
type DataReader interface {
	// Read parses the file at path. Empty files read as an empty dict.
	Read(path string) (model.Value, error)

	// Supports reports whether the reader knows the file's format
	Supports(path string) bool
}
