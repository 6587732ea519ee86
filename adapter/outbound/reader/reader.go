package reader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajkula/plistener/domain/model"
	"github.com/ajkula/plistener/domain/port/outbound"
)

// decodes the bytes of one format into a data tree; path is for logging only
type decodeFunc func(path string, data []byte) (model.Value, error)

// Reader dispatches on the file extension
type Reader struct {
	decoders map[string]decodeFunc
	logger   outbound.Logger
}

// creates a reader for plist, yaml and json files
func New(logger outbound.Logger) *Reader {
	r := &Reader{logger: logger}
	r.decoders = map[string]decodeFunc{
		".plist": r.decodePlist,
		".yml":   decodeYAML,
		".yaml":  decodeYAML,
		".json":  decodeJSON,
	}
	return r
}

func (r *Reader) Supports(path string) bool {
	_, ok := r.decoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Read parses path. Open failures are AccessErrors, decode failures and
// unknown extensions are ParseErrors.
func (r *Reader) Read(path string) (model.Value, error) {
	decode, ok := r.decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, &model.ParseError{Path: path, Err: fmt.Errorf("unsupported file type %q", filepath.Ext(path))}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.AccessError{Path: path, Err: err}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		r.logger.Debug("Empty file read as empty tree", "path", path)
		return model.EmptyTree(), nil
	}

	v, err := decode(path, data)
	if err != nil {
		return nil, &model.ParseError{Path: path, Err: err}
	}
	return v, nil
}
