package schema

import (
	"context"

	"github.com/mzizi/muundo/model"
)

// FileSource loads structure documents from a file on disk. The document is
// treated like a static-policy query: fetched at startup, cached in the
// registry, and refetched only through an explicit reload.
type FileSource struct {
	path   string
	loader *Loader
}

// NewFileSource creates a FileSource for the given path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path, loader: NewLoader()}
}

// Fetch reads and parses the document file.
func (s *FileSource) Fetch(_ context.Context) (*model.StructureDocument, error) {
	return s.loader.LoadFile(s.path)
}
