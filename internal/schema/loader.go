// Package schema loads structure documents, validates them exhaustively, and
// provides a fast-lookup registry with atomic pointer swap.
package schema

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mzizi/muundo/model"
	"gopkg.in/yaml.v3"
)

// Loader parses structure documents from JSON or YAML and computes SHA-256
// checksums. Unknown fields are ignored so older engines tolerate newer
// documents.
type Loader struct{}

// NewLoader creates a new document Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFile loads and parses a single document file. The format is chosen by
// extension; .json parses as JSON, everything else as YAML.
func (l *Loader) LoadFile(path string) (*model.StructureDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	doc, err := l.LoadBytes(data, ext == ".json")
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	doc.Source = path
	return doc, nil
}

// LoadBytes parses raw document bytes and records the content checksum.
func (l *Loader) LoadBytes(data []byte, asJSON bool) (*model.StructureDocument, error) {
	var doc model.StructureDocument
	if asJSON {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}

	doc.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	return &doc, nil
}
