package schema

import (
	"context"
	"sync/atomic"

	"github.com/mzizi/muundo/model"
)

// snapshot is an immutable indexed view of one loaded document.
type snapshot struct {
	doc    *model.StructureDocument
	pages  map[string]model.PageDefinition
	blocks map[string]model.BuildingBlock
}

// Registry is a read-optimized, thread-safe holder of the active structure
// document. It uses atomic pointer swap for lock-free concurrent reads;
// readers always see a complete document, never a partial reload.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry holding the given document.
func NewRegistry(doc *model.StructureDocument) *Registry {
	r := &Registry{}
	r.Replace(doc)
	return r
}

// Replace atomically swaps in a new document.
func (r *Registry) Replace(doc *model.StructureDocument) {
	s := &snapshot{
		doc:    doc,
		pages:  make(map[string]model.PageDefinition, len(doc.Pages)),
		blocks: make(map[string]model.BuildingBlock, len(doc.Blocks)),
	}
	for _, p := range doc.Pages {
		s.pages[p.ID] = p
	}
	for _, b := range doc.Blocks {
		s.blocks[b.ID] = b
	}
	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Document returns the active document.
func (r *Registry) Document() *model.StructureDocument {
	return r.current().doc
}

// Page returns the page definition with the given ID.
func (r *Registry) Page(pageID string) (model.PageDefinition, bool) {
	p, ok := r.current().pages[pageID]
	return p, ok
}

// Block returns the building block with the given ID.
func (r *Registry) Block(blockID string) (model.BuildingBlock, bool) {
	b, ok := r.current().blocks[blockID]
	return b, ok
}

// Checksum returns the checksum of the active document.
func (r *Registry) Checksum() string {
	return r.current().doc.Checksum
}

// Reload fetches a fresh document from the source, validates it, and swaps
// it in. On any failure the previously active document stays in place and
// the error carries every violation found.
func (r *Registry) Reload(ctx context.Context, source model.DocumentSource, validator *Validator) error {
	doc, err := source.Fetch(ctx)
	if err != nil {
		return err
	}
	if verrs := validator.Validate(doc); len(verrs) > 0 {
		return model.NewDocumentInvalidError(FieldErrors(verrs))
	}
	r.Replace(doc)
	return nil
}
