// Package catalog indexes the named queries a structure document may
// reference and executes them over HTTP against backend services. Query
// names map to operationIds in the services' OpenAPI specifications.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/mzizi/muundo/model"
)

// SpecSource describes one backend service's OpenAPI spec.
type SpecSource struct {
	ServiceID string
	BaseURL   string
	SpecPath  string
}

// QuerySpec is one executable query resolved from an OpenAPI operation.
type QuerySpec struct {
	Name         string
	ServiceID    string
	Method       string
	PathTemplate string
	BaseURL      string

	// PathParams lists the parameter names that belong in the URL path;
	// everything else travels as query string or JSON body.
	PathParams []string
}

// Catalog is an in-memory index of queries keyed by name. Built once at
// startup; read-only afterwards.
type Catalog struct {
	queries map[string]QuerySpec
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{queries: make(map[string]QuerySpec)}
}

// Load parses OpenAPI specs and indexes every operation that carries an
// operationId. A name collision across services is a configuration error.
func (c *Catalog) Load(sources []SpecSource) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	for _, src := range sources {
		doc, err := loader.LoadFromFile(src.SpecPath)
		if err != nil {
			return fmt.Errorf("catalog: loading %s (%s): %w", src.ServiceID, src.SpecPath, err)
		}
		if err := doc.Validate(context.Background()); err != nil {
			return fmt.Errorf("catalog: validating %s: %w", src.ServiceID, err)
		}

		baseURL := src.BaseURL
		if baseURL == "" && len(doc.Servers) > 0 {
			baseURL = doc.Servers[0].URL
		}

		for path, pathItem := range doc.Paths.Map() {
			for method, op := range pathItem.Operations() {
				if op.OperationID == "" {
					continue
				}
				if existing, ok := c.queries[op.OperationID]; ok {
					return fmt.Errorf("catalog: query %q defined by both %s and %s",
						op.OperationID, existing.ServiceID, src.ServiceID)
				}

				spec := QuerySpec{
					Name:         op.OperationID,
					ServiceID:    src.ServiceID,
					Method:       method,
					PathTemplate: path,
					BaseURL:      baseURL,
					PathParams:   pathParamNames(path),
				}
				c.queries[op.OperationID] = spec
			}
		}
	}
	return nil
}

// Lookup returns the spec for a query name.
func (c *Catalog) Lookup(name string) (QuerySpec, bool) {
	q, ok := c.queries[name]
	return q, ok
}

// Names returns every indexed query name, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.queries))
	for name := range c.queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MissingQueries returns the query names a document references that are
// not in the catalog, sorted and de-duplicated. Section data sources and
// api:// badge sources are checked; an unknown name is a deploy-time
// mismatch worth surfacing before the first page load fails.
func (c *Catalog) MissingQueries(doc *model.StructureDocument) []string {
	seen := make(map[string]bool)
	var missing []string
	note := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		if _, ok := c.queries[name]; !ok {
			missing = append(missing, name)
		}
	}

	for _, page := range doc.Pages {
		for _, section := range page.Sections {
			if section.DataSource != nil {
				note(section.DataSource.QueryName)
			}
		}
	}
	for _, item := range doc.Navigation {
		if item.BadgeSource == "" {
			continue
		}
		if a, err := model.ParseAction(item.BadgeSource); err == nil && a.Scheme == model.SchemeAPI {
			note(a.Path)
		}
	}

	sort.Strings(missing)
	return missing
}

func pathParamNames(template string) []string {
	var names []string
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			return names
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return names
		}
		names = append(names, rest[open+1:open+end])
		rest = rest[open+end+1:]
	}
}
