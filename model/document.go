package model

// StructureDocument is the root of a backend-authored application blueprint.
// It declares the building blocks, pages, and navigation of an entire client
// application. Immutable once loaded; replaced wholesale on reload.
type StructureDocument struct {
	Version    string           `json:"version"    yaml:"version"`
	Meta       DocumentMeta     `json:"meta"       yaml:"meta"`
	Blocks     []BuildingBlock  `json:"blocks"     yaml:"blocks"`
	Pages      []PageDefinition `json:"pages"      yaml:"pages"`
	Navigation []NavigationItem `json:"navigation" yaml:"navigation"`

	// CacheDefaults, when present, is merged beneath every section's cache
	// policy before compilation.
	CacheDefaults *CachePolicy `json:"cache_defaults,omitempty" yaml:"cache_defaults,omitempty"`

	// Checksum is computed at load time and not part of the wire format.
	Checksum string `json:"-" yaml:"-"`
	// Source records where the document came from (file path or URL).
	Source string `json:"-" yaml:"-"`
}

// DocumentMeta carries application-level presentation settings.
type DocumentMeta struct {
	AppName     string         `json:"app_name"     yaml:"app_name"`
	DefaultPage string         `json:"default_page" yaml:"default_page"`
	Theme       map[string]any `json:"theme,omitempty"   yaml:"theme,omitempty"`
	TopBar      *TopBarConfig  `json:"top_bar,omitempty" yaml:"top_bar,omitempty"`
}

// TopBarConfig describes the optional application top bar.
type TopBarConfig struct {
	Title   string   `json:"title"             yaml:"title"`
	Visible bool     `json:"visible"           yaml:"visible"`
	Actions []string `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// BuildingBlock maps a stable id to a renderable component implementation
// plus default properties. IDs are unique within a document.
type BuildingBlock struct {
	ID        string         `json:"id"        yaml:"id"`
	Component string         `json:"component" yaml:"component"`
	Props     map[string]any `json:"props,omitempty" yaml:"props,omitempty"`
}

// PageDefinition describes one screen of the application.
type PageDefinition struct {
	ID       string        `json:"id"       yaml:"id"`
	Title    string        `json:"title"    yaml:"title"`
	Screen   string        `json:"screen"   yaml:"screen"`
	Layout   string        `json:"layout,omitempty" yaml:"layout,omitempty"`
	Sections []PageSection `json:"sections" yaml:"sections"`
	Meta     *PageMeta     `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// PageMeta carries page-level flags.
type PageMeta struct {
	RequiresAuth bool `json:"requires_auth" yaml:"requires_auth"`
	Hidden       bool `json:"hidden"        yaml:"hidden"`
}

// PageSection binds one building block to a data source within a page.
// Sections are re-evaluated, not re-created, when runtime context changes.
type PageSection struct {
	ID              string         `json:"id"                yaml:"id"`
	BuildingBlockID string         `json:"building_block_id" yaml:"building_block_id"`
	Layout          map[string]any `json:"layout,omitempty"  yaml:"layout,omitempty"`
	DataSource      *DataSource    `json:"data_source,omitempty" yaml:"data_source,omitempty"`

	// Condition is a restricted boolean expression; when it evaluates false
	// the section is skipped entirely (no fetch, no instantiation).
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Transform is a declarative mapping applied to fetched data before the
	// block is instantiated.
	Transform *DataTransform `json:"transform,omitempty" yaml:"transform,omitempty"`
}

// DataSource describes how a section fetches its data.
type DataSource struct {
	QueryName string         `json:"query_name" yaml:"query_name"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	// Required lists parameter names that must resolve for the query to be
	// issued. When empty, every context-bound parameter is required.
	Required []string `json:"required,omitempty" yaml:"required,omitempty"`

	CachePolicy *CachePolicy `json:"cache_policy,omitempty" yaml:"cache_policy,omitempty"`
}

// DataTransform is a declarative response mapping: extract a list with a
// dotted path, rename fields, optionally keep only a subset.
type DataTransform struct {
	ItemsPath string            `json:"items_path,omitempty" yaml:"items_path,omitempty"`
	FieldMap  map[string]string `json:"field_map,omitempty"  yaml:"field_map,omitempty"`
	Pick      []string          `json:"pick,omitempty"       yaml:"pick,omitempty"`
}

// NavigationItem describes one entry in the application navigation.
type NavigationItem struct {
	ID      string `json:"id"      yaml:"id"`
	Label   string `json:"label"   yaml:"label"`
	Icon    string `json:"icon,omitempty" yaml:"icon,omitempty"`
	PageID  string `json:"page_id" yaml:"page_id"`
	Order   int    `json:"order"   yaml:"order"`
	Visible bool   `json:"visible" yaml:"visible"`

	// BadgeCount is a static badge value; BadgeSource, when set, is an
	// api:// action string resolved at display time. At most one applies.
	BadgeCount  int    `json:"badge_count,omitempty"  yaml:"badge_count,omitempty"`
	BadgeSource string `json:"badge_source,omitempty" yaml:"badge_source,omitempty"`
}

// Block returns the building block with the given id, if present.
func (d *StructureDocument) Block(id string) (BuildingBlock, bool) {
	for _, b := range d.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return BuildingBlock{}, false
}

// Page returns the page with the given id, if present.
func (d *StructureDocument) Page(id string) (PageDefinition, bool) {
	for _, p := range d.Pages {
		if p.ID == id {
			return p, true
		}
	}
	return PageDefinition{}, false
}
