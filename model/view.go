package model

// Section render states.
const (
	SectionReady   = "ready"
	SectionPending = "pending"
	SectionSkipped = "skipped"
	SectionError   = "error"
)

// StructureInfo summarizes the loaded document for clients.
type StructureInfo struct {
	AppName     string         `json:"app_name"`
	Version     string         `json:"version"`
	DefaultPage string         `json:"default_page"`
	Checksum    string         `json:"checksum"`
	Theme       map[string]any `json:"theme,omitempty"`
	TopBar      *TopBarConfig  `json:"top_bar,omitempty"`
	PageCount   int            `json:"page_count"`
	BlockCount  int            `json:"block_count"`
}

// NavigationEntry is a resolved navigation item sent to the frontend.
// Entries are already filtered by visibility and sorted by order.
type NavigationEntry struct {
	ID     string     `json:"id"`
	Label  string     `json:"label"`
	Icon   string     `json:"icon,omitempty"`
	PageID string     `json:"page_id"`
	Badge  *BadgeView `json:"badge,omitempty"`
}

// BadgeView is a resolved badge on a navigation entry.
type BadgeView struct {
	Count int `json:"count"`

	// Source is the api:// action the count came from, empty for static
	// badges.
	Source string `json:"source,omitempty"`
}

// PageView is a fully resolved page: every section evaluated, data fetched
// where enabled, blocks instantiated.
type PageView struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Screen   string         `json:"screen"`
	Layout   string         `json:"layout,omitempty"`
	Sections []SectionView  `json:"sections"`
	Meta     *PageMeta      `json:"meta,omitempty"`
	Theme    map[string]any `json:"theme,omitempty"`
}

// SectionView is one resolved section within a page view.
type SectionView struct {
	ID    string `json:"id"`
	State string `json:"state"`

	Block  Renderable     `json:"block"`
	Layout map[string]any `json:"layout,omitempty"`
	Data   any            `json:"data,omitempty"`

	// MissingContext lists parameter names that could not be resolved from
	// the runtime context; non-empty implies the query was not issued.
	MissingContext []string `json:"missing_context,omitempty"`

	// Warnings carries non-fatal resolution diagnostics (malformed tokens).
	Warnings []string `json:"warnings,omitempty"`

	Error string `json:"error,omitempty"`
}
