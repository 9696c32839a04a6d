package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/mzizi/muundo/internal/expr"
	"github.com/mzizi/muundo/internal/policy"
	"github.com/mzizi/muundo/model"
)

// VError describes a single validation error in a document.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// FieldErrors converts validation errors into the envelope detail shape.
func FieldErrors(errs []VError) []model.FieldError {
	out := make([]model.FieldError, len(errs))
	for i, e := range errs {
		out[i] = model.FieldError{Field: e.Path, Code: e.Code, Message: e.Message}
	}
	return out
}

// Validator checks documents structurally and referentially. Validation is
// total: every violation in the document is reported, never just the first.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks a whole document and returns all violations found.
func (v *Validator) Validate(doc *model.StructureDocument) []VError {
	var errs []VError

	if doc.Version == "" {
		errs = append(errs, VError{Path: "version", Code: "REQUIRED", Message: "version is required"})
	}
	if doc.Meta.AppName == "" {
		errs = append(errs, VError{Path: "meta.app_name", Code: "REQUIRED", Message: "meta.app_name is required"})
	}

	blockIDs := make(map[string]bool)
	for i, b := range doc.Blocks {
		bp := fmt.Sprintf("blocks[%d]", i)
		if b.ID == "" {
			errs = append(errs, VError{Path: bp + ".id", Code: "REQUIRED", Message: "id is required"})
		} else if blockIDs[b.ID] {
			errs = append(errs, VError{Path: bp + ".id", Code: "DUPLICATE_ID", Message: fmt.Sprintf("duplicate block id %q", b.ID)})
		}
		blockIDs[b.ID] = true
		if b.Component == "" {
			errs = append(errs, VError{Path: bp + ".component", Code: "REQUIRED", Message: "component is required"})
		}
	}

	pageIDs := make(map[string]bool)
	for i, p := range doc.Pages {
		pp := fmt.Sprintf("pages[%d]", i)
		if p.ID == "" {
			errs = append(errs, VError{Path: pp + ".id", Code: "REQUIRED", Message: "id is required"})
		} else if pageIDs[p.ID] {
			errs = append(errs, VError{Path: pp + ".id", Code: "DUPLICATE_ID", Message: fmt.Sprintf("duplicate page id %q", p.ID)})
		}
		pageIDs[p.ID] = true
		errs = append(errs, v.validatePage(pp, p, blockIDs, doc.CacheDefaults)...)
	}

	if doc.Meta.DefaultPage != "" && !pageIDs[doc.Meta.DefaultPage] {
		errs = append(errs, VError{
			Path:    "meta.default_page",
			Code:    "REF_NOT_FOUND",
			Message: fmt.Sprintf("default page %q not found", doc.Meta.DefaultPage),
		})
	}

	navIDs := make(map[string]bool)
	for i, n := range doc.Navigation {
		np := fmt.Sprintf("navigation[%d]", i)
		if n.ID == "" {
			errs = append(errs, VError{Path: np + ".id", Code: "REQUIRED", Message: "id is required"})
		} else if navIDs[n.ID] {
			errs = append(errs, VError{Path: np + ".id", Code: "DUPLICATE_ID", Message: fmt.Sprintf("duplicate navigation id %q", n.ID)})
		}
		navIDs[n.ID] = true
		if n.Label == "" {
			errs = append(errs, VError{Path: np + ".label", Code: "REQUIRED", Message: "label is required"})
		}
		if n.PageID == "" {
			errs = append(errs, VError{Path: np + ".page_id", Code: "REQUIRED", Message: "page_id is required"})
		} else if !pageIDs[n.PageID] {
			errs = append(errs, VError{Path: np + ".page_id", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("page %q not found", n.PageID)})
		}
		if n.BadgeCount != 0 && n.BadgeSource != "" {
			errs = append(errs, VError{Path: np, Code: "CONFLICT", Message: "badge_count and badge_source are mutually exclusive"})
		}
		if n.BadgeSource != "" {
			a, err := model.ParseAction(n.BadgeSource)
			if err != nil {
				errs = append(errs, VError{Path: np + ".badge_source", Code: "INVALID_ACTION", Message: err.Error()})
			} else if a.Scheme != model.SchemeAPI {
				errs = append(errs, VError{Path: np + ".badge_source", Code: "INVALID_ACTION", Message: "badge_source must use the api scheme"})
			}
		}
	}

	if doc.CacheDefaults != nil {
		errs = append(errs, v.validateCachePolicy("cache_defaults", doc.CacheDefaults, nil)...)
	}

	return errs
}

func (v *Validator) validatePage(prefix string, p model.PageDefinition, blockIDs map[string]bool, docDefaults *model.CachePolicy) []VError {
	var errs []VError

	if p.Title == "" {
		errs = append(errs, VError{Path: prefix + ".title", Code: "REQUIRED", Message: "title is required"})
	}
	if p.Screen == "" {
		errs = append(errs, VError{Path: prefix + ".screen", Code: "REQUIRED", Message: "screen is required"})
	}

	sectionIDs := make(map[string]bool)
	for i, s := range p.Sections {
		sp := fmt.Sprintf("%s.sections[%d]", prefix, i)
		if s.ID == "" {
			errs = append(errs, VError{Path: sp + ".id", Code: "REQUIRED", Message: "id is required"})
		} else if sectionIDs[s.ID] {
			errs = append(errs, VError{Path: sp + ".id", Code: "DUPLICATE_ID", Message: fmt.Sprintf("duplicate section id %q", s.ID)})
		}
		sectionIDs[s.ID] = true

		if s.BuildingBlockID == "" {
			errs = append(errs, VError{Path: sp + ".building_block_id", Code: "REQUIRED", Message: "building_block_id is required"})
		} else if !blockIDs[s.BuildingBlockID] {
			errs = append(errs, VError{
				Path:    sp + ".building_block_id",
				Code:    "REF_NOT_FOUND",
				Message: fmt.Sprintf("building block %q not found", s.BuildingBlockID),
			})
		}

		if s.Condition != "" {
			if _, err := expr.Parse(s.Condition); err != nil {
				errs = append(errs, VError{Path: sp + ".condition", Code: "INVALID_EXPRESSION", Message: err.Error()})
			}
		}

		if s.DataSource != nil {
			errs = append(errs, v.validateDataSource(sp+".data_source", s.DataSource, docDefaults)...)
		}
	}

	return errs
}

func (v *Validator) validateDataSource(prefix string, ds *model.DataSource, docDefaults *model.CachePolicy) []VError {
	var errs []VError

	if ds.QueryName == "" {
		errs = append(errs, VError{Path: prefix + ".query_name", Code: "REQUIRED", Message: "query_name is required"})
	}

	errs = append(errs, v.validateParams(prefix+".params", ds.Params)...)

	paramNames := make(map[string]bool, len(ds.Params))
	for name := range ds.Params {
		paramNames[name] = true
	}
	for i, req := range ds.Required {
		if !paramNames[req] {
			errs = append(errs, VError{
				Path:    fmt.Sprintf("%s.required[%d]", prefix, i),
				Code:    "REF_NOT_FOUND",
				Message: fmt.Sprintf("required parameter %q is not declared in params", req),
			})
		}
	}

	if ds.CachePolicy != nil {
		errs = append(errs, v.validateCachePolicy(prefix+".cache_policy", ds.CachePolicy, docDefaults)...)
	}

	return errs
}

// validateParams flags well-formed context tokens that name a namespace the
// engine does not know. Malformed tokens are left to runtime warnings.
func (v *Validator) validateParams(prefix string, params map[string]any) []VError {
	var errs []VError
	for name, val := range params {
		pp := prefix + "." + name
		switch t := val.(type) {
		case string:
			ns, _, ok := SplitToken(t)
			if ok && !model.KnownNamespace(ns) {
				errs = append(errs, VError{
					Path:    pp,
					Code:    "UNKNOWN_NAMESPACE",
					Message: fmt.Sprintf("unknown context namespace %q", ns),
				})
			}
		case map[string]any:
			errs = append(errs, v.validateParams(pp, t)...)
		}
	}
	return errs
}

// SplitToken parses a $$NAMESPACE.FIELD context token: a $$ prefix, one dot,
// and exactly two non-empty segments. It returns ok=false for plain values
// and malformed tokens alike; callers that must distinguish the two check the
// $$ prefix themselves.
func SplitToken(value string) (namespace, field string, ok bool) {
	if !strings.HasPrefix(value, "$$") {
		return "", "", false
	}
	body := value[2:]
	dot := strings.IndexByte(body, '.')
	if dot <= 0 || dot == len(body)-1 {
		return "", "", false
	}
	field = body[dot+1:]
	if strings.ContainsRune(field, '.') {
		return "", "", false
	}
	return body[:dot], field, true
}

var validStrategies = map[model.CacheStrategy]bool{
	model.StrategyOnLoad: true,
	model.StrategyStatic: true,
	model.StrategyPoll:   true,
}

func (v *Validator) validateCachePolicy(prefix string, p *model.CachePolicy, docDefaults *model.CachePolicy) []VError {
	var errs []VError

	if p.Strategy != "" && !validStrategies[p.Strategy] {
		errs = append(errs, VError{Path: prefix + ".strategy", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid strategy %q", p.Strategy)})
	}

	if p.Strategy == model.StrategyPoll && p.PollIntervalMs == 0 && p.AdaptivePoll == nil {
		errs = append(errs, VError{
			Path:    prefix + ".poll_interval_ms",
			Code:    "REQUIRED",
			Message: "poll strategy requires poll_interval_ms or adaptive_poll",
		})
	}

	minPollMs := MinPollIntervalMs()
	if p.PollIntervalMs != 0 && p.PollIntervalMs < minPollMs {
		errs = append(errs, VError{
			Path:    prefix + ".poll_interval_ms",
			Code:    "RANGE",
			Message: fmt.Sprintf("poll_interval_ms must be at least %d", minPollMs),
		})
	}

	if p.AdaptivePoll != nil {
		ap := p.AdaptivePoll
		app := prefix + ".adaptive_poll"
		if ap.MinIntervalMs < minPollMs {
			errs = append(errs, VError{
				Path:    app + ".min_interval_ms",
				Code:    "RANGE",
				Message: fmt.Sprintf("min_interval_ms must be at least %d", minPollMs),
			})
		}
		if ap.MaxIntervalMs < ap.MinIntervalMs {
			errs = append(errs, VError{
				Path:    app + ".max_interval_ms",
				Code:    "RANGE",
				Message: "max_interval_ms must be at least min_interval_ms",
			})
		}
		if ap.BackgroundMultiplier < 1 {
			errs = append(errs, VError{
				Path:    app + ".background_multiplier",
				Code:    "RANGE",
				Message: "background_multiplier must be at least 1",
			})
		}
	}

	if p.StalenessMs != nil && *p.StalenessMs < 0 {
		errs = append(errs, VError{Path: prefix + ".staleness_ms", Code: "RANGE", Message: "staleness_ms must not be negative"})
	}
	if p.RetentionMs != nil && *p.RetentionMs < 0 {
		errs = append(errs, VError{Path: prefix + ".retention_ms", Code: "RANGE", Message: "retention_ms must not be negative"})
	}
	if p.StalenessMs != nil && p.RetentionMs != nil && *p.RetentionMs < *p.StalenessMs {
		errs = append(errs, VError{
			Path:    prefix + ".retention_ms",
			Code:    "RANGE",
			Message: "retention_ms must be at least staleness_ms",
		})
	}

	// A staleness window with no retention declared must still fit under the
	// retention the compiler will fall back to; a document that contradicts
	// its own defaults is rejected rather than silently stretched.
	if p.StalenessMs != nil && p.RetentionMs == nil {
		fallback := int64(-1)
		if docDefaults != nil && docDefaults.RetentionMs != nil {
			fallback = *docDefaults.RetentionMs
		} else {
			strategy := p.Strategy
			if strategy == "" && docDefaults != nil {
				strategy = docDefaults.Strategy
			}
			if d := policy.DefaultRetention(strategy); d != model.Forever {
				fallback = int64(d / time.Millisecond)
			}
		}
		if fallback >= 0 && *p.StalenessMs > fallback {
			errs = append(errs, VError{
				Path:    prefix + ".staleness_ms",
				Code:    "RANGE",
				Message: fmt.Sprintf("staleness_ms %d exceeds the effective retention %d; declare retention_ms", *p.StalenessMs, fallback),
			})
		}
	}

	if p.Retries != nil && *p.Retries < 0 {
		errs = append(errs, VError{Path: prefix + ".retries", Code: "RANGE", Message: "retries must not be negative"})
	}

	return errs
}

// MinPollIntervalMs exposes the poll floor in the unit documents use.
func MinPollIntervalMs() int64 {
	return int64(model.MinPollInterval / time.Millisecond)
}
