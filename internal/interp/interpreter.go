package interp

import (
	"context"

	"go.uber.org/zap"

	"github.com/mzizi/muundo/internal/expr"
	"github.com/mzizi/muundo/internal/policy"
	"github.com/mzizi/muundo/internal/runtime"
	"github.com/mzizi/muundo/internal/schema"
	"github.com/mzizi/muundo/model"
)

// Interpreter composes resolved views from the active structure document.
// It owns no transport and no cache bookkeeping; those live behind the
// executor and component registry collaborators.
type Interpreter struct {
	registry   *schema.Registry
	executor   model.QueryExecutor
	components model.ComponentRegistry
	poller     PollStarter
	logger     *zap.Logger
}

// PollStarter registers a recurring refetch for a polling section. Starting
// an already-registered key restarts it with the new parameters.
type PollStarter interface {
	Start(queryName string, params map[string]any, cfg model.EffectiveCacheConfig)
}

// New creates an Interpreter.
func New(registry *schema.Registry, executor model.QueryExecutor,
	components model.ComponentRegistry, logger *zap.Logger) *Interpreter {
	return &Interpreter{
		registry:   registry,
		executor:   executor,
		components: components,
		logger:     logger,
	}
}

// SetPoller attaches the scheduler that keeps poll-strategy sections fresh.
// A nil poller leaves polling to on-demand loads.
func (i *Interpreter) SetPoller(p PollStarter) {
	i.poller = p
}

// Info summarizes the active document.
func (i *Interpreter) Info() model.StructureInfo {
	doc := i.registry.Document()
	return model.StructureInfo{
		AppName:     doc.Meta.AppName,
		Version:     doc.Version,
		DefaultPage: doc.Meta.DefaultPage,
		Checksum:    doc.Checksum,
		Theme:       doc.Meta.Theme,
		TopBar:      doc.Meta.TopBar,
		PageCount:   len(doc.Pages),
		BlockCount:  len(doc.Blocks),
	}
}

// PageView resolves one page against the current runtime context. Sections
// are independent: one failing section reports its own error state and the
// rest of the page still renders.
func (i *Interpreter) PageView(ctx context.Context, pageID string, rc *model.RuntimeContext) (model.PageView, error) {
	page, ok := i.registry.Page(pageID)
	if !ok {
		return model.PageView{}, model.NewNotFoundError("page " + pageID + " not found")
	}
	doc := i.registry.Document()

	view := model.PageView{
		ID:       page.ID,
		Title:    page.Title,
		Screen:   page.Screen,
		Layout:   page.Layout,
		Meta:     page.Meta,
		Theme:    doc.Meta.Theme,
		Sections: make([]model.SectionView, 0, len(page.Sections)),
	}

	scope := conditionScope(rc)
	for _, section := range page.Sections {
		view.Sections = append(view.Sections, i.resolveSection(ctx, doc, section, rc, scope))
	}
	return view, nil
}

// resolveSection runs the section pipeline: condition, context resolution,
// policy compilation, query execution, transform, block instantiation.
func (i *Interpreter) resolveSection(ctx context.Context, doc *model.StructureDocument,
	section model.PageSection, rc *model.RuntimeContext, scope map[string]any) model.SectionView {

	view := model.SectionView{ID: section.ID, Layout: section.Layout}

	if section.Condition != "" {
		show, err := expr.EvalString(section.Condition, scope)
		if err != nil {
			// Unparseable conditions are caught at validation; an eval
			// error here still must not take the page down.
			i.logger.Warn("condition evaluation failed",
				zap.String("section", section.ID), zap.Error(err))
			show = false
		}
		if !show {
			view.State = model.SectionSkipped
			return view
		}
	}

	block, ok := doc.Block(section.BuildingBlockID)
	if !ok {
		view.State = model.SectionError
		view.Error = "building block " + section.BuildingBlockID + " not found"
		return view
	}

	if section.DataSource == nil {
		view.State = model.SectionReady
		view.Block = i.components.Instantiate(block.Component, block.Props)
		return view
	}

	ds := section.DataSource
	res := runtime.Resolve(ds.Params, ds.Required, rc)
	view.MissingContext = res.Missing
	view.Warnings = res.Warnings

	cfg := policy.Compile(ds.CachePolicy, doc.CacheDefaults)
	if i.poller != nil && res.Enabled && cfg.Polls() {
		i.poller.Start(ds.QueryName, res.Params, cfg)
	}

	result, err := i.executor.Execute(ctx, ds.QueryName, res.Params, cfg, res.Enabled)
	if err != nil {
		i.logger.Warn("section query failed",
			zap.String("section", section.ID),
			zap.String("query", ds.QueryName),
			zap.Error(err))
		view.State = model.SectionError
		view.Error = err.Error()
		view.Block = i.components.Instantiate(block.Component, block.Props)
		return view
	}

	if result.Pending {
		view.State = model.SectionPending
		view.Block = i.components.Instantiate(block.Component, block.Props)
		return view
	}

	view.State = model.SectionReady
	view.Data = expr.ApplyTransform(result.Data, section.Transform)
	view.Block = i.components.Instantiate(block.Component, block.Props)
	return view
}

// conditionScope projects the runtime context into the flat map shape the
// condition grammar addresses.
func conditionScope(rc *model.RuntimeContext) map[string]any {
	scope := make(map[string]any, 3)
	if rc == nil {
		return scope
	}
	if rc.User != nil {
		user := map[string]any{
			"id":       rc.User.ID,
			"email":    rc.User.Email,
			"verified": rc.User.Verified,
		}
		for k, v := range rc.User.Claims {
			if _, taken := user[k]; !taken {
				user[k] = v
			}
		}
		scope["user"] = user
	}
	if rc.Geo != nil {
		scope["geo"] = map[string]any{
			"latitude":  rc.Geo.Latitude,
			"longitude": rc.Geo.Longitude,
			"accuracy":  rc.Geo.Accuracy,
		}
	}
	if rc.Filter != nil {
		scope["filter"] = rc.Filter
	}
	return scope
}
