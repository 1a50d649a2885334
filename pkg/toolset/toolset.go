// Package toolset binds the tool store to the runner: a single generic
// invoke operation per stored tool plus a queryable listing whose required
// parameters are derived from placeholder extraction. Per-tool entry points
// are data, not dynamic dispatch.
package toolset

import (
	"context"

	"browtool/pkg/runner"
	"browtool/pkg/storage"
	"browtool/pkg/template"
)

// ToolSummary describes a stored tool to callers. RequiredParams is derived
// at listing time and never persisted.
type ToolSummary struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	RequiredParams []string `json:"required_params"`
}

// Toolset dispatches invocations to stored tools.
type Toolset struct {
	store  *storage.Store
	runner *runner.Runner
}

// New creates a Toolset over the given store and runner.
func New(store *storage.Store, r *runner.Runner) *Toolset {
	return &Toolset{store: store, runner: r}
}

// Invoke runs the named tool's script with the given arguments, blocking
// until the child exits.
func (t *Toolset) Invoke(ctx context.Context, name string, args map[string]any, capture bool) (*runner.Result, error) {
	tool, err := t.store.GetTool(name)
	if err != nil {
		return nil, err
	}
	return t.runner.Run(ctx, tool.Script, args, capture)
}

// InvokeStreaming is Invoke with incremental output delivery to sink.
func (t *Toolset) InvokeStreaming(ctx context.Context, name string, args map[string]any, capture bool, sink runner.Sink) (*runner.Result, error) {
	tool, err := t.store.GetTool(name)
	if err != nil {
		return nil, err
	}
	return t.runner.RunStreaming(ctx, tool.Script, args, capture, sink)
}

// List summarizes every stored tool, most recently updated first.
func (t *Toolset) List() ([]ToolSummary, error) {
	tools, err := t.store.ListTools()
	if err != nil {
		return nil, err
	}
	summaries := make([]ToolSummary, 0, len(tools))
	for _, tool := range tools {
		summaries = append(summaries, summarize(tool))
	}
	return summaries, nil
}

// Describe summarizes one stored tool.
func (t *Toolset) Describe(name string) (ToolSummary, error) {
	tool, err := t.store.GetTool(name)
	if err != nil {
		return ToolSummary{}, err
	}
	return summarize(tool), nil
}

func summarize(tool *storage.Tool) ToolSummary {
	params := template.ExtractParams(tool.Script)
	if params == nil {
		params = []string{}
	}
	return ToolSummary{
		Name:           tool.Name,
		Description:    tool.Description,
		RequiredParams: params,
	}
}
