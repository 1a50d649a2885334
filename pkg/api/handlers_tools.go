package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"browtool/pkg/bus"
	"browtool/pkg/digest"
	"browtool/pkg/runner"
	"browtool/pkg/template"
)

type createToolRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Script      string `json:"script"`
}

type updateToolRequest struct {
	Description string `json:"description"`
	Script      string `json:"script"`
}

type toolResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Script         string    `json:"script"`
	RequiredParams []string  `json:"required_params"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.toolset.List()
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleCreateTool(w http.ResponseWriter, r *http.Request) {
	var req createToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tool, err := s.store.CreateTool(req.Name, req.Description, req.Script)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toToolResponse(tool.ID, tool.Name, tool.Description, tool.Script, tool.CreatedAt, tool.UpdatedAt))
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	tool, err := s.store.GetTool(chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toToolResponse(tool.ID, tool.Name, tool.Description, tool.Script, tool.CreatedAt, tool.UpdatedAt))
}

func (s *Server) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	var req updateToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tool, err := s.store.UpdateTool(chi.URLParam(r, "name"), req.Description, req.Script)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toToolResponse(tool.ID, tool.Name, tool.Description, tool.Script, tool.CreatedAt, tool.UpdatedAt))
}

func (s *Server) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTool(chi.URLParam(r, "name")); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type runToolRequest struct {
	Args    map[string]any `json:"args"`
	Capture bool           `json:"capture"`
	Digest  bool           `json:"digest"`
}

type runToolResponse struct {
	*runner.Result
	Digest *digest.Digest `json:"digest,omitempty"`
}

func (s *Server) handleRunTool(w http.ResponseWriter, r *http.Request) {
	if !s.runLimiter.Allow() {
		respondErrorMessage(w, http.StatusTooManyRequests, "run rate limit exceeded")
		return
	}

	var req runToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := chi.URLParam(r, "name")
	capture := req.Capture || req.Digest

	s.publishEvent(bus.SubjectRunStarted, map[string]any{"tool": name})

	result, err := s.toolset.Invoke(r.Context(), name, req.Args, capture)
	if err != nil {
		respondError(w, err)
		return
	}

	s.publishEvent(bus.SubjectRunFinished, map[string]any{
		"tool":      name,
		"ok":        result.Ok,
		"exit_code": result.ExitCode,
	})

	resp := runToolResponse{Result: result}
	if req.Digest && result.HTMLText != "" {
		d := digest.ExtractWithOptions(result.HTMLText, digest.Options{
			MaxTextChars:     s.cfg.Digest.MaxTextChars,
			MaxLinks:         s.cfg.Digest.MaxLinks,
			MaxLinkTextChars: s.cfg.Digest.MaxLinkTextChars,
		})
		resp.Digest = &d
		// The digest replaces the raw markup in the payload.
		resp.Result.HTMLText = ""
	}
	writeJSON(w, http.StatusOK, resp)
}

// publishEvent posts a run lifecycle event. Publishing is detached from the
// request context so a dropped client never suppresses the finished event.
func (s *Server) publishEvent(subject string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = s.bus.Publish(context.Background(), subject, data)
}

func toToolResponse(id, name, description, script string, createdAt, updatedAt time.Time) toolResponse {
	params := template.ExtractParams(script)
	if params == nil {
		params = []string{}
	}
	return toolResponse{
		ID:             id,
		Name:           name,
		Description:    description,
		Script:         script,
		RequiredParams: params,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}
}
