package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browtool/pkg/bus"
	"browtool/pkg/config"
	"browtool/pkg/runner"
	"browtool/pkg/storage"
	"browtool/pkg/toolset"
)

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "browtool.db")
	if mutate != nil {
		mutate(cfg)
	}

	store, err := storage.New(cfg.Storage.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// Test tools are shell scripts, not Playwright sessions.
	run := runner.New(runner.Options{PythonBin: "sh"})
	ts := toolset.New(store, run)

	memBus, err := bus.New(bus.Config{Driver: "memory"})
	require.NoError(t, err)
	t.Cleanup(func() { memBus.Close() })

	return NewServer(cfg, store, ts, memBus, nil)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestToolCRUD(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	create := createToolRequest{
		Name:        "greet",
		Description: "says hello",
		Script:      "echo hello {{name}}",
	}
	rec := doJSON(t, h, http.MethodPost, "/api/tools", create, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created toolResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "greet", created.Name)
	assert.Equal(t, []string{"name"}, created.RequiredParams)

	// Duplicate name conflicts.
	rec = doJSON(t, h, http.MethodPost, "/api/tools", create, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/tools/greet", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/api/tools/greet", updateToolRequest{Description: "updated"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated toolResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "updated", updated.Description)
	// Script untouched by a description-only update.
	assert.Equal(t, create.Script, updated.Script)

	rec = doJSON(t, h, http.MethodGet, "/api/tools", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []toolset.ToolSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "greet", list[0].Name)

	rec = doJSON(t, h, http.MethodDelete, "/api/tools/greet", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/tools/greet", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToolResponseEmptyParamsNotNull(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/tools", createToolRequest{
		Name:   "static",
		Script: "echo fixed",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	// A parameterless tool serializes an empty list, never null.
	assert.Contains(t, rec.Body.String(), `"required_params":[]`)
}

func TestRunTool(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/tools", createToolRequest{
		Name:   "shout",
		Script: "printf '%s\\n' \"{{word}}\"\nexit 0",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/tools/shout/run", runToolRequest{
		Args: map[string]any{"word": "hey"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp runToolResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Ok)
	assert.Equal(t, 0, resp.ExitCode)
	assert.Equal(t, "hey\n", resp.Stdout)
	assert.Nil(t, resp.Digest)
}

func TestRunToolMissingArgument(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/tools", createToolRequest{
		Name:   "needy",
		Script: "echo {{url}}\nexit 0",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/tools/needy/run", runToolRequest{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp runToolResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Ok)
	assert.Equal(t, 2, resp.ExitCode)
	assert.Equal(t, "Missing required arg: url\n", resp.Stderr)
}

func TestRunToolNotFound(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/tools/ghost/run", runToolRequest{}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunToolDigest(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	page := `<html><head><title>Shop</title></head><body><p>Buy things</p><a href="/cart">Cart</a></body></html>`
	rec := doJSON(t, h, http.MethodPost, "/api/tools", createToolRequest{
		Name:   "browse",
		Script: "printf '%s' '" + page + "' > \"$BROWTOOL_ARTIFACT_PATH\"\nexit 0",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/tools/browse/run", runToolRequest{Digest: true}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp runToolResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Digest)
	require.NotNil(t, resp.Digest.Title)
	assert.Equal(t, "Shop", *resp.Digest.Title)
	assert.Contains(t, resp.Digest.Text, "Buy things")
	require.Len(t, resp.Digest.Links, 1)
	assert.Equal(t, "/cart", resp.Digest.Links[0].Href)
	// Digest replaces the raw markup in the payload.
	assert.Empty(t, resp.HTMLText)
	assert.Greater(t, resp.HTMLSizeBytes, int64(0))
}

func TestRunRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.RunRate = 0.001
		cfg.Server.RunBurst = 1
	})
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/tools", createToolRequest{
		Name:   "noop",
		Script: "exit 0",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/tools/noop/run", runToolRequest{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/tools/noop/run", runToolRequest{}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.AuthToken = "sekrit"
	})
	h := s.Handler()

	// No token.
	rec := doJSON(t, h, http.MethodGet, "/api/tools", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong token.
	rec = doJSON(t, h, http.MethodGet, "/api/tools", nil, map[string]string{
		"Authorization": "Bearer wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Bearer header.
	rec = doJSON(t, h, http.MethodGet, "/api/tools", nil, map[string]string{
		"Authorization": "Bearer sekrit",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Query parameter fallback for WebSocket clients.
	rec = doJSON(t, h, http.MethodGet, "/api/tools?token=sekrit", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays public.
	rec = doJSON(t, h, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Metrics are gated by default.
	rec = doJSON(t, h, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPublicMetrics(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.AuthToken = "sekrit"
		cfg.Server.PublicMetrics = true
	})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.AllowedOrigins = []string{"https://app.example.com"}
	})
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/tools", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/tools", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestInvalidJSONBody(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/tools", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
