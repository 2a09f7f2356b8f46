package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambeau/cmarkup/pkg/content"
	"github.com/sambeau/cmarkup/server/config"
)

const testDataset = "../pkg/catalog/testdata/catalog.json"

type testServer struct {
	*Server
	cfg *config.Config
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Defaults()
	cfg.Catalog.Dataset = testDataset
	cfg.Content.Dir = t.TempDir()
	cfg.Logging.Quiet = true
	for _, m := range mutate {
		m(cfg)
	}
	require.NoError(t, config.Validate(cfg))

	engine, err := NewEngine(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	srv, err := New(cfg, engine, zerolog.Nop())
	require.NoError(t, err)
	return &testServer{Server: srv, cfg: cfg}
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) render(t *testing.T, host, content string) RenderResponse {
	t.Helper()
	body, err := json.Marshal(RenderRequest{Host: host, Content: content})
	require.NoError(t, err)
	w := ts.do(t, http.MethodPost, "/api/v1/render", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp RenderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error
}

func health(t *testing.T, ts *testServer) HealthResponse {
	t.Helper()
	w := ts.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	var h HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	return h
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	h := health(t, ts)
	assert.True(t, h.OK)
	assert.Zero(t, h.Hosts)
	assert.Zero(t, h.Units.Live)
}

func TestRender_MountsUnits(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.render(t, "home", `<p>Hi</p><video-preview id="11"></video-preview>`)
	assert.Equal(t, "home", resp.Host)
	require.Len(t, resp.Instances, 1)
	assert.Equal(t, "video-preview", resp.Instances[0].Tag)
	assert.Equal(t, "1", resp.Instances[0].Anchor)
	assert.Contains(t, resp.HTML, "<p>Hi</p>")
	assert.Contains(t, resp.HTML, "Sprite Fright")
	assert.Empty(t, resp.Warnings)
	assert.Empty(t, resp.FetchFailures)
	assert.Equal(t, int64(1), resp.MemoMisses)

	h := health(t, ts)
	assert.Equal(t, 1, h.Hosts)
	assert.Equal(t, 1, h.Units.Live)
}

func TestRender_ReplacesHostPass(t *testing.T) {
	ts := newTestServer(t)

	ts.render(t, "home", `<video-preview id="11"></video-preview>`)
	second := ts.render(t, "home", `<video-preview id="12"></video-preview><video-preview id="12"></video-preview>`)
	assert.Len(t, second.Instances, 2)
	assert.Equal(t, int64(1), second.MemoHits)

	h := health(t, ts)
	assert.Equal(t, 1, h.Hosts)
	assert.Equal(t, 2, h.Units.Live)
	assert.Equal(t, int64(1), h.Units.Destroyed)
}

func TestRender_Fallbacks(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.render(t, "broken", `<video-preview></video-preview><video-preview id="999"></video-preview>`)
	assert.Empty(t, resp.Instances)
	assert.Equal(t, 2, resp.Fallbacks)
	assert.Contains(t, resp.HTML, `data-markup-reason="missing:id"`)
	assert.Empty(t, resp.Warnings)
	require.Len(t, resp.FetchFailures, 1)
	assert.Contains(t, resp.FetchFailures[0], "video-preview")
}

func TestRender_Markdown(t *testing.T) {
	ts := newTestServer(t)

	body := `{"host":"md","format":"markdown","content":"# Title\n\n<call-to-action-button label=\"Go\" href=\"/x\"></call-to-action-button>\n"}`
	w := ts.do(t, http.MethodPost, "/api/v1/render", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp RenderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.HTML, `<h1 id="title">Title</h1>`)
	assert.Contains(t, resp.HTML, `<span class="button-label">Go</span>`)
	require.Len(t, resp.Instances, 1)
}

func TestRender_SanitizesInput(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.render(t, "x", `<script>alert(1)</script><p onclick="x()">safe</p>`)
	assert.NotContains(t, resp.HTML, "script")
	assert.NotContains(t, resp.HTML, "onclick")
	assert.Contains(t, resp.HTML, "safe")
}

func TestRender_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"host":`},
		{"missing host", `{"content":"<p>x</p>"}`},
		{"reserved host", `{"host":"page:home","content":""}`},
		{"unknown format", `{"host":"a","format":"rst","content":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/v1/render", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "bad_request", decodeError(t, w).Code)
		})
	}
}

func TestRender_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Render.MaxBodySize = "64B" })

	body := `{"host":"a","content":"` + strings.Repeat("x", 200) + `"}`
	w := ts.do(t, http.MethodPost, "/api/v1/render", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "too_large", decodeError(t, w).Code)
}

func TestRender_RateLimited(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Render.RateLimit = 2 })

	ts.render(t, "a", "<p>1</p>")
	ts.render(t, "a", "<p>2</p>")
	w := ts.do(t, http.MethodPost, "/api/v1/render", `{"host":"a","content":"<p>3</p>"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, w).Code)
}

func TestReleaseHost(t *testing.T) {
	ts := newTestServer(t)
	ts.render(t, "home", `<video-preview id="11"></video-preview>`)

	w := ts.do(t, http.MethodDelete, "/api/v1/hosts/home", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Host      string   `json:"host"`
		Destroyed int      `json:"destroyed"`
		Failures  []string `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "home", resp.Host)
	assert.Equal(t, 1, resp.Destroyed)
	assert.Empty(t, resp.Failures)
	assert.Zero(t, health(t, ts).Units.Live)

	w = ts.do(t, http.MethodDelete, "/api/v1/hosts/home", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/v1/hosts/page:home", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHelp(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/markup/help", "")
	require.Equal(t, http.StatusOK, w.Code)
	var all []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, len(ts.engine.Registry.Descriptors()))

	w = ts.do(t, http.MethodGet, "/api/v1/markup/help?tag=video-preview", "")
	require.Equal(t, http.StatusOK, w.Code)
	var one map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &one))
	assert.Equal(t, "video-preview", one["name"])

	w = ts.do(t, http.MethodGet, "/api/v1/markup/help?tag=video-previews", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	apiErr := decodeError(t, w)
	assert.Contains(t, apiErr.Message, "Did you mean")
	assert.Contains(t, apiErr.Details, "tags")

	w = ts.do(t, http.MethodGet, "/api/v1/markup/help?format=html", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), `id="tag-video-preview"`)
}

func TestMiddleware_HeadersAndRequestID(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Security.CSP = "default-src 'self'" })

	w := ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
	assert.Empty(t, w.Header().Get("Cache-Control"))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	w = ts.do(t, http.MethodGet, "/healthz", "", requestIDHeader, "rid-1")
	assert.Equal(t, "rid-1", w.Header().Get(requestIDHeader))
}

func TestMiddleware_DevModeDisablesCaching(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Server.Dev = true })
	w := ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, "no-cache, no-store, must-revalidate", w.Header().Get("Cache-Control"))
}

func TestNoRoute(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Code)
}

func writePage(t *testing.T, ts *testServer, file, body string) string {
	t.Helper()
	path := filepath.Join(ts.cfg.Content.Dir, file)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestPages_RenderAndReuse(t *testing.T) {
	ts := newTestServer(t)
	path := writePage(t, ts, "home.md", "# Home\n\n<instance-avatar size=\"32\"></instance-avatar>\n")

	w := ts.do(t, http.MethodGet, "/pages/home", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), `<h1 id="home">Home</h1>`)
	assert.Contains(t, w.Body.String(), `class="instance-avatar"`)
	assert.Contains(t, w.Body.String(), `alt="Framatube"`)
	assert.Contains(t, w.Body.String(), `<title>home - cmarkup</title>`)

	passes := health(t, ts).Passes
	w = ts.do(t, http.MethodGet, "/pages/home", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, passes, health(t, ts).Passes, "unchanged page is served from its live pass")

	require.NoError(t, os.WriteFile(path, []byte("<instance-banner></instance-banner>"), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	w = ts.do(t, http.MethodGet, "/pages/home", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "instance-banner")
	h := health(t, ts)
	assert.Equal(t, passes+1, h.Passes)
	assert.Equal(t, int64(1), h.Units.Destroyed)
	assert.Equal(t, 1, h.Units.Live)
}

func TestPages_ListAndMissing(t *testing.T) {
	ts := newTestServer(t)
	writePage(t, ts, "home.md", "# Home")
	writePage(t, ts, "about.html", "<p>About</p>")

	w := ts.do(t, http.MethodGet, "/pages", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"pages":["about","home"]}`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/pages/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(t, http.MethodGet, "/pages/.hidden", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPages_RefreshReleasesRemovedPage(t *testing.T) {
	ts := newTestServer(t)
	path := writePage(t, ts, "home.html", `<video-preview id="11"></video-preview>`)
	ctx := context.Background()

	require.NoError(t, ts.pages.Refresh(ctx, "home"), "never rendered pages are ignored")
	assert.Zero(t, health(t, ts).Passes)

	_, err := ts.pages.Result(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, 1, health(t, ts).Units.Live)

	require.NoError(t, os.Remove(path))
	require.NoError(t, ts.pages.Refresh(ctx, "home"))
	_, live := ts.engine.Orchestrator.Current(hostFor("home"))
	assert.False(t, live)
	assert.Zero(t, health(t, ts).Units.Live)
}

func TestWatcher_RerendersChangedPage(t *testing.T) {
	ts := newTestServer(t)
	path := writePage(t, ts, "home.html", `<video-preview id="11"></video-preview>`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := ts.pages.Result(ctx, "home")
	require.NoError(t, err)

	w, err := NewWatcher(ts.pages, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`<video-preview id="12"></video-preview>`), 0o644))

	require.Eventually(t, func() bool {
		res, ok := ts.engine.Orchestrator.Current(hostFor("home"))
		if !ok {
			return false
		}
		out, err := res.HTML()
		return err == nil && strings.Contains(out, "Charge")
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, health(t, ts).Units.Destroyed, int64(1))
	assert.GreaterOrEqual(t, w.Changes(), uint64(1))
}

func TestRender_ReleasedPassIsConflict(t *testing.T) {
	ts := newTestServer(t)
	res, err := ts.engine.Render(context.Background(), "a", `<video-preview id="11"></video-preview>`, content.HTML)
	require.NoError(t, err)
	ts.engine.Orchestrator.Release("a")

	_, err = res.HTML()
	require.Error(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/render", nil)
	ts.renderFailed(c, err)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "superseded", decodeError(t, w).Code)
}
