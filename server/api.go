package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sambeau/cmarkup/pkg/content"
	"github.com/sambeau/cmarkup/pkg/markup/help"
	"github.com/sambeau/cmarkup/pkg/markup/render"
)

// RenderRequest is the body of POST /api/v1/render.
type RenderRequest struct {
	Host    string `json:"host"`
	Content string `json:"content"`
	Format  string `json:"format"` // "html" (default) or "markdown"
}

// RenderedInstance describes one mounted unit of a pass.
type RenderedInstance struct {
	ID     uint64 `json:"id"`
	Tag    string `json:"tag"`
	Anchor string `json:"anchor"`
}

// RenderResponse is the body of a successful render.
type RenderResponse struct {
	Host          string             `json:"host"`
	HTML          string             `json:"html"`
	Instances     []RenderedInstance `json:"instances"`
	Fallbacks     int                `json:"fallbacks"`
	Warnings      []string           `json:"warnings"`
	FetchFailures []string           `json:"fetch_failures"`
	MemoHits      int64              `json:"memo_hits"`
	MemoMisses    int64              `json:"memo_misses"`
	DurationMs    int64              `json:"duration_ms"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	OK         bool        `json:"ok"`
	Hosts      int         `json:"hosts"`
	Passes     int64       `json:"passes"`
	Superseded int64       `json:"superseded"`
	Units      UnitsHealth `json:"units"`
}

// UnitsHealth reports dynamic element counters.
type UnitsHealth struct {
	Live      int   `json:"live"`
	Mounted   int64 `json:"mounted"`
	Destroyed int64 `json:"destroyed"`
	Failed    int64 `json:"failed"`
}

// pageHostPrefix namespaces hosts owned by /pages so API clients cannot
// replace them.
const pageHostPrefix = "page:"

func (s *Server) handleHealth(c *gin.Context) {
	st := s.engine.Orchestrator.Stats()
	c.JSON(http.StatusOK, HealthResponse{
		OK:         true,
		Hosts:      st.Hosts,
		Passes:     st.Passes,
		Superseded: st.Superseded,
		Units: UnitsHealth{
			Live:      st.Units.Live,
			Mounted:   st.Units.Mounted,
			Destroyed: st.Units.Destroyed,
			Failed:    st.Units.Failed,
		},
	})
}

func (s *Server) handleRender(c *gin.Context) {
	if s.maxBody > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody)
	}

	var req RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, http.StatusRequestEntityTooLarge, "too_large", "request body exceeds render.max_body_size")
			return
		}
		abortWithError(c, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}

	req.Host = strings.TrimSpace(req.Host)
	if req.Host == "" {
		abortWithError(c, http.StatusBadRequest, "bad_request", "host is required")
		return
	}
	if strings.HasPrefix(req.Host, pageHostPrefix) {
		abortWithError(c, http.StatusBadRequest, "bad_request", "hosts starting with "+pageHostPrefix+" are reserved for pages")
		return
	}
	format, err := content.ParseFormat(req.Format)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	c.Set(ctxHost, req.Host)
	res, err := s.engine.Render(c.Request.Context(), req.Host, req.Content, format)
	if err != nil {
		s.renderFailed(c, err)
		return
	}

	out, err := res.HTML()
	if err != nil {
		s.renderFailed(c, err)
		return
	}

	resp := newRenderResponse(res, out)
	c.Set(ctxInstances, len(resp.Instances))
	c.Set(ctxWarnings, len(resp.Warnings))
	c.Set(ctxFailures, len(resp.FetchFailures))
	c.JSON(http.StatusOK, resp)
}

// renderFailed maps pass errors to responses.
func (s *Server) renderFailed(c *gin.Context, err error) {
	c.Error(err)
	switch {
	case errors.Is(err, render.ErrSuperseded):
		abortWithError(c, http.StatusConflict, "superseded", "a newer render of this host started before this one finished")
	case c.Request.Context().Err() != nil:
		// Client went away; nobody reads the body.
		c.AbortWithStatus(499)
	default:
		abortWithError(c, http.StatusInternalServerError, "render_failed", err.Error())
	}
}

func newRenderResponse(res *render.Result, html string) RenderResponse {
	resp := RenderResponse{
		Host:          res.Host.ID,
		HTML:          html,
		Instances:     []RenderedInstance{},
		Fallbacks:     res.Output.Count(render.NodeFallback),
		Warnings:      errorStrings(res.Warnings),
		FetchFailures: errorStrings(res.FetchFailures),
		MemoHits:      res.Memo.Hits,
		MemoMisses:    res.Memo.Misses,
		DurationMs:    res.Duration.Milliseconds(),
	}
	res.Output.Walk(func(n *render.Node) {
		if n.Kind == render.NodeAnchor {
			resp.Instances = append(resp.Instances, RenderedInstance{
				ID:     uint64(n.Instance),
				Tag:    n.Tag,
				Anchor: n.Anchor,
			})
		}
	})
	return resp
}

func errorStrings(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

func (s *Server) handleReleaseHost(c *gin.Context) {
	host := c.Param("host")
	if strings.HasPrefix(host, pageHostPrefix) {
		abortWithError(c, http.StatusBadRequest, "bad_request", "page hosts are managed by the server")
		return
	}
	c.Set(ctxHost, host)
	if _, ok := s.engine.Orchestrator.Current(host); !ok {
		abortWithError(c, http.StatusNotFound, "not_found", "no live render for host "+host)
		return
	}
	td := s.engine.Orchestrator.Release(host)
	c.JSON(http.StatusOK, gin.H{
		"host":      host,
		"destroyed": td.Destroyed,
		"failures":  errorStrings(td.Failures),
	})
}

// handleHelp serves tag documentation. ?tag= selects one tag and
// ?format=html returns an HTML fragment instead of JSON.
func (s *Server) handleHelp(c *gin.Context) {
	var topics []*help.Topic
	name := c.Query("tag")
	if name != "" {
		t, err := help.Describe(s.engine.Registry, name)
		if err != nil {
			abortWithDetails(c, http.StatusNotFound, "unknown_tag", err.Error(),
				gin.H{"tags": s.engine.Registry.Names()})
			return
		}
		topics = []*help.Topic{t}
	} else {
		topics = help.All(s.engine.Registry)
	}

	if c.Query("format") == "html" {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Status(http.StatusOK)
		if err := help.WriteHTML(c.Writer, topics); err != nil {
			c.Error(err)
		}
		return
	}
	if name != "" {
		c.JSON(http.StatusOK, topics[0])
		return
	}
	c.JSON(http.StatusOK, topics)
}
