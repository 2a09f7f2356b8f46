package server

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/sambeau/cmarkup/pkg/content"
	"github.com/sambeau/cmarkup/pkg/markup/render"
)

// pageHosts owns one render pass per content document. A page is rendered
// on first request and re-rendered when its file changes, which tears down
// the units of the previous pass.
type pageHosts struct {
	dir    *content.Dir
	engine *Engine
	log    zerolog.Logger

	group singleflight.Group

	mu       sync.Mutex
	rendered map[string]pageState
}

type pageState struct {
	path    string
	modTime time.Time
}

func newPageHosts(dir *content.Dir, engine *Engine, log zerolog.Logger) *pageHosts {
	return &pageHosts{
		dir:      dir,
		engine:   engine,
		log:      log,
		rendered: make(map[string]pageState),
	}
}

func hostFor(name string) string { return pageHostPrefix + name }

// Result returns the current pass for the page, rendering it when the
// document changed since the last pass. Concurrent callers for one page
// share a single render.
func (p *pageHosts) Result(ctx context.Context, name string) (*render.Result, error) {
	doc, err := p.dir.Load(name)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	st, ok := p.rendered[name]
	p.mu.Unlock()
	if ok && st.path == doc.Path && st.modTime.Equal(doc.ModTime) {
		if res, live := p.engine.Orchestrator.Current(hostFor(name)); live {
			return res, nil
		}
	}

	v, err, _ := p.group.Do(name, func() (any, error) {
		return p.render(ctx, doc)
	})
	if err != nil {
		return nil, err
	}
	return v.(*render.Result), nil
}

// Page renders the page's HTML. If the pass is released while it is being
// written out, the page is rendered once more.
func (p *pageHosts) Page(ctx context.Context, name string) (*render.Result, string, error) {
	for attempt := 0; ; attempt++ {
		res, err := p.Result(ctx, name)
		if err != nil {
			return nil, "", err
		}
		body, err := res.HTML()
		if errors.Is(err, render.ErrSuperseded) && attempt == 0 {
			p.log.Debug().Str("page", name).Msg("pass released while writing, rendering again")
			continue
		}
		return res, body, err
	}
}

func (p *pageHosts) render(ctx context.Context, doc *content.Document) (*render.Result, error) {
	res, err := p.engine.Render(ctx, hostFor(doc.Name), doc.Source, doc.Format)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.rendered[doc.Name] = pageState{path: doc.Path, modTime: doc.ModTime}
	p.mu.Unlock()

	p.log.Debug().
		Str("page", doc.Name).
		Int("instances", len(res.Group)).
		Int("fallbacks", res.Output.Count(render.NodeFallback)).
		Dur("duration", res.Duration).
		Msg("page rendered")
	return res, nil
}

// Refresh re-renders a page that has been served before. A page whose file
// is gone is released. Pages nobody has requested are left alone.
func (p *pageHosts) Refresh(ctx context.Context, name string) error {
	p.mu.Lock()
	_, ok := p.rendered[name]
	p.mu.Unlock()
	if !ok {
		return nil
	}

	doc, err := p.dir.Load(name)
	if errors.Is(err, content.ErrNotFound) {
		p.Release(name)
		return nil
	}
	if err != nil {
		return err
	}
	_, err, _ = p.group.Do(name, func() (any, error) {
		return p.render(ctx, doc)
	})
	return err
}

// Release tears down the page's pass.
func (p *pageHosts) Release(name string) {
	p.mu.Lock()
	delete(p.rendered, name)
	p.mu.Unlock()

	td := p.engine.Orchestrator.Release(hostFor(name))
	p.log.Info().Str("page", name).Int("destroyed", td.Destroyed).Msg("page released")
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} - {{.Instance}}</title>
</head>
<body>
<main class="custom-markup-container" data-page="{{.Title}}">
{{.Body}}
</main>
</body>
</html>
`))

type pageView struct {
	Title    string
	Instance string
	Body     template.HTML
}

func (s *Server) handlePage(c *gin.Context) {
	name := c.Param("name")
	c.Set(ctxHost, hostFor(name))

	res, body, err := s.pages.Page(c.Request.Context(), name)
	switch {
	case errors.Is(err, content.ErrNotFound), errors.Is(err, content.ErrInvalidName):
		abortWithError(c, http.StatusNotFound, "not_found", "no page named "+name)
		return
	case err != nil:
		s.renderFailed(c, err)
		return
	}

	c.Set(ctxInstances, len(res.Group))
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	err = pageTemplate.Execute(c.Writer, pageView{
		Title:    name,
		Instance: s.config.Instance.Name,
		// Sanitized on the way in; the rest is unit markup.
		Body: template.HTML(body),
	})
	if err != nil {
		c.Error(err)
	}
}

func (s *Server) handlePageList(c *gin.Context) {
	names, err := s.pages.dir.List()
	if err != nil {
		abortWithError(c, http.StatusNotFound, "not_found", "content directory is not readable")
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"pages": names})
}
