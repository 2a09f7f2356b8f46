package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambeau/cmarkup/server/config"
)

var largeBody = strings.Repeat("<p>Hello, World!</p>", 200)

func htmlHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, body)
	})
}

func serveGzip(h http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCompressionHandler_Disabled(t *testing.T) {
	for _, cfg := range []config.CompressionConfig{
		{Enabled: false, Level: "default", MinSize: "1KB"},
		{Enabled: true, Level: "none", MinSize: "1KB"},
	} {
		rec := serveGzip(newCompressionHandler(htmlHandler(largeBody), cfg))
		assert.Empty(t, rec.Header().Get("Content-Encoding"))
		assert.Equal(t, largeBody, rec.Body.String())
	}
}

func TestCompressionHandler_Levels(t *testing.T) {
	for _, level := range []string{"fastest", "default", "best"} {
		t.Run(level, func(t *testing.T) {
			cfg := config.CompressionConfig{Enabled: true, Level: level, MinSize: "1KB"}
			rec := serveGzip(newCompressionHandler(htmlHandler(largeBody), cfg))
			require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

			zr, err := gzip.NewReader(rec.Body)
			require.NoError(t, err)
			data, err := io.ReadAll(zr)
			require.NoError(t, err)
			assert.Equal(t, largeBody, string(data))
		})
	}
}

func TestCompressionHandler_BelowMinSize(t *testing.T) {
	cfg := config.CompressionConfig{Enabled: true, Level: "default", MinSize: "1KB"}
	rec := serveGzip(newCompressionHandler(htmlHandler("<p>tiny</p>"), cfg))
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "<p>tiny</p>", rec.Body.String())
}

func TestServer_CompressesHelp(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/v1/markup/help", "", "Accept-Encoding", "gzip")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
}
