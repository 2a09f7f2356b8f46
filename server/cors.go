package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sambeau/cmarkup/server/config"
)

// corsMiddleware adds Cross-Origin Resource Sharing headers for the
// configured origins and answers preflight requests.
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// CORS disabled unless origins are configured
		if len(cfg.Origins) == 0 {
			c.Next()
			return
		}

		origin := c.GetHeader("Origin")
		if origin == "" || !originAllowed(cfg, origin) {
			// Same-origin, or the browser will block the response.
			c.Next()
			return
		}

		setCORSHeaders(c, cfg, origin)

		if c.Request.Method == http.MethodOptions {
			handlePreflight(c, cfg)
			return
		}
		c.Next()
	}
}

func originAllowed(cfg config.CORSConfig, origin string) bool {
	return cfg.Origins.Contains("*") || cfg.Origins.Contains(origin)
}

func setCORSHeaders(c *gin.Context, cfg config.CORSConfig, origin string) {
	// Use the specific origin when credentials are enabled (not "*")
	if cfg.Credentials || !cfg.Origins.Contains("*") {
		c.Header("Access-Control-Allow-Origin", origin)
	} else {
		c.Header("Access-Control-Allow-Origin", "*")
	}
	if cfg.Credentials {
		c.Header("Access-Control-Allow-Credentials", "true")
	}
	c.Writer.Header().Add("Vary", "Origin")
}

func handlePreflight(c *gin.Context, cfg config.CORSConfig) {
	methods := cfg.Methods
	if len(methods) == 0 {
		methods = []string{"GET", "HEAD", "POST"}
	}
	c.Header("Access-Control-Allow-Methods", strings.Join(methods, ", "))

	if len(cfg.Headers) > 0 {
		c.Header("Access-Control-Allow-Headers", strings.Join(cfg.Headers, ", "))
	} else if requested := c.GetHeader("Access-Control-Request-Headers"); requested != "" {
		c.Header("Access-Control-Allow-Headers", requested)
	}

	if cfg.MaxAge > 0 {
		c.Header("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
	}

	c.AbortWithStatus(http.StatusNoContent)
}
