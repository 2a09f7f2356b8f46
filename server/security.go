package server

import (
	"github.com/gin-gonic/gin"

	"github.com/sambeau/cmarkup/server/config"
)

// securityHeaders adds the configured security headers to every response.
// In dev mode browser caching is disabled so edited pages show up at once.
func securityHeaders(cfg config.SecurityConfig, devMode bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()

		if devMode {
			h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}

		if cfg.ContentTypeOptions != "" {
			h.Set("X-Content-Type-Options", cfg.ContentTypeOptions)
		}
		// Players render iframes; SAMEORIGIN keeps our own pages frameable.
		if cfg.FrameOptions != "" {
			h.Set("X-Frame-Options", cfg.FrameOptions)
		}
		if cfg.ReferrerPolicy != "" {
			h.Set("Referrer-Policy", cfg.ReferrerPolicy)
		}
		if cfg.CSP != "" {
			h.Set("Content-Security-Policy", cfg.CSP)
		}

		c.Next()
	}
}

// configureProxy tells gin which proxies may set X-Forwarded-For and
// X-Real-IP, so c.ClientIP() reports the real client.
func configureProxy(r *gin.Engine, cfg config.ProxyConfig) error {
	if !cfg.Trusted {
		return r.SetTrustedProxies(nil)
	}
	if len(cfg.TrustedIPs) == 0 {
		return r.SetTrustedProxies([]string{"0.0.0.0/0", "::/0"})
	}
	return r.SetTrustedProxies(cfg.TrustedIPs)
}
