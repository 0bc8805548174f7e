package api

import (
	"context"
	_ "embed"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const readinessTimeout = 3 * time.Second

//go:embed templates/plugin_browser.html
var pluginBrowserPage []byte

func (s *Server) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", pluginBrowserPage)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	failed := gin.H{}
	for _, check := range s.checks {
		if err := check.Check(ctx); err != nil {
			log.Warn().Err(err).Str("check", check.Name).Msg("readiness check failed")
			failed[check.Name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": failed})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
