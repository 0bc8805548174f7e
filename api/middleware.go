package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"plugin-store/catalog"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const invalidAuthKey = "INVALID AUTH KEY"

func errorBody(message string) gin.H {
	return gin.H{"detail": message, "message": message}
}

// respondError writes the public form of err and aborts the chain.
func respondError(c *gin.Context, err error) {
	var serviceErr *catalog.ServiceError
	if errors.As(err, &serviceErr) {
		if serviceErr.Code >= http.StatusInternalServerError {
			log.Error().Err(serviceErr.Inner).Str("path", c.FullPath()).Msg(serviceErr.Message)
		}
		c.AbortWithStatusJSON(serviceErr.Code, errorBody(serviceErr.Message))

		return
	}

	log.Error().Err(err).Str("path", c.FullPath()).Msg("unhandled error")
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("Internal server error"))
}

func respondBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, errorBody(err.Error()))
}

// requireAuth accepts the submit key either raw or as a Bearer token.
func requireAuth(key string) gin.HandlerFunc {
	expected := []byte(key)

	return func(c *gin.Context) {
		provided := strings.TrimSpace(c.GetHeader("Authorization"))
		if after, ok := strings.CutPrefix(provided, "Bearer "); ok {
			provided = strings.TrimSpace(after)
		}

		if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody(invalidAuthKey))
			return
		}

		c.Next()
	}
}

func corsMiddleware(origin string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{origin},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request handled")
	}
}
