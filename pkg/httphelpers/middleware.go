package httphelpers

import (
	"context"
	"time"
	"vc/pkg/logger"
	"vc/pkg/oid4vcierr"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gin-contrib/gzip"
)

type middlewareHandler struct {
	client *Client
	log    *logger.Log
}

// Duration middleware to calculate the duration of the request and set it in the gin context
func (m *middlewareHandler) Duration(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		t := time.Now()
		c.Next()
		duration := time.Since(t)
		c.Set("duration", duration)
	}
}

// RequestID middleware to set a unique request ID in the gin context and header
func (m *middlewareHandler) RequestID(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set("req_id", id)
		c.Header("req_id", id)
		c.Next()
	}
}

// Logger middleware to log the request details
func (m *middlewareHandler) Logger(ctx context.Context) gin.HandlerFunc {
	log := m.log.New("http")
	return func(c *gin.Context) {
		c.Next()
		log.Info("request", "status", c.Writer.Status(), "url", c.Request.URL.String(), "method", c.Request.Method, "req_id", c.GetString("req_id"))
	}
}

// Crash middleware to recover from panics and return a 500 error
func (m *middlewareHandler) Crash(ctx context.Context) gin.HandlerFunc {
	log := m.log.New("http")
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				status := c.Writer.Status()
				log.Trace("crash", "error", r, "status", status, "url", c.Request.URL.Path, "method", c.Request.Method)
				m.client.Rendering.Content(ctx, c, 500, gin.H{"error": oid4vcierr.NewError("internal_server_error")})
			}
		}()
		c.Next()
	}
}

// BasicAuth middleware to authenticate the user with basic auth
func (m *middlewareHandler) BasicAuth(ctx context.Context, users map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		password, exists := users[user]
		if !ok || !exists || pass != password {
			c.AbortWithStatus(401)
			return
		}
		c.Next()
		m.log.Info("basic_auth", "user", user, "req_id", c.GetString("req_id"))
	}
}

// Gzip middleware sets the compression level
func (m *middlewareHandler) Gzip(ctx context.Context) gin.HandlerFunc {
	return gzip.Gzip(gzip.DefaultCompression)
}
