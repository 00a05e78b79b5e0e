package httphelpers

import (
	"context"
	"strings"
	"time"
	"vc/pkg/logger"
	"vc/pkg/oid4vcierr"

	"github.com/gin-gonic/gin"
)

type renderingHandler struct {
	client *Client
	log    *logger.Log
}

// Content renders the content, preferring JSON for the OIDC/OAuth2 endpoints
// this library's demo adapters serve regardless of the Accept header.
func (r *renderingHandler) Content(ctx context.Context, c *gin.Context, code int, data any) {
	_, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	negotiated := c.NegotiateFormat(gin.MIMEJSON, gin.MIMEPlain, gin.MIMEHTML, "*/*")

	switch negotiated {
	case gin.MIMEJSON:
		c.JSON(code, data)
	case gin.MIMEPlain, gin.MIMEHTML:
		if isOIDCEndpoint(c.Request.URL.Path) {
			c.JSON(code, data)
		} else {
			c.String(code, "%v", data)
		}
	case "*/*": // curl
		c.JSON(code, data)
	default:
		c.JSON(406, gin.H{"error": oid4vcierr.NewErrorDetails("not_acceptable", "Accept header is not supported. Supported types: application/json (text/plain, text/html).")})
	}
}

// isOIDCEndpoint checks if the path is an OIDC/OAuth2 endpoint that must return JSON
func isOIDCEndpoint(path string) bool {
	oidcIndicators := []string{
		"well-known",
		"/jwks",
		"/token",
		"/par",
		"/challenge",
		"/credential",
		"/notification",
	}

	for _, indicator := range oidcIndicators {
		if strings.Contains(path, indicator) {
			return true
		}
	}

	return false
}
