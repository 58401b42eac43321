package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"memeetf/internal/observability"
)

const (
	requestIDHeader = "X-Request-ID"
	identityKey     = "identity.wallet"
)

// RequestID propagates or assigns X-Request-ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(requestIDHeader, reqID)
		c.Header(requestIDHeader, reqID)
		c.Next()
	}
}

// Identity authenticates the request with auth and stores the acting wallet.
// A nil auth lets every request through unauthenticated.
func Identity(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth == nil {
			c.Next()
			return
		}
		wallet, ok := auth(c)
		if !ok || wallet == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "authentication required"})
			return
		}
		c.Set(identityKey, wallet)
		c.Next()
	}
}

// actingAs reports whether the request may act for wallet, writing 403 when
// an authenticated identity is present and differs.
func actingAs(c *gin.Context, wallet string) bool {
	id, ok := c.Get(identityKey)
	if !ok || id == wallet {
		return true
	}
	c.JSON(http.StatusForbidden, errorResponse{Error: "wallet does not match the authenticated identity"})
	return false
}

// Logger logs every request and records its latency.
func Logger(log *zap.SugaredLogger, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status), latency)

		reqID, _ := c.Get(requestIDHeader)
		log.Infow("request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"latency", latency,
			"client_ip", c.ClientIP(),
			"request_id", reqID,
		)
	}
}

// Recovery turns a handler panic into a 500.
func Recovery(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				reqID, _ := c.Get(requestIDHeader)
				log.Errorw("panic", "error", r, "path", c.Request.URL.Path, "request_id", reqID)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
			}
		}()
		c.Next()
	}
}
