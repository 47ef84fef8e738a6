package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marmos91/dittosite/internal/logger"
)

const (
	logKey          = "log"
	requestIDHeader = "X-Request-Id"
)

// Route names used for metrics labels.
const (
	routeView    = "view"
	routeUpdate  = "update"
	routeLogin   = "login"
	routeLoginCB = "login_cb"
	routeLogout  = "logout"
	routeUser    = "user"
)

// routeOf classifies a request for metrics and logging.
func routeOf(method, p string) string {
	if isUserPath(p) {
		switch p {
		case loginPath:
			return routeLogin
		case loginCallbackPath:
			return routeLoginCB
		case logoutPath:
			return routeLogout
		}
		return routeUser
	}
	if method == http.MethodPost {
		return routeUpdate
	}
	return routeView
}

// requestContext tags the request with an id and a request-scoped logger,
// and logs its duration.
func (a *WebAdapter) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		log := logger.With("request_id", id, "client", c.ClientIP())
		c.Set(logKey, log)

		c.Next()

		elapsed := time.Since(start)
		if a.config.TimeMetric {
			log.Infow("Connection time", "method", c.Request.Method, "path", c.Request.URL.Path,
				"status", c.Writer.Status(), "elapsed", elapsed)
		} else {
			log.Debugw("Request served", "method", c.Request.Method, "path", c.Request.URL.Path,
				"status", c.Writer.Status(), "elapsed", elapsed)
		}
	}
}

// requestLogger returns the logger installed by requestContext.
func requestLogger(c *gin.Context) *zap.SugaredLogger {
	if v, ok := c.Get(logKey); ok {
		if l, ok := v.(*zap.SugaredLogger); ok {
			return l
		}
	}
	return logger.With()
}

// observe records request metrics.
func (a *WebAdapter) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		a.metrics.RecordRequestStart()
		defer a.metrics.RecordRequestEnd()

		c.Next()

		route := routeOf(c.Request.Method, c.Request.URL.Path)
		a.metrics.RecordRequest(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

// rateLimit rejects clients exceeding their token bucket with 429.
func (a *WebAdapter) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.limiter.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		a.metrics.RecordRateLimited()
		requestLogger(c).Debugw("Rate limited", "path", c.Request.URL.Path)
		c.String(http.StatusTooManyRequests, "Too many requests. Please try later.")
		c.Abort()
	}
}

// recover turns a handler panic into the generic 500 response.
func (a *WebAdapter) recover(c *gin.Context, recovered any) {
	requestLogger(c).Errorw("Handler panic", "path", c.Request.URL.Path, "panic", recovered)
	if c.Writer.Written() {
		c.Abort()
		return
	}
	c.String(http.StatusInternalServerError, internalError)
	c.Abort()
}
