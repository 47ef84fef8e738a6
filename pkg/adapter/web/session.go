package web

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/marmos91/dittosite/pkg/store/kv/session"
)

// loadSession decodes the session cookie. A missing, tampered or expired
// cookie yields an empty session.
func (a *WebAdapter) loadSession(c *gin.Context, log *zap.SugaredLogger) *session.Store {
	token, err := c.Cookie(a.config.SessionCookie)
	if err != nil {
		return session.New()
	}

	s, err := a.codec.Decode(token)
	if err != nil {
		log.Debugw("Discarding session cookie", "error", err)
		return session.New()
	}
	return s
}
