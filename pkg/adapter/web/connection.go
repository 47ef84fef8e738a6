package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/marmos91/dittosite/pkg/identity"
	"github.com/marmos91/dittosite/pkg/registry"
	"github.com/marmos91/dittosite/pkg/remote"
	"github.com/marmos91/dittosite/pkg/render"
	"github.com/marmos91/dittosite/pkg/store/kv/session"
	"github.com/marmos91/dittosite/pkg/vfs"
)

// Response texts.
const (
	internalError      = "Internal Error"
	remoteError        = "Internal Error (remote)"
	rateLimitedError   = "API rate limit exceeded. Please try later."
	notConnectedError  = "Author account was not connected."
	connectFailedError = "Failed to connect author account."
	loginFailedError   = "Failed to authorize user."
)

// Connection is the state of one request: the client session, the
// capability derived from it, and the resolver and renderer bound to that
// capability. Nothing in it outlives the response.
type Connection struct {
	adapter *WebAdapter
	c       *gin.Context
	ctx     context.Context
	log     *zap.SugaredLogger

	// path is the request path, normalized
	path string
	args url.Values

	session    *session.Store
	identity   *identity.Manager
	capability identity.Capability
	resolver   *vfs.Resolver
	renderer   *render.Renderer
}

// newConnection decodes the session and resolves the request capability.
// For paths outside /!user it also makes sure the author account is
// connected. It returns nil when it already wrote the response.
func (a *WebAdapter) newConnection(c *gin.Context) *Connection {
	conn := &Connection{
		adapter: a,
		c:       c,
		ctx:     c.Request.Context(),
		log:     requestLogger(c),
		path:    remote.NormalizePath(c.Param("path")),
		args:    c.Request.URL.Query(),
	}
	conn.session = a.loadSession(c, conn.log)

	if a.registry == nil || a.registry.Identity() == nil {
		conn.fail(errors.New("registry not configured"))
		return nil
	}
	conn.identity = a.registry.Identity()

	store, err := a.registry.GetStore(registry.StoreCache)
	if err != nil {
		conn.fail(err)
		return nil
	}

	if isUserPath(conn.path) {
		conn.capability = identity.Static{}
	} else if !conn.connectAuthor() {
		return nil
	}

	conn.renderer = render.New(render.Request{
		Path:       conn.path,
		Args:       conn.args,
		Capability: conn.capability,
		Debug:      a.config.Debug,
	})
	conn.resolver = vfs.NewResolver(vfs.Config{
		Capability:   conn.capability,
		Store:        store,
		Renderer:     conn.renderer,
		CacheOptions: a.cacheOptions,
	})
	return conn
}

// connectAuthor sets the capability and makes sure the author account is
// connected:
//   - no viewer: redirect to the login page
//   - the viewer is the author: promote the viewer token
//   - anyone else: fail, only the author can connect the site
func (conn *Connection) connectAuthor() bool {
	capability, err := conn.identity.Capability(conn.ctx, conn.session)
	if err != nil {
		conn.fail(err)
		return false
	}
	conn.capability = capability
	if capability.Author() != nil {
		return true
	}

	if capability.Viewer() == nil {
		conn.redirect(loginPath + "?purl=" + url.QueryEscape(conn.c.Request.URL.RequestURI()))
		return false
	}

	isAuthor, err := conn.identity.IsAuthor(conn.ctx, conn.session)
	if err != nil {
		conn.fail(err)
		return false
	}
	if !isAuthor {
		conn.log.Errorw("Author account is not connected", "viewer", capability.Viewer().AccountID)
		conn.text(http.StatusInternalServerError, notConnectedError)
		return false
	}

	if err := conn.identity.UpdateAuthorToken(conn.ctx, conn.session); err != nil {
		conn.fail(err)
		return false
	}
	if conn.capability, err = conn.identity.Capability(conn.ctx, conn.session); err != nil {
		conn.fail(err)
		return false
	}
	if conn.capability.Author() == nil {
		conn.log.Errorw("Failed to connect author account")
		conn.text(http.StatusInternalServerError, connectFailedError)
		return false
	}
	return true
}

// isAuthor reports whether the viewer is the author.
func (conn *Connection) isAuthor() bool {
	return conn.capability != nil && conn.capability.IsAuthor()
}

// arg reports whether the query has the named argument, with or without a
// value.
func (conn *Connection) arg(name string) bool {
	_, ok := conn.args[name]
	return ok
}

// safeReturn accepts only same-site paths as redirect targets.
func safeReturn(v string) string {
	if v == "" || !strings.HasPrefix(v, "/") || strings.HasPrefix(v, "//") || strings.HasPrefix(v, "/\\") {
		return "/"
	}
	return v
}

// ============================================================================
// Responses
// ============================================================================

// commit writes the session cookie if the session changed. It must run
// before the response body.
func (conn *Connection) commit() {
	if conn.session == nil || !conn.session.Dirty() {
		return
	}
	a := conn.adapter
	token, err := a.codec.Encode(conn.session)
	if err != nil {
		conn.log.Errorw("Failed to encode session", "error", err)
		return
	}
	conn.c.SetSameSite(http.SameSiteLaxMode)
	conn.c.SetCookie(a.config.SessionCookie, token, int(a.codec.TTL().Seconds()), "/", "", a.config.SecureCookie, true)
}

func (conn *Connection) redirect(location string) {
	conn.commit()
	conn.c.Redirect(http.StatusFound, location)
}

func (conn *Connection) respond(status int, contentType string, body []byte) {
	conn.commit()
	conn.c.Data(status, contentType, body)
}

func (conn *Connection) text(status int, msg string) {
	conn.respond(status, "text/plain; charset=utf-8", []byte(msg))
}

func (conn *Connection) html(body []byte) {
	conn.respond(http.StatusOK, "text/html; charset=utf-8", body)
}

// abort answers with an error page for status.
func (conn *Connection) abort(status int) {
	title := fmt.Sprintf("%d %s", status, http.StatusText(status))
	if conn.renderer != nil {
		body, err := conn.renderer.Error(conn.ctx, title, conn.path)
		if err == nil {
			conn.respond(status, "text/html; charset=utf-8", body)
			return
		}
		conn.log.Warnw("Failed to render error page", "error", err)
	}
	conn.text(status, title)
}

// fail maps an error to a 500 response. A remote 503 tells the visitor to
// come back later; details are shown only in debug mode.
func (conn *Connection) fail(err error) {
	conn.log.Errorw("Request failed", "path", conn.path, "error", err)

	switch {
	case remote.IsRateLimited(err):
		conn.text(http.StatusInternalServerError, rateLimitedError)
	case conn.adapter.config.Debug:
		conn.text(http.StatusInternalServerError, fmt.Sprintf("%s: %v", internalError, err))
	case remote.StatusOf(err) != 0:
		conn.text(http.StatusInternalServerError, remoteError)
	default:
		conn.text(http.StatusInternalServerError, internalError)
	}
}
