package web

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/marmos91/dittosite/pkg/identity"
	"github.com/marmos91/dittosite/pkg/remote"
	"github.com/marmos91/dittosite/pkg/render"
	"github.com/marmos91/dittosite/pkg/vfs"
)

const (
	userPrefix        = "/!user"
	loginPath         = "/!user/login"
	loginCallbackPath = "/!user/login_cb"
	logoutPath        = "/!user/logout"

	// loginReturnKey keeps the page to return to across the login round
	// trip, so the provider callback URL stays fixed.
	loginReturnKey = "LOGIN_RETURN"
)

// directLinkTypes are served by redirecting to the remote download link.
var directLinkTypes = map[string]bool{
	"text/css":                 true,
	"text/javascript":          true,
	"application/javascript":   true,
	"application/x-javascript": true,
}

func (a *WebAdapter) dispatch(c *gin.Context) {
	conn := a.newConnection(c)
	if conn == nil {
		return
	}

	switch conn.path {
	case loginPath:
		conn.login()
	case loginCallbackPath:
		conn.loginCallback()
	case logoutPath:
		conn.logout()
	default:
		if isUserPath(conn.path) {
			conn.abort(http.StatusNotFound)
			return
		}
		if c.Request.Method == http.MethodPost {
			conn.update()
			return
		}
		conn.view(conn.path)
	}
}

// isUserPath reports whether p is the "/!user" tree itself or lies under it.
func isUserPath(p string) bool {
	return p == userPrefix || strings.HasPrefix(p, userPrefix+"/")
}

// isPrivate reports whether any segment of p starts with '!'.
func isPrivate(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, "!") {
			return true
		}
	}
	return false
}

// view serves p:
//   - directories serve their default file, or the listing with ?browse
//   - ?delete removes the file (author only)
//   - ?edit, or a missing path, opens the editor (author only)
//   - images stream a thumbnail with ?tn=SIZE, else redirect to the file
//   - stylesheets and scripts redirect to the file
//   - renderable files are rendered, anything else is served raw
func (conn *Connection) view(p string) {
	ctx := conn.ctx

	if conn.adapter.config.Debug && conn.args.Get("md") == "1" {
		conn.dumpMetadata(p)
		return
	}

	f, err := conn.resolver.Resolve(ctx, p)
	if err != nil {
		conn.fail(err)
		return
	}

	if f != nil && !conn.isAuthor() && isPrivate(f.Path()) {
		conn.abort(http.StatusUnauthorized)
		return
	}

	if f == nil && !conn.arg("edit") {
		conn.abort(http.StatusNotFound)
		return
	}

	if f != nil && f.IsDir() {
		def, err := f.DefaultFile(ctx)
		if err != nil {
			conn.fail(err)
			return
		}
		if def != nil && !conn.arg("browse") {
			conn.view(def.Path())
			return
		}
		body, err := conn.renderer.Browse(ctx, f)
		if err != nil {
			conn.fail(err)
			return
		}
		conn.html(body)
		return
	}

	if f != nil && conn.arg("delete") {
		conn.delete(f)
		return
	}

	if f == nil || (f.IsEditable() && conn.arg("edit")) {
		conn.edit(f, p)
		return
	}

	if f.IsImage() {
		if size := conn.args.Get("tn"); size != "" {
			data, err := f.Thumbnail(ctx, size)
			if err != nil {
				conn.fail(err)
				return
			}
			conn.respond(http.StatusOK, "image/jpeg", data)
			return
		}
		conn.redirectToFile(f)
		return
	}

	if directLinkTypes[f.MimeType()] {
		conn.redirectToFile(f)
		return
	}

	if f.IsRenderable() {
		body, err := f.RenderedContent(ctx)
		if err != nil {
			conn.fail(err)
			return
		}
		conn.html(body)
		return
	}

	data, err := f.Content(ctx)
	if err != nil {
		conn.fail(err)
		return
	}
	conn.respond(http.StatusOK, f.MimeType(), data)
}

func (conn *Connection) redirectToFile(f *vfs.File) {
	link, err := f.DirectLink(conn.ctx)
	if err != nil {
		conn.fail(err)
		return
	}
	conn.redirect(link.URL)
}

func (conn *Connection) delete(f *vfs.File) {
	if !conn.isAuthor() {
		conn.abort(http.StatusUnauthorized)
		return
	}

	if err := f.Delete(conn.ctx); err != nil {
		conn.fail(err)
		return
	}
	conn.log.Infow("File deleted", "path", f.Path())
	conn.redirect(safeReturn(conn.args.Get("purl")))
}

// edit opens the editor on f, or on a new file at p when f is nil.
func (conn *Connection) edit(f *vfs.File, p string) {
	if !conn.isAuthor() {
		conn.abort(http.StatusUnauthorized)
		return
	}

	page := render.EditPage{
		File:     f,
		PrevURL:  safeReturn(conn.args.Get("purl")),
		MimeType: conn.args.Get("mime"),
	}

	if f != nil {
		text, err := f.Text(conn.ctx)
		if err != nil {
			conn.fail(err)
			return
		}
		page.Title = f.Name() + " - edit"
		page.Content = text
		if page.MimeType == "" {
			page.MimeType = f.MimeType()
		}
	} else {
		page.Title = path.Base(p) + " - create"
		if page.MimeType == "" {
			page.MimeType = vfs.MimeTypeOf(p)
		}
	}

	body, err := conn.renderer.Edit(conn.ctx, page)
	if err != nil {
		conn.fail(err)
		return
	}
	conn.html(body)
}

// dumpMetadata answers ?md=1 in debug mode with the raw remote metadata.
func (conn *Connection) dumpMetadata(p string) {
	author := conn.capability.Author()
	if author == nil {
		conn.abort(http.StatusUnauthorized)
		return
	}

	res, err := author.Client.Metadata(conn.ctx, p, remote.MetadataOptions{List: true})
	if err != nil {
		conn.fail(err)
		return
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		conn.fail(err)
		return
	}
	conn.respond(http.StatusOK, "application/json", data)
}

// update writes the posted value to the request path, creating the file
// when it does not exist.
func (conn *Connection) update() {
	if !conn.isAuthor() {
		conn.abort(http.StatusUnauthorized)
		return
	}

	ctx := conn.ctx
	prevURL := safeReturn(conn.c.PostForm("prev_url"))
	value, ok := conn.c.GetPostForm("value")
	if !ok {
		conn.abort(http.StatusBadRequest)
		return
	}

	f, err := conn.resolver.Resolve(ctx, conn.path)
	if err != nil {
		conn.fail(err)
		return
	}

	if f != nil {
		_, err = f.Write(ctx, []byte(value))
	} else {
		_, err = conn.resolver.WriteFile(ctx, conn.path, []byte(value))
	}
	if err != nil {
		conn.fail(err)
		return
	}

	conn.log.Infow("File updated", "path", conn.path, "created", f == nil)
	conn.redirect(prevURL)
}

// ============================================================================
// Login
// ============================================================================

// callbackURL is the absolute URL of the login callback.
func (conn *Connection) callbackURL() string {
	if base := conn.adapter.config.PublicURL; base != "" {
		return strings.TrimSuffix(base, "/") + loginCallbackPath
	}

	r := conn.c.Request
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + loginCallbackPath
}

func (conn *Connection) login() {
	ctx := conn.ctx
	prevURL := safeReturn(conn.args.Get("purl"))

	viewer, err := identity.RestoreToken(ctx, conn.session, identity.AccessTokenKey)
	if err != nil {
		conn.fail(err)
		return
	}
	if viewer != nil {
		conn.redirect(prevURL)
		return
	}

	if err := conn.session.Set(ctx, loginReturnKey, []byte(prevURL)); err != nil {
		conn.fail(err)
		return
	}
	authURL, err := conn.identity.BeginLogin(ctx, conn.session, conn.callbackURL())
	if err != nil {
		conn.fail(err)
		return
	}
	conn.redirect(authURL)
}

func (conn *Connection) loginCallback() {
	ctx := conn.ctx

	viewer, err := conn.identity.CompleteLogin(ctx, conn.session,
		conn.args.Get("state"), conn.args.Get("code"), conn.callbackURL())
	if err != nil {
		conn.adapter.metrics.RecordLogin("failure")
		conn.log.Warnw("Login failed", "error", err)
		conn.text(http.StatusInternalServerError, loginFailedError)
		return
	}
	conn.adapter.metrics.RecordLogin("success")
	conn.log.Infow("Logged in", "uid", viewer.AccountID)

	prevURL := "/"
	if v, err := conn.session.Get(ctx, loginReturnKey); err == nil {
		prevURL = safeReturn(string(v))
		_ = conn.session.Remove(ctx, loginReturnKey)
	}
	conn.redirect(prevURL)
}

func (conn *Connection) logout() {
	if err := conn.identity.Logout(conn.ctx, conn.session); err != nil {
		conn.fail(err)
		return
	}
	conn.redirect(safeReturn(conn.args.Get("purl")))
}
