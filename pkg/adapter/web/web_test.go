package web

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosite/pkg/identity"
	"github.com/marmos91/dittosite/pkg/registry"
	"github.com/marmos91/dittosite/pkg/remote"
	remotememory "github.com/marmos91/dittosite/pkg/remote/memory"
	remotetesting "github.com/marmos91/dittosite/pkg/remote/testing"
	"github.com/marmos91/dittosite/pkg/store/kv"
	"github.com/marmos91/dittosite/pkg/store/kv/memory"
)

const authorUID = "author"

// switchProvider logs in as whatever UID is set at the time of the exchange.
type switchProvider struct {
	uid string
}

func (p *switchProvider) AuthURL(state, callbackURL string) string {
	return (&identity.LocalProvider{UID: p.uid}).AuthURL(state, callbackURL)
}

func (p *switchProvider) Exchange(ctx context.Context, code, callbackURL string) (*identity.Token, error) {
	return (&identity.LocalProvider{UID: p.uid, DisplayName: p.uid}).Exchange(ctx, code, callbackURL)
}

type site struct {
	t        *testing.T
	adapter  *WebAdapter
	remote   *remotetesting.CountingClient
	memory   *remotememory.Client
	store    kv.Store
	provider *switchProvider
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		for y := 0; y < 48; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newSite(t *testing.T, cfg Config) *site {
	t.Helper()
	ctx := context.Background()

	mem := remotememory.New(authorUID)
	files := map[string][]byte{
		"/index.html":         []byte(`<p>Hello {{ request_path }}</p>`),
		"/blog/post.md":       []byte("# Post\n\nbody text"),
		"/docs/readme.md":     []byte("# Docs"),
		"/style.css":          []byte("body{}"),
		"/paper.pdf":          []byte("%PDF-1.4"),
		"/pic.png":            pngBytes(t),
		"/!private/secret.md": []byte("# Secret"),
	}
	for p, data := range files {
		_, err := mem.WriteFile(ctx, p, data, remote.WriteOptions{Overwrite: true})
		require.NoError(t, err)
	}

	client := remotetesting.NewCountingClient(mem)
	store := memory.NewMemoryStore()
	provider := &switchProvider{uid: authorUID}

	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterStore(registry.StoreCache, store))
	reg.SetRemote(client)
	reg.SetIdentity(identity.NewManager(authorUID, store, client, provider))

	if cfg.SessionSecret == "" {
		cfg.SessionSecret = "test-secret"
	}
	a := New(cfg, nil)
	a.SetRegistry(reg)

	return &site{t: t, adapter: a, remote: client, memory: mem, store: store, provider: provider}
}

// browser keeps cookies across requests.
type browser struct {
	s       *site
	cookies map[string]*http.Cookie
}

func (s *site) browser() *browser {
	return &browser{s: s, cookies: make(map[string]*http.Cookie)}
}

func (b *browser) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	b.s.adapter.Handler().ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	return b.do(http.MethodGet, target, nil)
}

// login runs the login round trip as uid and returns the final response.
func (b *browser) login(uid, purl string) *httptest.ResponseRecorder {
	b.s.provider.uid = uid

	rec := b.get(loginPath + "?purl=" + url.QueryEscape(purl))
	require.Equal(b.s.t, http.StatusFound, rec.Code)

	cb, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(b.s.t, err)
	require.Equal(b.s.t, loginCallbackPath, cb.Path)

	return b.get(cb.RequestURI())
}

// connected returns a site whose author is logged in, and the author's browser.
func connected(t *testing.T) (*site, *browser) {
	s := newSite(t, Config{})
	author := s.browser()
	rec := author.login(authorUID, "/")
	require.Equal(t, http.StatusFound, rec.Code)
	return s, author
}

// ============================================================================
// Connection setup
// ============================================================================

func TestAnonymousWithoutAuthorRedirectsToLogin(t *testing.T) {
	s := newSite(t, Config{})
	rec := s.browser().get("/blog/post.md")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/!user/login?purl=%2Fblog%2Fpost.md", rec.Header().Get("Location"))
}

func TestViewerCannotConnectSite(t *testing.T) {
	s := newSite(t, Config{})
	guest := s.browser()
	require.Equal(t, http.StatusFound, guest.login("guest", "/").Code)

	rec := guest.get("/blog/post.md")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, notConnectedError, rec.Body.String())
}

func TestAuthorLoginConnectsSite(t *testing.T) {
	s := newSite(t, Config{})
	author := s.browser()

	rec := author.login(authorUID, "/blog/post.md")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/blog/post.md", rec.Header().Get("Location"))

	has, err := kv.Has(context.Background(), s.store, identity.AuthorTokenKey(authorUID))
	require.NoError(t, err)
	assert.True(t, has, "author token stored server-side")

	// Anonymous visitors now see the site.
	rec = s.browser().get("/blog/post.md")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Post")
	assert.Contains(t, rec.Body.String(), "body text")
}

func TestAuthorReconnectsFromOwnSession(t *testing.T) {
	s, author := connected(t)
	require.NoError(t, s.adapter.registry.Identity().DisconnectAuthor(context.Background()))

	rec := author.get("/blog/post.md")
	assert.Equal(t, http.StatusOK, rec.Code, "author token promoted again")
}

func TestLoginCallbackRejectsBadState(t *testing.T) {
	s := newSite(t, Config{})
	b := s.browser()
	require.Equal(t, http.StatusFound, b.get(loginPath).Code)

	rec := b.get(loginCallbackPath + "?state=forged&code=local")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, loginFailedError, rec.Body.String())
}

func TestLoginWhenLoggedInRedirects(t *testing.T) {
	_, author := connected(t)
	rec := author.get(loginPath + "?purl=%2Fdocs")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/docs", rec.Header().Get("Location"))
}

func TestLogout(t *testing.T) {
	_, author := connected(t)

	rec := author.get(logoutPath + "?purl=%2Fblog")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/blog", rec.Header().Get("Location"))

	// Logged out: login starts a new round trip.
	rec = author.get(loginPath)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), loginCallbackPath)

	// Author-only pages are closed.
	assert.Equal(t, http.StatusUnauthorized, author.get("/new.md?edit").Code)
}

func TestOpenRedirectRejected(t *testing.T) {
	_, author := connected(t)
	rec := author.get(logoutPath + "?purl=" + url.QueryEscape("//evil.example"))
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

// ============================================================================
// View
// ============================================================================

func TestViewDirectoryServesDefaultFile(t *testing.T) {
	s, _ := connected(t)
	rec := s.browser().get("/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<p>Hello /</p>")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestViewDirectoryBrowse(t *testing.T) {
	s, _ := connected(t)

	rec := s.browser().get("/docs")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "readme.md")

	rec = s.browser().get("/?browse")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "index.html")
	assert.NotContains(t, rec.Body.String(), "Hello")
}

func TestViewMissing(t *testing.T) {
	s, author := connected(t)

	assert.Equal(t, http.StatusNotFound, s.browser().get("/nope.md").Code)
	assert.Equal(t, http.StatusUnauthorized, s.browser().get("/nope.md?edit").Code)

	rec := author.get("/nope.md?edit&purl=%2Fblog")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nope.md - create")
	assert.Contains(t, rec.Body.String(), "text/x-markdown")
}

func TestViewEditExisting(t *testing.T) {
	_, author := connected(t)

	rec := author.get("/blog/post.md?edit")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "post.md - edit")
	assert.Contains(t, rec.Body.String(), "body text")
}

func TestViewPrivateSegment(t *testing.T) {
	s, author := connected(t)

	assert.Equal(t, http.StatusUnauthorized, s.browser().get("/!private/secret.md").Code)

	rec := author.get("/!private/secret.md")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Secret")
}

func TestViewPathSharingUserPrefix(t *testing.T) {
	s, author := connected(t)
	_, err := s.memory.WriteFile(context.Background(), "/!userdata/notes.md", []byte("# Notes"), remote.WriteOptions{})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, s.browser().get("/!userdata/notes.md").Code)

	rec := author.get("/!userdata/notes.md")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Notes")

	assert.Equal(t, http.StatusNotFound, author.get("/!user").Code)
}

func TestViewDirectLinkTypes(t *testing.T) {
	s, _ := connected(t)

	rec := s.browser().get("/style.css")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "memory://author/style.css"))

	rec = s.browser().get("/pic.png")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/pic.png")
}

func TestViewThumbnail(t *testing.T) {
	s, _ := connected(t)

	rec := s.browser().get("/pic.png?tn=s")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte{0xFF, 0xD8}), "JPEG magic")
}

func TestViewRawContent(t *testing.T) {
	s, _ := connected(t)

	rec := s.browser().get("/paper.pdf")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.4", rec.Body.String())
}

func TestViewCachedAcrossConnections(t *testing.T) {
	s, _ := connected(t)

	require.Equal(t, http.StatusOK, s.browser().get("/blog/post.md").Code)
	s.remote.Reset()

	require.Equal(t, http.StatusOK, s.browser().get("/blog/post.md").Code)
	assert.Equal(t, 0, s.remote.Count(remotetesting.OpReadFile), "content served from the cache store")
}

func TestDelete(t *testing.T) {
	s, author := connected(t)

	assert.Equal(t, http.StatusUnauthorized, s.browser().get("/paper.pdf?delete").Code)

	rec := author.get("/paper.pdf?delete&purl=%2Fdocs")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/docs", rec.Header().Get("Location"))

	assert.Equal(t, http.StatusNotFound, s.browser().get("/paper.pdf").Code)
}

// ============================================================================
// Update
// ============================================================================

func TestUpdateCreatesAndOverwrites(t *testing.T) {
	s, author := connected(t)
	ctx := context.Background()

	rec := author.do(http.MethodPost, "/blog/new.md", url.Values{"prev_url": {"/blog/new.md"}, "value": {"# New"}})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/blog/new.md", rec.Header().Get("Location"))

	data, err := s.memory.ReadFile(ctx, "/blog/new.md", "")
	require.NoError(t, err)
	assert.Equal(t, "# New", string(data))

	rec = author.do(http.MethodPost, "/blog/new.md", url.Values{"value": {"# Newer"}})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	data, err = s.memory.ReadFile(ctx, "/blog/new.md", "")
	require.NoError(t, err)
	assert.Equal(t, "# Newer", string(data))

	rec = s.browser().get("/blog/new.md")
	assert.Contains(t, rec.Body.String(), "Newer")
}

func TestUpdateRequiresAuthor(t *testing.T) {
	s, _ := connected(t)
	rec := s.browser().do(http.MethodPost, "/blog/post.md", url.Values{"value": {"defaced"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateRequiresValue(t *testing.T) {
	_, author := connected(t)
	rec := author.do(http.MethodPost, "/blog/post.md", url.Values{"prev_url": {"/"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================================================
// Errors and middleware
// ============================================================================

func TestRemoteRateLimitMessage(t *testing.T) {
	s, _ := connected(t)
	s.remote.MetadataFunc = func(ctx context.Context, p string, opts remote.MetadataOptions) (*remote.MetadataResult, error) {
		return nil, remote.NewError("metadata", p, http.StatusServiceUnavailable, nil)
	}

	rec := s.browser().get("/blog/post.md")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, rateLimitedError, rec.Body.String())
}

func TestRemoteErrorHiddenUnlessDebug(t *testing.T) {
	s, _ := connected(t)
	s.remote.MetadataFunc = func(ctx context.Context, p string, opts remote.MetadataOptions) (*remote.MetadataResult, error) {
		return nil, remote.NewError("metadata", p, http.StatusBadGateway, nil)
	}

	rec := s.browser().get("/blog/post.md")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, remoteError, rec.Body.String())

	s.adapter.config.Debug = true
	rec = s.browser().get("/blog/post.md")
	assert.Contains(t, rec.Body.String(), "status 502")
}

func TestDebugMetadataDump(t *testing.T) {
	s, _ := connected(t)
	s.adapter.config.Debug = true

	rec := s.browser().get("/blog?md=1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "post.md")
}

func TestRateLimit(t *testing.T) {
	s := newSite(t, Config{RateLimit: RateLimitConfig{RequestsPerSecond: 1, Burst: 1}})
	b := s.browser()

	assert.Equal(t, http.StatusFound, b.get("/").Code)
	assert.Equal(t, http.StatusTooManyRequests, b.get("/").Code)
}

func TestRequestID(t *testing.T) {
	s := newSite(t, Config{})
	rec := s.browser().get("/")
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestTamperedSessionIgnored(t *testing.T) {
	s, author := connected(t)
	cookie := author.cookies[s.adapter.config.SessionCookie]
	require.NotNil(t, cookie)
	cookie.Value += "x"

	assert.Equal(t, http.StatusUnauthorized, author.get("/nope.md?edit").Code)
}

func TestRouteOf(t *testing.T) {
	assert.Equal(t, routeView, routeOf(http.MethodGet, "/a.md"))
	assert.Equal(t, routeUpdate, routeOf(http.MethodPost, "/a.md"))
	assert.Equal(t, routeLogin, routeOf(http.MethodGet, loginPath))
	assert.Equal(t, routeLoginCB, routeOf(http.MethodGet, loginCallbackPath))
	assert.Equal(t, routeLogout, routeOf(http.MethodGet, logoutPath))
	assert.Equal(t, routeUser, routeOf(http.MethodGet, "/!user/other"))
	assert.Equal(t, routeUser, routeOf(http.MethodGet, "/!user"))
	assert.Equal(t, routeView, routeOf(http.MethodGet, "/!userdata/a.md"))
}

func TestIsPrivate(t *testing.T) {
	assert.True(t, isPrivate("/!drafts/a.md"))
	assert.True(t, isPrivate("/a/!b"))
	assert.False(t, isPrivate("/a/b!.md"))
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestServeAndStop(t *testing.T) {
	s := newSite(t, Config{})
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.adapter.serve(context.Background(), listener) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + "/")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, s.adapter.Stop(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after Stop")
	}
	assert.NoError(t, s.adapter.Stop(context.Background()), "idempotent")
}

func TestServeContextCancel(t *testing.T) {
	s := newSite(t, Config{})
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.adapter.serve(ctx, listener) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestNewPanicsOnInvalidConfig(t *testing.T) {
	assert.Panics(t, func() { New(Config{PublicURL: "not a url"}, nil) })
	assert.Equal(t, "HTTP", New(Config{}, nil).Protocol())
	assert.Equal(t, 8080, New(Config{}, nil).Port())
}
