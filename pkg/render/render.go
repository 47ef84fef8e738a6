// Package render turns virtual files into HTML pages.
//
// Markdown files are wrapped in the default page layout. HTML files are
// evaluated as html/template sources with the site functions available:
//
//	enumerate PATTERNS [INDEX [COUNT [SORT_KEY [REVERSE [EXCLUDES]]]]]
//	render PATH
//	create_edit_url PATH
//	request_path
//	args [NAME]
//
// A Renderer is built per request and carries the request path, the query
// arguments and the viewer.
package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"path"

	"github.com/marmos91/dittosite/pkg/identity"
	"github.com/marmos91/dittosite/pkg/remote"
	"github.com/marmos91/dittosite/pkg/vfs"
)

//go:embed templates/*.html
var templateFiles embed.FS

// maxDepth bounds nested render calls.
const maxDepth = 8

// base holds the built-in pages. Functions are rebound per execution.
var base = template.Must(template.New("site").Funcs(stubFuncs()).ParseFS(templateFiles, "templates/*.html"))

// Request is the ambient context templates evaluate against.
type Request struct {
	// Path is the URL path of the request.
	Path string

	// Args are the query arguments.
	Args url.Values

	Capability identity.Capability

	// Debug shows missing includes instead of hiding them.
	Debug bool
}

// Page is the data of every template execution.
type Page struct {
	Title       string
	File        *vfs.File
	RequestPath string
	Args        map[string]string
	Viewer      *identity.Viewer
	IsAuthor    bool
	Debug       bool

	// page
	Body template.HTML

	// browse
	Parent string
	Dirs   []*remote.Metadata
	Files  []*vfs.File

	// edit and error
	Content  string
	MimeType string
	PrevURL  string
}

// Renderer renders pages for one request. It implements vfs.Renderer.
type Renderer struct {
	req   Request
	depth int
}

// New creates a renderer for one request.
func New(req Request) *Renderer {
	if req.Args == nil {
		req.Args = url.Values{}
	}
	if req.Capability == nil {
		req.Capability = identity.Static{}
	}
	return &Renderer{req: req}
}

// page fills the request-derived fields of a Page.
func (r *Renderer) page(f *vfs.File, title string) *Page {
	args := make(map[string]string, len(r.req.Args))
	for k := range r.req.Args {
		args[k] = r.req.Args.Get(k)
	}
	return &Page{
		Title:       title,
		File:        f,
		RequestPath: r.req.Path,
		Args:        args,
		Viewer:      r.req.Capability.Viewer(),
		IsAuthor:    r.req.Capability.IsAuthor(),
		Debug:       r.req.Debug,
	}
}

func (r *Renderer) execute(ctx context.Context, f *vfs.File, name string, p *Page) ([]byte, error) {
	t, err := base.Clone()
	if err != nil {
		return nil, err
	}
	t.Funcs(r.funcs(ctx, f))

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, p); err != nil {
		return nil, fmt.Errorf("execute %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// RenderMarkdown wraps a converted markdown fragment in the page layout.
func (r *Renderer) RenderMarkdown(ctx context.Context, f *vfs.File, fragment []byte) ([]byte, error) {
	p := r.page(f, f.NameWithoutExt())
	p.Body = template.HTML(fragment)
	return r.execute(ctx, f, "page", p)
}

// RenderTemplate evaluates the content of an HTML file as a template.
func (r *Renderer) RenderTemplate(ctx context.Context, f *vfs.File, source []byte) ([]byte, error) {
	t, err := template.New(f.Path()).Funcs(r.funcs(ctx, f)).Parse(remote.ReadText(source))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", f.Path(), err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, r.page(f, f.NameWithoutExt())); err != nil {
		return nil, fmt.Errorf("execute template %s: %w", f.Path(), err)
	}
	return buf.Bytes(), nil
}

// Browse renders the listing of a directory.
func (r *Renderer) Browse(ctx context.Context, dir *vfs.File) ([]byte, error) {
	title := dir.Path()
	p := r.page(dir, title)

	if dir.Path() != "/" {
		p.Parent = path.Dir(remote.NormalizePath(dir.Path()))
	}
	for _, md := range dir.Children() {
		if md.IsDir {
			p.Dirs = append(p.Dirs, md)
		}
	}

	files, err := dir.GetFiles(vfs.ListOptions{SortKey: "name", Count: vfs.AllFiles})
	if err != nil {
		return nil, err
	}
	p.Files = files

	return r.execute(ctx, dir, "browse", p)
}

// EditPage describes the editor form.
type EditPage struct {
	// File is nil when creating a new file.
	File     *vfs.File
	Title    string
	Content  string
	MimeType string
	PrevURL  string
}

// Edit renders the editor.
func (r *Renderer) Edit(ctx context.Context, e EditPage) ([]byte, error) {
	p := r.page(e.File, e.Title)
	p.Content = e.Content
	p.MimeType = e.MimeType
	p.PrevURL = e.PrevURL
	return r.execute(ctx, e.File, "edit", p)
}

// Error renders an error page. detail is shown only in debug mode.
func (r *Renderer) Error(ctx context.Context, title, detail string) ([]byte, error) {
	p := r.page(nil, title)
	if r.req.Debug {
		p.Content = detail
	}
	return r.execute(ctx, nil, "error", p)
}
