package render

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/marmos91/dittosite/pkg/remote"
	"github.com/marmos91/dittosite/pkg/vfs"
)

// Defaults of enumerate, matching the common "latest posts" use.
const (
	defaultEnumerateCount = 5
	defaultEnumerateSort  = "modified"
)

func stubFuncs() template.FuncMap {
	return (&Renderer{}).funcs(context.Background(), nil)
}

// funcs binds the site functions to the file being rendered.
func (r *Renderer) funcs(ctx context.Context, f *vfs.File) template.FuncMap {
	return template.FuncMap{
		"enumerate": func(patterns any, opts ...any) ([]*vfs.File, error) {
			return r.enumerate(ctx, f, patterns, opts...)
		},
		"render": func(p string) (template.HTML, error) {
			return r.render(ctx, f, p)
		},
		"create_edit_url": func(p string) string {
			return r.editURL(f, p)
		},
		"request_path": func() string {
			return r.req.Path
		},
		"args": func(name ...string) any {
			if len(name) == 0 {
				return r.req.Args
			}
			return r.req.Args.Get(name[0])
		},
	}
}

// absolute resolves p against the directory of f.
func absolute(f *vfs.File, p string) string {
	if strings.HasPrefix(p, "/") || f == nil {
		return remote.NormalizePath(p)
	}
	dir := f.Path()
	if !f.IsDir() {
		dir = path.Dir(remote.NormalizePath(dir))
	}
	return remote.NormalizePath(path.Join(dir, p))
}

func (r *Renderer) enumerate(ctx context.Context, f *vfs.File, patterns any, opts ...any) ([]*vfs.File, error) {
	if f == nil {
		return nil, errors.New("enumerate: no current file")
	}

	dir := f
	if !f.IsDir() {
		parent, err := f.Parent(ctx)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, fmt.Errorf("enumerate: failed to locate the parent directory of %s", f.Path())
		}
		dir = parent
	}

	list := vfs.ListOptions{
		Patterns:       toStrings(patterns),
		Count:          defaultEnumerateCount,
		SortKey:        defaultEnumerateSort,
		SortDescending: true,
	}

	var err error
	for i, opt := range opts {
		switch i {
		case 0:
			list.Index, err = toInt(opt)
		case 1:
			list.Count, err = toInt(opt)
		case 2:
			list.SortKey = fmt.Sprint(opt)
		case 3:
			list.SortDescending, err = toBool(opt)
		case 4:
			list.Excludes = toStrings(opt)
		default:
			return nil, fmt.Errorf("enumerate: too many arguments")
		}
		if err != nil {
			return nil, fmt.Errorf("enumerate: argument %d: %w", i+2, err)
		}
	}

	return dir.GetFiles(list)
}

func (r *Renderer) render(ctx context.Context, f *vfs.File, p string) (template.HTML, error) {
	if f == nil || f.Resolver() == nil {
		return "", errors.New("render: no current file")
	}
	if r.depth >= maxDepth {
		return "", fmt.Errorf("render %s: nesting deeper than %d", p, maxDepth)
	}

	full := absolute(f, p)
	target, err := f.Resolver().Resolve(ctx, full)
	if err != nil {
		return "", err
	}
	if target == nil {
		if r.req.Debug {
			return template.HTML(template.HTMLEscapeString("File not found: " + full)), nil
		}
		return "", nil
	}

	r.depth++
	defer func() { r.depth-- }()

	out, err := target.RenderedContent(ctx)
	if err != nil {
		return "", err
	}
	return template.HTML(out), nil
}

func (r *Renderer) editURL(f *vfs.File, p string) string {
	return absolute(f, p) + "?edit&purl=" + url.QueryEscape(r.req.Path)
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case string:
		var out []string
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(t))
	default:
		return false, fmt.Errorf("not a boolean: %v", v)
	}
}
