package vfs

import (
	"bytes"
	"context"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

func markdownEngine() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		)
	})
	return markdown
}

// MarkdownToHTML converts markdown source to an HTML fragment.
func MarkdownToHTML(source []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdownEngine().Convert(source, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Renderer turns file content into a page. It carries the request context
// (path, query arguments, the resolver) that templates evaluate against.
type Renderer interface {
	// RenderMarkdown wraps an HTML fragment converted from markdown file f.
	RenderMarkdown(ctx context.Context, f *File, fragment []byte) ([]byte, error)

	// RenderTemplate evaluates source, the content of HTML file f, as a template.
	RenderTemplate(ctx context.Context, f *File, source []byte) ([]byte, error)
}
