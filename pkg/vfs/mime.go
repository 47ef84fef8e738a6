package vfs

import (
	"mime"
	"path"
	"strings"
)

// MarkdownType is the MIME type of markdown files.
const MarkdownType = "text/x-markdown"

// extraTypes covers extensions the system MIME table lacks or disagrees on.
var extraTypes = map[string]string{
	".md":       MarkdownType,
	".markdown": MarkdownType,
	".txt":      "text/plain",
	".html":     "text/html",
	".htm":      "text/html",
	".css":      "text/css",
	".js":       "application/javascript",
	".json":     "application/json",
	".xml":      "text/xml",
	".svg":      "image/svg+xml",
	".yaml":     "text/x-yaml",
	".yml":      "text/x-yaml",
}

// editableTypes are non-text types the site editor accepts.
var editableTypes = map[string]bool{
	"application/json":         true,
	"application/javascript":   true,
	"application/x-javascript": true,
	"application/xml":          true,
	"image/svg+xml":            true,
}

// MimeTypeOf returns the MIME type for a file name, without parameters.
// Unknown extensions yield "".
func MimeTypeOf(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return ""
	}
	if t, ok := extraTypes[ext]; ok {
		return t
	}
	t := mime.TypeByExtension(ext)
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}

// IsEditableType reports whether files of type t can be edited as text.
func IsEditableType(t string) bool {
	return strings.HasPrefix(t, "text/") || editableTypes[t]
}

// IsRenderableType reports whether files of type t can be shown inline.
func IsRenderableType(t string) bool {
	return strings.HasPrefix(t, "text/") || strings.HasPrefix(t, "image/") || t == "application/json"
}

// IsImageType reports whether t is an image type.
func IsImageType(t string) bool {
	return strings.HasPrefix(t, "image/")
}
