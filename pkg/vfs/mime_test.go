package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMimeTypeOf(t *testing.T) {
	tests := map[string]string{
		"readme.md":       MarkdownType,
		"README.MARKDOWN": MarkdownType,
		"index.html":      "text/html",
		"style.css":       "text/css",
		"notes.txt":       "text/plain",
		"logo.svg":        "image/svg+xml",
		"photo.JPG":       "image/jpeg",
		"pic.png":         "image/png",
		"Makefile":        "",
	}
	for name, want := range tests {
		assert.Equal(t, want, MimeTypeOf(name), name)
	}
}

func TestTypeRules(t *testing.T) {
	assert.True(t, IsEditableType("text/plain"))
	assert.True(t, IsEditableType("application/json"))
	assert.False(t, IsEditableType("image/png"))

	assert.True(t, IsRenderableType("image/png"))
	assert.True(t, IsRenderableType(MarkdownType))
	assert.False(t, IsRenderableType("application/octet-stream"))
	assert.False(t, IsRenderableType(""))

	assert.True(t, IsImageType("image/jpeg"))
	assert.False(t, IsImageType("text/html"))
}

func TestParseDirInfo(t *testing.T) {
	info, err := ParseDirInfo([]byte(`{
		/* which page to show */
		"default_file":    "home.md", // trailing comma below
	}`))
	require.NoError(t, err)
	assert.Equal(t, "home.md", info.DefaultFile)

	info, err = ParseDirInfo([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultIndexFile, info.DefaultFile)

	_, err = ParseDirInfo([]byte(`{"default_file": 3}`))
	assert.Error(t, err)
}

func TestMarkdownToHTML(t *testing.T) {
	out, err := MarkdownToHTML([]byte("| a | b |\n|---|---|\n| 1 | 2 |\n\n~~old~~"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "<table>")
	assert.Contains(t, string(out), "<del>old</del>")
}
