package remote

import (
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns s as valid UTF-8 in Unicode NFC form.
//
// Every path and text payload goes through Normalize before it is sent to
// the remote, so the same visible name always maps to the same bytes.
func Normalize(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	return norm.NFC.String(s)
}

// NormalizePath normalizes p and cleans it into an absolute slash path.
// The root is "/".
func NormalizePath(p string) string {
	p = Normalize(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// ReadText decodes remote bytes into canonical text.
func ReadText(b []byte) string {
	return Normalize(string(b))
}
