package remote

import (
	"path"
	"strconv"
	"strings"
	"time"
)

// TimeFormat is the remote store's timestamp layout.
const TimeFormat = time.RFC1123Z

// Metadata is the raw metadata of one remote path.
type Metadata struct {
	// Path is case-preserving; lookups are case-insensitive.
	Path string `json:"path" cbor:"1,keyasint"`

	IsDir bool `json:"is_dir" cbor:"2,keyasint"`

	// Rev is the opaque revision identifier. Empty means absent.
	Rev string `json:"rev,omitempty" cbor:"3,keyasint,omitempty"`

	// Hash is the directory content hash. Directories only.
	Hash string `json:"hash,omitempty" cbor:"4,keyasint,omitempty"`

	Bytes int64 `json:"bytes" cbor:"5,keyasint"`

	// Modified is the raw timestamp in TimeFormat, empty when absent.
	Modified string `json:"modified,omitempty" cbor:"6,keyasint,omitempty"`

	// MimeType is the provider's advisory type.
	MimeType string `json:"mime_type,omitempty" cbor:"7,keyasint,omitempty"`

	// Contents lists immediate children. Directories only, possibly partial.
	Contents []Metadata `json:"contents,omitempty" cbor:"8,keyasint,omitempty"`

	IsDeleted bool `json:"is_deleted,omitempty" cbor:"9,keyasint,omitempty"`
}

// Name returns the last path segment. The root's name is "".
func (m *Metadata) Name() string {
	if m.Path == "" || m.Path == "/" {
		return ""
	}
	return path.Base(m.Path)
}

// Field returns the string value of a named field, for sorting.
// Unknown names yield "".
func (m *Metadata) Field(name string) string {
	switch strings.ToLower(name) {
	case "path":
		return m.Path
	case "name":
		return m.Name()
	case "rev", "revision":
		return m.Rev
	case "hash":
		return m.Hash
	case "bytes", "size":
		return strconv.FormatInt(m.Bytes, 10)
	case "modified":
		return m.Modified
	case "mime_type":
		return m.MimeType
	case "is_dir":
		return strconv.FormatBool(m.IsDir)
	default:
		return ""
	}
}

// ModifiedTime parses Modified. An absent or malformed value yields the zero time.
func (m *Metadata) ModifiedTime() time.Time {
	t, err := ParseTime(m.Modified)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FormatTime renders t in the remote timestamp layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a remote timestamp. The empty string yields the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(TimeFormat, s)
}
