package vfs

import (
	"math"
	"path"
	"sort"
	"strings"
)

// AllFiles is a Count that never truncates a listing.
const AllFiles = math.MaxInt32

// ListOptions select, order and page the file children of a directory.
type ListOptions struct {
	// Patterns are case-insensitive globs a name must match one of.
	// Empty, or containing a bare "*", matches everything.
	Patterns []string

	// Excludes are case-insensitive globs removing matching names. They are
	// applied before Patterns.
	Excludes []string

	// Index is the first position returned. Negative means 0; past the end
	// it is clamped to the last element.
	Index int

	// Count is the maximum number of files returned. Negative means 1.
	Count int

	// SortKey is "" for listing order, "modified" for timestamp order, or a
	// metadata field name compared as lower-cased text.
	SortKey string

	SortDescending bool
}

// GetFiles returns the direct file children selected by opts.
func (f *File) GetFiles(opts ListOptions) ([]*File, error) {
	if !f.md.IsDir {
		return nil, newError(ErrNotDirectory, f.md.Path, "listing a file")
	}

	index, count := opts.Index, opts.Count
	if index < 0 {
		index = 0
	}
	if count < 0 {
		count = 1
	}

	matchAll := len(opts.Patterns) == 0
	for _, p := range opts.Patterns {
		if p == "*" {
			matchAll = true
			break
		}
	}
	excludes := lowerAll(opts.Excludes)
	patterns := lowerAll(opts.Patterns)

	keys := make([]string, 0, len(f.order))
	for _, key := range f.order {
		md := f.children[key]
		if md.IsDir {
			continue
		}
		if matchAny(excludes, key) {
			continue
		}
		if !matchAll && !matchAny(patterns, key) {
			continue
		}
		keys = append(keys, key)
	}

	f.sortKeys(keys, opts.SortKey, opts.SortDescending)

	n := len(keys)
	if n == 0 || count == 0 {
		return []*File{}, nil
	}
	if index >= n {
		index = n - 1
	}
	if count > n-index {
		count = n - index
	}

	out := make([]*File, 0, count)
	for _, key := range keys[index : index+count] {
		child, err := f.GetFile(key)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

func (f *File) sortKeys(keys []string, sortKey string, descending bool) {
	if sortKey == "" {
		return
	}

	var less func(a, b string) bool
	if strings.EqualFold(sortKey, "modified") {
		less = func(a, b string) bool {
			return f.children[a].ModifiedTime().Before(f.children[b].ModifiedTime())
		}
	} else {
		less = func(a, b string) bool {
			return strings.ToLower(f.children[a].Field(sortKey)) < strings.ToLower(f.children[b].Field(sortKey))
		}
	}

	if descending {
		sort.SliceStable(keys, func(i, j int) bool { return less(keys[j], keys[i]) })
	} else {
		sort.SliceStable(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	}
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// matchAny reports whether name matches one of the globs. Malformed
// patterns match nothing.
func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
