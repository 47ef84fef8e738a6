package remote

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// DirectoryHash computes a directory content hash from its children.
//
// The hash covers each child's lower-cased name, revision, kind and
// tombstone flag, in name order, so any listing change yields a new hash.
func DirectoryHash(children []Metadata) string {
	entries := make([]string, 0, len(children))
	for i := range children {
		c := &children[i]
		entries = append(entries, strings.ToLower(c.Name())+"\x00"+c.Rev+"\x00"+
			boolByte(c.IsDir)+boolByte(c.IsDeleted))
	}
	sort.Strings(entries)

	hasher := blake3.New()
	for _, e := range entries {
		_, _ = hasher.Write([]byte(e))
		_, _ = hasher.Write([]byte{'\n'})
	}
	return hex.EncodeToString(hasher.Sum(nil)[:16])
}

func boolByte(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
