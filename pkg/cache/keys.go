package cache

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Resource kinds. Each kind has its own freshness rule.
const (
	KindContent     = "content"
	KindDirectLink  = "direct_link"
	KindThumbnail   = "thumbnail"
	KindDirMetadata = "dir_metadata"
)

// rootRev stands in for the revision of directories that carry none.
const rootRev = "root"

// zeroRev stands in for an absent file revision.
const zeroRev = "0"

// PathHash returns the hex digest of the lower-cased path.
func PathHash(p string) string {
	sum := blake3.Sum256([]byte(strings.ToLower(p)))
	return hex.EncodeToString(sum[:16])
}

// Key builds the composite cache key
//
//	<kind>@<account>@<hash(lower(path))>@<rev>
//
// Identical tuples always collide; a different revision never does.
func Key(kind, account, p, rev string) string {
	return kind + "@" + account + "@" + PathHash(p) + "@" + rev
}

// ThumbnailKind returns the kind of a thumbnail of the given size.
func ThumbnailKind(size string) string {
	return KindThumbnail + "-" + size
}

func fileRev(rev string) string {
	if rev == "" {
		return zeroRev
	}
	return rev
}

func dirRev(rev string) string {
	if rev == "" {
		return rootRev
	}
	return rev
}
