// Package identity decides which account is the author and which viewer is
// connected, and hands the rest of the site a capability object.
//
// The capability is request-scoped: the HTTP adapter builds one per request
// from the session and the server-side store, and passes it into the
// resolver. Nothing in the site reaches for a global "current user".
package identity

import "github.com/marmos91/dittosite/pkg/remote"

// Author is the connected author account.
type Author struct {
	// AccountID is the remote account id, used in cache keys.
	AccountID string

	// Client is bound to the author's credentials.
	Client remote.Client
}

// Viewer is the account browsing the site, if logged in.
type Viewer struct {
	AccountID   string
	DisplayName string
}

// Capability is what the site may do on behalf of the current request.
type Capability interface {
	// Author returns the connected author, or nil when the author's
	// credentials are unavailable.
	Author() *Author

	// IsAuthor reports whether the viewer of this request is the author.
	IsAuthor() bool

	// Viewer returns the logged-in viewer, or nil for anonymous requests.
	Viewer() *Viewer
}

// Static is a fixed Capability.
type Static struct {
	AuthorAccount *Author
	ViewerAccount *Viewer
}

func (s Static) Author() *Author {
	return s.AuthorAccount
}

func (s Static) IsAuthor() bool {
	return s.AuthorAccount != nil && s.ViewerAccount != nil &&
		s.ViewerAccount.AccountID == s.AuthorAccount.AccountID
}

func (s Static) Viewer() *Viewer {
	return s.ViewerAccount
}
