// File: internal/browser/interface.go
package browser

import (
	"context"

	"github.com/hevesm/linkvisitor/internal/cookies"
)

// Session is one live browser resource, scoped to a single visit. Close must
// be called on every exit path; implementations guarantee the underlying
// process is gone afterwards, forcibly if needed.
type Session interface {
	// Navigate loads a URL and waits for the page to be ready.
	Navigate(ctx context.Context, url string) error
	// InstallCookies seeds the session with the saved cookie set for the
	// target origin. Individual cookie failures are logged and skipped.
	InstallCookies(ctx context.Context, set []cookies.Cookie, targetOrigin string) error
	// Reload refreshes the current page so installed cookies take effect.
	Reload(ctx context.Context) error
	// Location returns the final URL after any redirects.
	Location(ctx context.Context) (string, error)
	// Probe evaluates the given CSS selectors and returns the subset present
	// in the current DOM.
	Probe(ctx context.Context, selectors []string) ([]string, error)
	// Close tears the session down.
	Close(ctx context.Context) error
}

// Launcher produces fresh, isolated browser sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}
