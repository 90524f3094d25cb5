// File: internal/auth/detector.go

// Package auth decides whether a browser session is actually authenticated
// by inspecting the page the navigation landed on. Detection is a single
// pass over fixed marker sets; there is no retry or backoff.
package auth

import (
	"fmt"
	"strings"
)

// AuthError reports a detected logged-out state. The Marker field names the
// indicator that tripped.
type AuthError struct {
	URL    string
	Marker string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("session not authenticated at %s (marker: %s)", e.URL, e.Marker)
}

// Markers is the fixed set of unauthenticated-state indicators.
type Markers struct {
	// URLSubstrings flag an auth wall or login redirect in the final location.
	URLSubstrings []string
	// Selectors are DOM probes for guest-facing page chrome.
	Selectors []string
	// ErrorPrefixes flag browser-level redirect/navigation error pages.
	ErrorPrefixes []string
}

// DefaultMarkers covers the site's authwall, the login flows it redirects
// guests into, and the checkpoint interstitial.
func DefaultMarkers() Markers {
	return Markers{
		URLSubstrings: []string{
			"/authwall",
			"/uas/login",
			"/login",
			"/checkpoint/",
			"session_redirect",
		},
		Selectors: []string{
			".authwall",
			"#session_key",
			"form.login__form",
			".sign-in-form",
			"a[href*='/authwall']",
		},
		ErrorPrefixes: []string{
			"chrome-error://",
			"about:blank",
		},
	}
}

// PageState is what the browser layer observed after navigating: the final
// location and which of the detector's selectors were present in the DOM.
type PageState struct {
	URL              string
	PresentSelectors []string
}

// Detector evaluates page state against its marker set.
type Detector struct {
	markers Markers
}

// NewDetector returns a detector using the default marker set.
func NewDetector() *Detector {
	return &Detector{markers: DefaultMarkers()}
}

// NewDetectorWithMarkers returns a detector with a caller-supplied marker set.
func NewDetectorWithMarkers(m Markers) *Detector {
	return &Detector{markers: m}
}

// Selectors returns the DOM probes the browser layer should evaluate before
// calling Detect.
func (d *Detector) Selectors() []string {
	return d.markers.Selectors
}

// Detect returns nil when the page looks authenticated, or an *AuthError
// naming the first marker that matched.
func (d *Detector) Detect(state PageState) error {
	lowerURL := strings.ToLower(state.URL)

	for _, prefix := range d.markers.ErrorPrefixes {
		if strings.HasPrefix(lowerURL, prefix) {
			return &AuthError{URL: state.URL, Marker: "navigation error page " + prefix}
		}
	}
	for _, sub := range d.markers.URLSubstrings {
		if strings.Contains(lowerURL, sub) {
			return &AuthError{URL: state.URL, Marker: "url contains " + sub}
		}
	}
	for _, sel := range state.PresentSelectors {
		for _, marker := range d.markers.Selectors {
			if sel == marker {
				return &AuthError{URL: state.URL, Marker: "selector " + sel}
			}
		}
	}
	return nil
}
