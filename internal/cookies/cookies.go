// File: internal/cookies/cookies.go

// Package cookies loads the saved session credentials used to bypass
// interactive login. The on-disk format is a JSON array of cookie objects
// with at least "name" and "value" fields, matching the shape produced by
// common browser cookie exporters.
package cookies

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Cookie is a single saved credential entry. Domain and Path are optional in
// the source file; the browser layer fills them in from the target origin.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	// Expires is seconds since the Unix epoch (Chrome export convention).
	// Zero means a session cookie.
	Expires float64 `json:"expirationDate,omitempty"`
}

// ConfigError reports a missing or malformed cookie source. It is fatal to
// the run that requested it, never to the host process.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cookie source %q: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads and validates the cookie set at path. Any failure to produce a
// usable, non-empty cookie set is a *ConfigError.
func Load(path string) ([]Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var set []Cookie
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("malformed cookie file: %w", err)}
	}
	if len(set) == 0 {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("cookie file contains no cookies")}
	}
	for i, c := range set {
		if c.Name == "" {
			return nil, &ConfigError{Path: path, Err: fmt.Errorf("cookie at index %d has no name", i)}
		}
	}
	return set, nil
}
