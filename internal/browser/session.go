// File: internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/hevesm/linkvisitor/internal/config"
	"github.com/hevesm/linkvisitor/internal/cookies"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// chromeSession drives a single Chrome process through chromedp. It is not
// safe for concurrent use; the visit loop is strictly sequential.
type chromeSession struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCtx    context.Context
	allocCancel context.CancelFunc

	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	isClosed bool
	mu       sync.Mutex
}

// Navigate loads a URL and waits for the page to be ready.
func (s *chromeSession) Navigate(ctx context.Context, target string) error {
	s.logger.Debug("Navigating", zap.String("url", target))

	navCtx, cancel := s.boundedCtx(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	return chromedp.Run(navCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// Let async page activity settle before inspection.
		chromedp.Sleep(s.cfg.PostLoadWait),
	)
}

// InstallCookies seeds the browser with the saved cookie set. Cookies without
// an explicit domain are scoped to the target origin's registrable domain.
// A failure to set one cookie is logged and skipped; the run goes on.
func (s *chromeSession) InstallCookies(ctx context.Context, set []cookies.Cookie, targetOrigin string) error {
	origin, err := url.Parse(targetOrigin)
	if err != nil || origin.Hostname() == "" {
		return fmt.Errorf("invalid target origin %q: %w", targetOrigin, err)
	}
	defaultDomain := "." + strings.TrimPrefix(origin.Hostname(), "www.")

	opCtx, cancel := s.boundedCtx(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	installed := 0
	err = chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range set {
			domain := c.Domain
			if domain == "" {
				domain = defaultDomain
			}
			path := c.Path
			if path == "" {
				path = "/"
			}

			param := network.SetCookie(c.Name, c.Value).
				WithDomain(domain).
				WithPath(path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				param = param.WithExpires(&expires)
			}

			if err := param.Do(ctx); err != nil {
				s.logger.Warn("Failed to set cookie; skipping.",
					zap.String("cookie", c.Name), zap.Error(err))
				continue
			}
			installed++
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("cookie installation failed: %w", err)
	}

	s.logger.Debug("Cookie set installed.",
		zap.Int("installed", installed), zap.Int("total", len(set)))
	return nil
}

// Reload refreshes the current page so newly installed cookies take effect.
func (s *chromeSession) Reload(ctx context.Context) error {
	opCtx, cancel := s.boundedCtx(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	return chromedp.Run(opCtx,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.PostLoadWait),
	)
}

// Location returns the final URL after any redirects.
func (s *chromeSession) Location(ctx context.Context) (string, error) {
	opCtx, cancel := s.boundedCtx(ctx, 15*time.Second)
	defer cancel()

	var current string
	if err := chromedp.Run(opCtx, chromedp.Location(&current)); err != nil {
		return "", fmt.Errorf("could not read current location: %w", err)
	}
	return current, nil
}

// Probe returns the subset of selectors present in the current DOM. The check
// runs in-page so a single round trip covers the whole marker set.
func (s *chromeSession) Probe(ctx context.Context, selectors []string) ([]string, error) {
	if len(selectors) == 0 {
		return nil, nil
	}

	selJSON, err := json.Marshal(selectors)
	if err != nil {
		return nil, fmt.Errorf("could not encode selectors: %w", err)
	}
	script := fmt.Sprintf(
		`(sels => sels.filter(s => { try { return document.querySelector(s) !== null; } catch (e) { return false; } }))(%s)`,
		selJSON,
	)

	opCtx, cancel := s.boundedCtx(ctx, 15*time.Second)
	defer cancel()

	var present []string
	if err := chromedp.Run(opCtx, chromedp.Evaluate(script, &present)); err != nil {
		return nil, fmt.Errorf("selector probe failed: %w", err)
	}
	return present, nil
}

// Close tears the session down. It first attempts a graceful browser close
// and falls back to killing the process when the deadline passes. Close is
// idempotent and never leaves the process behind.
func (s *chromeSession) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.sessionCtx) }()

	waitCtx, cancelWait := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancelWait()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Warn("Graceful browser close reported an error.", zap.Error(err))
		} else {
			s.logger.Debug("Browser session closed gracefully.")
		}
	case <-waitCtx.Done():
		s.logger.Warn("Deadline exceeded waiting for browser session to close. Forcing termination.",
			zap.Error(waitCtx.Err()))
	}

	s.terminate()
	return nil
}

// terminate cancels both contexts, which kills the Chrome process if it is
// still running.
func (s *chromeSession) terminate() {
	s.sessionCancel()
	s.allocCancel()
	<-s.allocCtx.Done()
}

// boundedCtx derives an operation context from both the caller's context and
// the session, so cancellation of either interrupts the CDP call.
func (s *chromeSession) boundedCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(s.sessionCtx, timeout)
	if ctx == nil {
		return opCtx, cancel
	}
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() { stop(); cancel() }
}
