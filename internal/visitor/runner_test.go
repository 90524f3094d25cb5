// File: internal/visitor/runner_test.go
package visitor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/hevesm/linkvisitor/internal/auth"
	"github.com/hevesm/linkvisitor/internal/browser"
	"github.com/hevesm/linkvisitor/internal/config"
	"github.com/hevesm/linkvisitor/internal/cookies"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Fakes --

// pageOutcome scripts what the fake browser reports for one target URL.
type pageOutcome struct {
	finalURL string
	present  []string
	navErr   error
}

type fakeSession struct {
	launcher *fakeLauncher
	lastURL  string
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.lastURL = url
	if out, ok := s.launcher.script[url]; ok && out.navErr != nil {
		return out.navErr
	}
	return nil
}

func (s *fakeSession) InstallCookies(_ context.Context, set []cookies.Cookie, origin string) error {
	s.launcher.mu.Lock()
	s.launcher.installedSets++
	s.launcher.mu.Unlock()
	return s.launcher.installErr
}

func (s *fakeSession) Reload(context.Context) error { return nil }

func (s *fakeSession) Location(context.Context) (string, error) {
	if out, ok := s.launcher.script[s.lastURL]; ok && out.finalURL != "" {
		return out.finalURL, nil
	}
	return s.lastURL, nil
}

func (s *fakeSession) Probe(_ context.Context, selectors []string) ([]string, error) {
	if s.launcher.probeErr != nil {
		return nil, s.launcher.probeErr
	}
	if out, ok := s.launcher.script[s.lastURL]; ok {
		return out.present, nil
	}
	return nil, nil
}

func (s *fakeSession) Close(context.Context) error {
	s.launcher.mu.Lock()
	s.launcher.closes++
	s.launcher.mu.Unlock()
	return nil
}

type fakeLauncher struct {
	mu            sync.Mutex
	script        map[string]pageOutcome
	launches      int
	closes        int
	installedSets int
	installErr    error
	probeErr      error
	launchErr     error
	// block, when set, holds every Launch until released.
	block chan struct{}
}

func (l *fakeLauncher) Launch(ctx context.Context) (browser.Session, error) {
	if l.block != nil {
		select {
		case <-l.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l.mu.Lock()
	l.launches++
	l.mu.Unlock()
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	return &fakeSession{launcher: l}, nil
}

type fakeSink struct {
	mu       sync.Mutex
	messages []string
}

func (s *fakeSink) Notify(_ context.Context, text string) {
	s.mu.Lock()
	s.messages = append(s.messages, text)
	s.mu.Unlock()
}

func (s *fakeSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

// -- Helpers --

func testVisitConfig(urls ...string) config.VisitConfig {
	return config.VisitConfig{
		ProfileURLs:   urls,
		CookieFile:    "cookies.json",
		TargetOrigin:  "https://www.linkedin.com",
		MinDelay:      5 * time.Second,
		MaxDelay:      10 * time.Second,
		OnAuthFailure: config.FailureModeStop,
	}
}

func testCookieSet() []cookies.Cookie {
	return []cookies.Cookie{{Name: "li_at", Value: "token"}}
}

// newTestRunner builds a runner with fakes and deterministic pacing. The
// recorded delays are appended to *delays when it is non-nil.
func newTestRunner(cfg config.VisitConfig, launcher *fakeLauncher, sink *fakeSink, delays *[]time.Duration) *Runner {
	r := NewRunner(zap.NewNop(), cfg, launcher, auth.NewDetector(), sink)
	r.loadCookies = func(string) ([]cookies.Cookie, error) { return testCookieSet(), nil }
	r.randFloat = rand.New(rand.NewSource(42)).Float64
	r.sleep = func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return ctx.Err()
	}
	return r
}

// -- Tests --

func TestRunAllSuccess(t *testing.T) {
	urls := []string{"https://site/in/a", "https://site/in/b"}
	launcher := &fakeLauncher{script: map[string]pageOutcome{}}
	sink := &fakeSink{}
	r := newTestRunner(testVisitConfig(urls...), launcher, sink, nil)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.Success)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.SuccessCount)
	assert.Equal(t, 0, summary.FailureCount)
	assert.False(t, summary.Aborted)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, urls[0], summary.Results[0].URL)
	assert.Equal(t, urls[1], summary.Results[1].URL)

	// One browser per URL, every one of them torn down.
	assert.Equal(t, 2, launcher.launches)
	assert.Equal(t, 2, launcher.closes)
	assert.Equal(t, 2, launcher.installedSets)

	messages := sink.all()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "all 2 profiles visited")
}

func TestRunMissingCookieFileFailsBeforeAnyLaunch(t *testing.T) {
	launcher := &fakeLauncher{script: map[string]pageOutcome{}}
	sink := &fakeSink{}
	cfg := testVisitConfig("https://site/in/a")
	cfg.CookieFile = filepath.Join(t.TempDir(), "missing.json")

	r := NewRunner(zap.NewNop(), cfg, launcher, auth.NewDetector(), sink)
	r.sleep = func(_ context.Context, _ time.Duration) error { return nil }

	summary, err := r.Run(context.Background())
	require.NoError(t, err, "a run-level failure is reported in the summary, not as an API error")

	var cfgErr *cookies.ConfigError
	// The summary carries the stringified error; verify the loader itself
	// produced the typed one.
	_, loadErr := cookies.Load(cfg.CookieFile)
	require.ErrorAs(t, loadErr, &cfgErr)

	assert.False(t, summary.Success)
	assert.NotEmpty(t, summary.Error)
	assert.Zero(t, summary.Total)
	assert.Zero(t, launcher.launches, "no browser may be launched when the cookie source is unusable")

	messages := sink.all()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "failed before visiting")
}

func TestStopModeAbortsOnAuthFailure(t *testing.T) {
	urls := []string{"https://site/in/a", "https://site/in/b", "https://site/in/c"}
	launcher := &fakeLauncher{script: map[string]pageOutcome{
		// Visiting b lands on the authwall.
		"https://site/in/b": {finalURL: "https://site/authwall?sessionRedirect=b"},
	}}
	sink := &fakeSink{}
	r := newTestRunner(testVisitConfig(urls...), launcher, sink, nil)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.Aborted)
	assert.False(t, summary.Success)
	// Exactly k+1 processed URLs for a failure at index k=1.
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailureCount)
	assert.Equal(t, 2, launcher.launches, "no browser for URLs past the failure")
	assert.Equal(t, launcher.launches, launcher.closes)

	messages := sink.all()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "aborted")
}

func TestContinueModeVisitsPastFailures(t *testing.T) {
	urls := []string{"https://site/in/a", "https://site/in/b", "https://site/in/c"}
	launcher := &fakeLauncher{script: map[string]pageOutcome{
		"https://site/in/a": {finalURL: "https://site/authwall"},
	}}
	sink := &fakeSink{}
	cfg := testVisitConfig(urls...)
	cfg.OnAuthFailure = config.FailureModeContinue
	r := newTestRunner(cfg, launcher, sink, nil)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, summary.Aborted)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailureCount)
	assert.Equal(t, 3, launcher.launches)
}

func TestNonAuthErrorsDoNotAbortStopMode(t *testing.T) {
	urls := []string{"https://site/in/a", "https://site/in/b"}
	launcher := &fakeLauncher{script: map[string]pageOutcome{
		"https://site/in/a": {navErr: fmt.Errorf("net::ERR_TIMED_OUT")},
	}}
	sink := &fakeSink{}
	r := newTestRunner(testVisitConfig(urls...), launcher, sink, nil)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	// A navigation timeout is a per-URL failure, not a logged-out state;
	// even stop mode keeps going.
	assert.False(t, summary.Aborted)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.FailureCount)
	assert.Contains(t, summary.Results[0].Error, "navigation failed")
	assert.Equal(t, 2, launcher.closes, "failed visits still tear their session down")
}

func TestProbeFailureIsVisitFailure(t *testing.T) {
	launcher := &fakeLauncher{
		script:   map[string]pageOutcome{},
		probeErr: errors.New("evaluate: context deadline exceeded"),
	}
	sink := &fakeSink{}
	r := newTestRunner(testVisitConfig("https://site/in/a"), launcher, sink, nil)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.FailureCount)
	assert.False(t, summary.Aborted, "a probe failure is not an authentication failure")
	assert.Contains(t, summary.Results[0].Error, "login-state probe failed")
}

func TestDelaysStayWithinBoundsAndVary(t *testing.T) {
	urls := make([]string, 6)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://site/in/u%d", i)
	}
	launcher := &fakeLauncher{script: map[string]pageOutcome{}}
	var delays []time.Duration
	r := newTestRunner(testVisitConfig(urls...), launcher, &fakeSink{}, &delays)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	// One pause between each consecutive pair, none after the last visit.
	require.Len(t, delays, len(urls)-1)
	for _, d := range delays {
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.LessOrEqual(t, d, 10*time.Second)
	}

	distinct := map[time.Duration]struct{}{}
	for _, d := range delays {
		distinct[d] = struct{}{}
	}
	assert.Greater(t, len(distinct), 1, "pacing must vary across visits")
}

func TestOverlappingRunsAreRejected(t *testing.T) {
	release := make(chan struct{})
	launcher := &fakeLauncher{script: map[string]pageOutcome{}, block: release}
	r := newTestRunner(testVisitConfig("https://site/in/a"), launcher, &fakeSink{}, nil)

	runID, err := r.Start(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	// While the first run is blocked inside Launch, both trigger paths must
	// refuse to start another.
	_, err = r.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	_, err = r.Start(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)

	// The lock is free again once the async run finishes.
	require.Eventually(t, func() bool {
		_, err := r.Run(context.Background())
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRunCancellationSkipsRemaining(t *testing.T) {
	urls := []string{"https://site/in/a", "https://site/in/b", "https://site/in/c"}
	launcher := &fakeLauncher{script: map[string]pageOutcome{}}
	ctx, cancel := context.WithCancel(context.Background())

	r := newTestRunner(testVisitConfig(urls...), launcher, &fakeSink{}, nil)
	r.sleep = func(ctx context.Context, _ time.Duration) error {
		// Cancel during the first inter-visit pause.
		cancel()
		return ctx.Err()
	}

	summary, err := r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, context.Canceled.Error(), summary.Error)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, launcher.launches)
	assert.Equal(t, launcher.launches, launcher.closes)
}

func TestStatusReflectsLastRun(t *testing.T) {
	launcher := &fakeLauncher{script: map[string]pageOutcome{}}
	r := newTestRunner(testVisitConfig("https://site/in/a"), launcher, &fakeSink{}, nil)

	assert.False(t, r.Status().Running)
	assert.Nil(t, r.Status().LastRun)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	status := r.Status()
	assert.False(t, status.Running)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, summary.RunID, status.LastRun.RunID)
	assert.True(t, status.LastRun.Success)
}

func TestSummaryMessage(t *testing.T) {
	tests := []struct {
		name     string
		summary  Summary
		contains string
	}{
		{"run-level failure", Summary{RunID: "r1", Error: "cookie source gone"}, "failed before visiting"},
		{"aborted", Summary{RunID: "r2", Aborted: true, Total: 3}, "aborted after 3 visit(s)"},
		{"partial", Summary{RunID: "r3", SuccessCount: 4, FailureCount: 2}, "4 succeeded, 2 failed"},
		{"clean", Summary{RunID: "r4", SuccessCount: 5}, "all 5 profiles visited"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, tt.summary.Message(), tt.contains)
		})
	}
}
