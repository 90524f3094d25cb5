// File: internal/visitor/runner.go

// Package visitor implements the sequential visit loop: for each configured
// profile URL it launches a fresh browser session, re-establishes the saved
// session, navigates, verifies the session is still authenticated, and paces
// itself with a randomized delay. One browser resource per URL, no
// parallelism.
package visitor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hevesm/linkvisitor/internal/auth"
	"github.com/hevesm/linkvisitor/internal/browser"
	"github.com/hevesm/linkvisitor/internal/config"
	"github.com/hevesm/linkvisitor/internal/cookies"
	"github.com/hevesm/linkvisitor/internal/notify"
)

// ErrRunInProgress is returned when a trigger arrives while a run is already
// executing. Overlapping runs would race on the browser process namespace.
var ErrRunInProgress = errors.New("a visit run is already in progress")

// Runner owns the batch routine and its mutual-exclusion guard. The manual
// HTTP trigger and the scheduler share one Runner.
type Runner struct {
	logger   *zap.Logger
	cfg      config.VisitConfig
	launcher browser.Launcher
	detector *auth.Detector
	sink     notify.Sink

	// Injection points for tests.
	loadCookies func(path string) ([]cookies.Cookie, error)
	sleep       func(ctx context.Context, d time.Duration) error
	randFloat   func() float64

	// runMu serializes runs; stateMu guards the observable state.
	runMu   sync.Mutex
	stateMu sync.Mutex
	running bool
	last    *Summary
}

// NewRunner wires the visit loop to its collaborators.
func NewRunner(logger *zap.Logger, cfg config.VisitConfig, launcher browser.Launcher, detector *auth.Detector, sink notify.Sink) *Runner {
	return &Runner{
		logger:      logger.Named("visitor"),
		cfg:         cfg,
		launcher:    launcher,
		detector:    detector,
		sink:        sink,
		loadCookies: cookies.Load,
		sleep:       sleepCtx,
		randFloat:   rand.Float64,
	}
}

// Run executes one batch synchronously. It refuses to overlap an in-flight
// run.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	if !r.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.runMu.Unlock()
	return r.execute(ctx, uuid.New().String()), nil
}

// Start launches one batch asynchronously and returns its run id. Used by
// the HTTP trigger, which must answer before the run completes.
func (r *Runner) Start(ctx context.Context) (string, error) {
	if !r.runMu.TryLock() {
		return "", ErrRunInProgress
	}
	id := uuid.New().String()
	go func() {
		defer r.runMu.Unlock()
		r.execute(ctx, id)
	}()
	return id, nil
}

// Status returns the running flag and the last completed run, if any.
func (r *Runner) Status() Status {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return Status{Running: r.running, LastRun: r.last}
}

// execute is the batch routine. The caller must hold runMu.
func (r *Runner) execute(ctx context.Context, runID string) *Summary {
	logger := r.logger.With(zap.String("run_id", shortID(runID)))
	summary := &Summary{RunID: runID, StartedAt: time.Now()}

	r.setRunning(true)
	defer func() {
		summary.finalize(time.Now())
		r.setState(false, summary)
		logger.Info("Run finished.",
			zap.Int("total", summary.Total),
			zap.Int("successes", summary.SuccessCount),
			zap.Int("failures", summary.FailureCount),
			zap.Bool("aborted", summary.Aborted),
		)
		r.sink.Notify(context.WithoutCancel(ctx), summary.Message())
	}()

	// The cookie set is loaded fresh at the start of every run, before any
	// browser is launched.
	cookieSet, err := r.loadCookies(r.cfg.CookieFile)
	if err != nil {
		logger.Error("Cookie source is unusable; run aborted.", zap.Error(err))
		summary.Error = err.Error()
		return summary
	}

	logger.Info("Starting visit run.",
		zap.Int("profiles", len(r.cfg.ProfileURLs)),
		zap.Int("cookies", len(cookieSet)),
	)

	for i, target := range r.cfg.ProfileURLs {
		if err := ctx.Err(); err != nil {
			logger.Warn("Run canceled; remaining profiles skipped.", zap.Error(err))
			summary.Error = err.Error()
			return summary
		}

		result, visitErr := r.visit(ctx, logger, target, cookieSet)
		summary.Results = append(summary.Results, result)

		var authErr *auth.AuthError
		if errors.As(visitErr, &authErr) && r.cfg.OnAuthFailure == config.FailureModeStop {
			logger.Warn("Authentication failure; aborting remaining visits.",
				zap.String("url", target), zap.String("marker", authErr.Marker))
			summary.Aborted = true
			return summary
		}

		// Human pacing between visits, skipped after the last one.
		if i < len(r.cfg.ProfileURLs)-1 {
			if err := r.pause(ctx); err != nil {
				summary.Error = err.Error()
				return summary
			}
		}
	}

	return summary
}

// visit runs the per-URL state machine: launch, authenticate, navigate,
// verify. The session is torn down on every exit path. Errors other than a
// detected logged-out state are converted to a failure result here and never
// escape the visit boundary.
func (r *Runner) visit(ctx context.Context, logger *zap.Logger, target string, cookieSet []cookies.Cookie) (Result, error) {
	logger.Info("Visiting profile.", zap.String("url", target))

	sess, err := r.launcher.Launch(ctx)
	if err != nil {
		logger.Error("Browser launch failed.", zap.String("url", target), zap.Error(err))
		return Result{URL: target, Error: fmt.Sprintf("browser launch failed: %v", err)}, err
	}
	// Teardown must run even when the run context is already canceled.
	defer func() {
		if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Browser teardown reported an error.", zap.Error(err))
		}
	}()

	if err := r.bootstrap(ctx, sess, cookieSet); err != nil {
		logger.Error("Session bootstrap failed.", zap.String("url", target), zap.Error(err))
		return Result{URL: target, Error: fmt.Sprintf("session bootstrap failed: %v", err)}, err
	}

	if err := sess.Navigate(ctx, target); err != nil {
		logger.Error("Navigation failed.", zap.String("url", target), zap.Error(err))
		return Result{URL: target, Error: fmt.Sprintf("navigation failed: %v", err)}, err
	}

	if err := r.verify(ctx, sess); err != nil {
		logger.Warn("Visit verification failed.", zap.String("url", target), zap.Error(err))
		return Result{URL: target, Error: err.Error()}, err
	}

	logger.Info("Profile visited.", zap.String("url", target))
	return Result{URL: target, Success: true}, nil
}

// bootstrap opens the target site's home page, installs the saved cookies
// and reloads so the session picks them up.
func (r *Runner) bootstrap(ctx context.Context, sess browser.Session, cookieSet []cookies.Cookie) error {
	if err := sess.Navigate(ctx, r.cfg.TargetOrigin); err != nil {
		return fmt.Errorf("could not open %s: %w", r.cfg.TargetOrigin, err)
	}
	if err := sess.InstallCookies(ctx, cookieSet, r.cfg.TargetOrigin); err != nil {
		return err
	}
	if err := sess.Reload(ctx); err != nil {
		return fmt.Errorf("reload after cookie installation failed: %w", err)
	}
	return nil
}

// verify inspects the landed page for logged-out markers.
func (r *Runner) verify(ctx context.Context, sess browser.Session) error {
	location, err := sess.Location(ctx)
	if err != nil {
		return err
	}
	present, err := sess.Probe(ctx, r.detector.Selectors())
	if err != nil {
		return fmt.Errorf("login-state probe failed: %w", err)
	}
	return r.detector.Detect(auth.PageState{URL: location, PresentSelectors: present})
}

// pause waits a uniformly-random duration within the configured bounds.
func (r *Runner) pause(ctx context.Context) error {
	delay := r.cfg.MinDelay + time.Duration(r.randFloat()*float64(r.cfg.MaxDelay-r.cfg.MinDelay))
	r.logger.Debug("Pacing before next visit.", zap.Duration("delay", delay))
	return r.sleep(ctx, delay)
}

func (r *Runner) setRunning(running bool) {
	r.stateMu.Lock()
	r.running = running
	r.stateMu.Unlock()
}

func (r *Runner) setState(running bool, last *Summary) {
	r.stateMu.Lock()
	r.running = running
	r.last = last
	r.stateMu.Unlock()
}

// sleepCtx blocks for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
