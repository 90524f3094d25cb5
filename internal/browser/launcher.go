// File: internal/browser/launcher.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hevesm/linkvisitor/internal/config"
)

// ChromeLauncher starts one headless Chrome process per session. Each visit
// gets a fresh process so no state leaks between profile visits.
type ChromeLauncher struct {
	logger *zap.Logger
	cfg    config.BrowserConfig
}

// NewChromeLauncher returns a launcher using the given browser configuration.
func NewChromeLauncher(logger *zap.Logger, cfg config.BrowserConfig) *ChromeLauncher {
	return &ChromeLauncher{
		logger: logger.Named("browser"),
		cfg:    cfg,
	}
}

// Launch starts the browser process and verifies it is responsive before
// handing the session to the caller.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	opts := l.buildAllocatorOptions()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	sessionCtx, sessionCancel := chromedp.NewContext(allocCtx)

	id := uuid.New().String()
	s := &chromeSession{
		logger:        l.logger.With(zap.String("session_id", id[:8])),
		cfg:           l.cfg,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		sessionCtx:    sessionCtx,
		sessionCancel: sessionCancel,
	}

	// Run a simple task to confirm the browser is alive.
	probeCtx, cancelProbe := context.WithTimeout(sessionCtx, 30*time.Second)
	defer cancelProbe()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		s.terminate()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	s.logger.Debug("Browser session launched and responsive.")
	return s, nil
}

// buildAllocatorOptions assembles the flags for a stealthy, configurable
// browser instance.
func (l *ChromeLauncher) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	// Start with default options, overriding flags that reveal automation.
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		// A false boolean flag is omitted from the command line entirely.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", l.cfg.IgnoreTLSErrors),
		// Disable the Blink feature used to detect automation (navigator.webdriver).
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", l.cfg.Headless),
		chromedp.UserAgent(l.cfg.UserAgent),
	)

	// Add custom arguments from the configuration.
	for _, arg := range l.cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")

		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	// Flags required for running inside containers (e.g. Docker on Linux).
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}
