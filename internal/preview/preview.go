// Package preview opens the advice service's review page in a browser
// window alongside the in-app review surface. The window is a
// convenience; every decision still flows through the review surface, so
// a machine without Chrome loses nothing but the visual.
package preview

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// Opener launches a visible Chrome window on the review page.
type Opener struct {
	reviewURL  string
	profileDir string
	logger     *slog.Logger
}

// Config holds configuration for the review-window opener.
type Config struct {
	ReviewURL  string // service page showing the pending suggestion
	ProfileDir string // Chrome user data directory (persists cookies/sessions)
	Logger     *slog.Logger
}

func New(cfg Config) *Opener {
	if cfg.ProfileDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ProfileDir = filepath.Join(home, ".paintsense", "chrome-profiles", "default")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Opener{
		reviewURL:  cfg.ReviewURL,
		profileDir: cfg.ProfileDir,
		logger:     cfg.Logger,
	}
}

// Open navigates a fresh window to the review page. It returns once the
// page is loading; the window stays up until the user closes it or ctx is
// canceled. Launch failures (no Chrome installed, headless host) are
// logged and swallowed.
func (o *Opener) Open(ctx context.Context) {
	if o.reviewURL == "" {
		return
	}
	if err := os.MkdirAll(o.profileDir, 0o755); err != nil {
		o.logger.Error("failed to create profile dir", "dir", o.profileDir, "err", err)
		return
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(o.profileDir),
		chromedp.Flag("headless", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.WindowSize(900, 700),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	navCtx, navCancel := context.WithTimeout(taskCtx, 15*time.Second)
	err := chromedp.Run(navCtx,
		chromedp.Navigate(o.reviewURL),
		chromedp.WaitReady("body"),
	)
	navCancel()
	if err != nil {
		taskCancel()
		allocCancel()
		o.logger.Warn("review window unavailable, continuing in-app", "err", err)
		return
	}

	o.logger.Debug("review window opened", "url", o.reviewURL)

	// Keep the allocator alive until the caller's context ends, then tear
	// the window down with it.
	go func() {
		<-ctx.Done()
		taskCancel()
		allocCancel()
	}()
}
