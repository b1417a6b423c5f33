// Package page owns the browser session the driver operates in: process
// lifecycle, navigation, DOM access, and the page-boundary patch that
// suppresses native confirmation dialogs.
package page

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/icheng/autopunch/internal/config"
)

// Session manages a single browser process and the tab the automation runs in.
type Session struct {
	logger *zap.Logger
	cfg    *config.Config

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	tabCtx          context.Context
	tabCancel       context.CancelFunc

	dom *DOM

	dialogsPatched bool
}

// NewSession launches the browser, opens a tab, and installs the dialog
// suppression patch. The caller must Close the session.
func NewSession(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*Session, error) {
	s := &Session{
		logger: logger.Named("page"),
		cfg:    cfg,
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, s.buildAllocatorOptions()...)
	s.allocatorCtx = allocCtx
	s.allocatorCancel = cancel

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s.tabCtx = tabCtx
	s.tabCancel = tabCancel

	// Confirm the browser is alive before anything else touches it.
	probeCtx, cancelProbe := context.WithTimeout(tabCtx, 30*time.Second)
	defer cancelProbe()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		s.allocatorCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	s.dom = newDOM(tabCtx, s.logger, rate.NewLimiter(rate.Limit(cfg.Browser.EvalRateLimit), 1))

	if err := s.installDialogPatch(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to install dialog patch: %w", err)
	}

	s.logger.Info("browser session initialized")
	return s, nil
}

// buildAllocatorOptions assembles the launch flags for the browser process.
func (s *Session) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("headless", s.cfg.Browser.Headless),
		chromedp.Flag("ignore-certificate-errors", s.cfg.Browser.IgnoreTLSErrors),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", s.cfg.Browser.Headless),
	)

	// Custom arguments from config, "--name=value" or bare "--name".
	for _, arg := range s.cfg.Browser.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	// Flags required inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}

	return opts
}

// Navigate loads the target page and waits for it to settle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("navigating", zap.String("url", url))
	navCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.Browser.NavigateTimeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.Browser.PostLoadWait),
	)
}

// DOM returns the DOM access layer for this session's tab.
func (s *Session) DOM() *DOM {
	return s.dom
}

// Close terminates the tab and the browser process.
func (s *Session) Close() error {
	if s.tabCancel != nil {
		s.tabCancel()
	}
	if s.allocatorCancel != nil {
		s.allocatorCancel()
		// Wait for the process to confirm termination.
		select {
		case <-s.allocatorCtx.Done():
		case <-time.After(10 * time.Second):
			s.logger.Warn("deadline exceeded waiting for browser to close")
		}
	}
	return nil
}
