package page

import (
	"context"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DOM gives the driver scripted access to the live document. Every call is
// rate limited so tight polling loops cannot flood the debugger transport.
type DOM struct {
	tabCtx  context.Context
	logger  *zap.Logger
	limiter *rate.Limiter
}

func newDOM(tabCtx context.Context, logger *zap.Logger, limiter *rate.Limiter) *DOM {
	return &DOM{
		tabCtx:  tabCtx,
		logger:  logger.Named("dom"),
		limiter: limiter,
	}
}

// Eval executes a JavaScript expression in the page and unmarshals the
// result into out. Pass a nil out to discard the result.
func (d *DOM) Eval(ctx context.Context, expr string, out any) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	runCtx, cancel := d.callContext(ctx)
	defer cancel()
	if out == nil {
		var discard any
		out = &discard
	}
	return chromedp.Run(runCtx, chromedp.Evaluate(expr, out))
}

// Click dispatches a trusted click on the first element matching the
// CSS selector.
func (d *DOM) Click(ctx context.Context, selector string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	runCtx, cancel := d.callContext(ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Click(selector, chromedp.ByQuery))
}

// PressEscape sends an Escape key event to the focused document.
func (d *DOM) PressEscape(ctx context.Context) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	runCtx, cancel := d.callContext(ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.KeyEvent(kb.Escape))
}

// callContext binds a single DOM call to both the tab's lifetime and the
// caller's deadline.
func (d *DOM) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(d.tabCtx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}
