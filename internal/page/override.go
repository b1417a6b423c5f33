package page

import (
	"context"
	"fmt"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// dialogPatchScript replaces window.confirm and window.alert before any page
// script runs, so the site's confirmation prompts resolve immediately instead
// of blocking the tab. Every suppressed dialog is reported back through the
// exposed binding for the log.
const dialogPatchScript = `(() => {
	if (window.__autopunchPatched) { return; }
	window.__autopunchPatched = true;
	const report = (kind, message) => {
		try {
			window.__autopunchDialogEvent(JSON.stringify({ kind: kind, message: String(message) }));
		} catch (e) { /* binding not ready yet */ }
	};
	Object.defineProperty(window, 'confirm', {
		value: (message) => { report('confirm', message); return true; },
		writable: true,
		configurable: true,
	});
	Object.defineProperty(window, 'alert', {
		value: (message) => { report('alert', message); },
		writable: true,
		configurable: true,
	});
})();`

type dialogEvent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// installDialogPatch registers the confirm/alert replacement for every future
// document in the tab and exposes the callback it reports through. It is
// applied once per session.
func (s *Session) installDialogPatch() error {
	if s.dialogsPatched {
		return nil
	}

	err := chromedp.Run(s.tabCtx,
		chromedp.Expose("__autopunchDialogEvent", s.handleDialogEvent),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := cdppage.AddScriptToEvaluateOnNewDocument(dialogPatchScript).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to register dialog patch: %w", err)
	}

	s.dialogsPatched = true
	s.logger.Debug("dialog patch installed")
	return nil
}

// handleDialogEvent receives the payload for each suppressed native dialog.
func (s *Session) handleDialogEvent(payload string) (string, error) {
	var ev dialogEvent
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(payload, &ev); err != nil {
		s.logger.Warn("unparsable dialog event", zap.String("payload", payload))
		return "", nil
	}
	s.logger.Info("suppressed native dialog",
		zap.String("kind", ev.Kind),
		zap.String("message", ev.Message),
	)
	return "", nil
}
