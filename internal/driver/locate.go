package driver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/icheng/autopunch/internal/schedule"
)

// findRowForDate resolves the table row for the item's day of month, waiting
// for the table to render within the configured budget.
func (d *Driver) findRowForDate(ctx context.Context, item schedule.WorkItem) bool {
	script := rowScript(item.Date, dateVariants(item))
	found := d.waitFor(ctx, d.cfg.TableTimeout, d.evalBool(script))
	if !found {
		d.logger.Debug("row not resolved", zap.Int("day", item.Date))
	}
	return found
}

// findEditControl resolves the editor-opening control within the stamped row.
func (d *Driver) findEditControl(ctx context.Context) bool {
	var ok bool
	if err := d.dom.Eval(ctx, editControlScript, &ok); err != nil {
		d.logger.Debug("edit control lookup failed", zap.Error(err))
		return false
	}
	return ok
}

// openEditDialog runs the shared row-to-dialog sequence: resolve the row,
// click its edit control, and wait for an actionable dialog.
func (d *Driver) openEditDialog(ctx context.Context, item schedule.WorkItem) error {
	if !d.findRowForDate(ctx, item) {
		if d.interrupted(ctx) {
			return ErrStopped
		}
		return &NotFoundError{What: "table row", Sought: fmt.Sprintf("day %d", item.Date)}
	}
	if !d.findEditControl(ctx) {
		return &NotFoundError{What: "edit control", Sought: fmt.Sprintf("row for day %d", item.Date)}
	}
	if err := d.dom.Click(ctx, selEdit); err != nil {
		return fmt.Errorf("failed to click edit control: %w", err)
	}
	if !d.waitForDialogOpen(ctx) {
		if d.interrupted(ctx) {
			return ErrStopped
		}
		return &NotFoundError{What: "edit dialog", Sought: "actionable dialog after opening editor"}
	}
	return nil
}

// waitForDialogOpen waits for a fully rendered, actionable dialog, then lets
// it settle briefly before the form fill begins.
func (d *Driver) waitForDialogOpen(ctx context.Context) bool {
	if !d.waitFor(ctx, d.cfg.DialogTimeout, d.evalBool(dialogReadyScript)) {
		return false
	}
	return d.sleepInterruptible(ctx, d.cfg.SettleDelay)
}

// waitForDialogClose waits for all dialog containers to disappear.
func (d *Driver) waitForDialogClose(ctx context.Context, timeout time.Duration) bool {
	return d.waitFor(ctx, timeout, func(ctx context.Context) bool {
		var present bool
		if err := d.dom.Eval(ctx, dialogPresentScript, &present); err != nil {
			return false
		}
		return !present
	})
}

// forceCloseDialog closes any stray open dialog before a retry: a
// cancel-labeled control when one exists, an Escape key otherwise. Best
// effort, never fails.
func (d *Driver) forceCloseDialog(ctx context.Context) {
	var present bool
	if err := d.dom.Eval(ctx, dialogPresentScript, &present); err != nil || !present {
		return
	}
	var found bool
	if err := d.dom.Eval(ctx, cancelControlScript, &found); err == nil && found {
		if err := d.dom.Click(ctx, selCancel); err == nil {
			return
		}
	}
	if err := d.dom.PressEscape(ctx); err != nil {
		d.logger.Debug("escape dispatch failed", zap.Error(err))
	}
}
