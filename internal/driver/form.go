package driver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/icheng/autopunch/internal/messaging"
	"github.com/icheng/autopunch/internal/schedule"
)

// Positions of the dropdowns within the edit dialog, in document order:
// department, shift, check-in hour, check-in minute, check-out hour,
// check-out minute.
const (
	selectIndexShift          = 1
	selectIndexCheckOutHour   = 4
	selectIndexCheckOutMinute = 5
)

// submitLabels are the accepted submit control labels, in priority order.
var submitLabels = []string{"送出", "確認", "提交", "儲存"}

// fillItem performs the full per-day protocol: open the editor, select the
// shift, set the check-out date and time, submit, and verify the dialog
// closed.
func (d *Driver) fillItem(ctx context.Context, item schedule.WorkItem) error {
	label, ok := schedule.ShiftLabel(item.ShiftCode)
	if !ok {
		return fmt.Errorf("unknown shift code %q for day %d", item.ShiftCode, item.Date)
	}
	times, _ := schedule.ShiftTimes(item.ShiftCode)

	d.narrate(messaging.SeverityInfo, fmt.Sprintf("處理 %s（%s）", item.DateStr, label))

	if err := d.openEditDialog(ctx, item); err != nil {
		return err
	}

	if err := d.selectDropdown(ctx, selectIndexShift, label, "shift"); err != nil {
		return err
	}

	if times.IsOvernight {
		if err := d.selectCheckOutDate(ctx); err != nil {
			return err
		}
	}

	checkOut, err := schedule.EffectiveCheckOut(item)
	if err != nil {
		return err
	}
	if err := d.selectDropdown(ctx, selectIndexCheckOutHour, checkOut.HH(), "check-out hour"); err != nil {
		return err
	}
	if err := d.selectDropdown(ctx, selectIndexCheckOutMinute, checkOut.MM(), "check-out minute"); err != nil {
		return err
	}

	if err := d.submitDialog(ctx); err != nil {
		return err
	}

	// Let the page's own confirmation handling run before checking closure.
	if !d.sleepInterruptible(ctx, d.cfg.SettleDelay) {
		return ErrStopped
	}
	if !d.waitForDialogClose(ctx, d.cfg.SubmitWait) {
		if d.interrupted(ctx) {
			return ErrStopped
		}
		return &StateMismatchError{What: "edit dialog", Detail: "still open after submit"}
	}
	return nil
}

// selectDropdown applies a value to the nth dropdown in the dialog. A native
// selection element at that position takes the fast path of direct option
// assignment; otherwise the custom-widget fallback clicks the trigger open
// and picks from the overlay option list.
func (d *Driver) selectDropdown(ctx context.Context, index int, target, field string) error {
	var native struct {
		Found   bool     `json:"found"`
		Options []string `json:"options"`
	}
	if err := d.dom.Eval(ctx, nativeOptionsScript(index), &native); err != nil {
		return fmt.Errorf("failed to inspect %s dropdown: %w", field, err)
	}
	if !native.Found {
		return d.selectOverlay(ctx, index, target, field)
	}
	idx := matchOptionIndex(native.Options, target)
	if idx < 0 {
		return &NotFoundError{What: field + " option", Sought: target, Available: native.Options}
	}
	var applied bool
	if err := d.dom.Eval(ctx, nativeSelectScript(index, idx), &applied); err != nil || !applied {
		return &StateMismatchError{What: field + " dropdown", Detail: "option assignment failed"}
	}
	return nil
}

func (d *Driver) selectOverlay(ctx context.Context, index int, target, field string) error {
	var found bool
	if err := d.dom.Eval(ctx, overlayTriggerScript(index), &found); err != nil || !found {
		return &NotFoundError{What: field + " dropdown", Sought: fmt.Sprintf("selector #%d in dialog", index+1)}
	}
	if err := d.dom.Click(ctx, selTrigger); err != nil {
		return fmt.Errorf("failed to open %s dropdown: %w", field, err)
	}

	var list struct {
		Found   bool     `json:"found"`
		Options []string `json:"options"`
	}
	opened := d.waitFor(ctx, d.cfg.DialogTimeout, func(ctx context.Context) bool {
		if err := d.dom.Eval(ctx, overlayOptionsScript, &list); err != nil {
			return false
		}
		return list.Found
	})
	if !opened {
		if d.interrupted(ctx) {
			return ErrStopped
		}
		return &NotFoundError{What: field + " option list", Sought: target}
	}

	idx := matchOptionIndex(list.Options, target)
	if idx < 0 {
		return &NotFoundError{What: field + " option", Sought: target, Available: list.Options}
	}
	var marked bool
	if err := d.dom.Eval(ctx, overlayPickScript(idx), &marked); err != nil || !marked {
		return &StateMismatchError{What: field + " option list", Detail: "option vanished before click"}
	}
	return d.dom.Click(ctx, selOption)
}

// matchOptionIndex finds the option matching a target value: exact text
// first, zero-padded and unpadded forms for numeric values, and a
// code-prefix match for shift labels whose description text may drift.
func matchOptionIndex(options []string, target string) int {
	target = strings.TrimSpace(target)
	for i, opt := range options {
		if strings.TrimSpace(opt) == target {
			return i
		}
	}
	if n, err := strconv.Atoi(target); err == nil {
		padded := fmt.Sprintf("%02d", n)
		unpadded := strconv.Itoa(n)
		for i, opt := range options {
			t := strings.TrimSpace(opt)
			if t == padded || t == unpadded {
				return i
			}
		}
	}
	if code, _, ok := strings.Cut(target, "："); ok && code != "" {
		for i, opt := range options {
			if strings.HasPrefix(strings.TrimSpace(opt), code+"：") {
				return i
			}
		}
	}
	return -1
}

// selectCheckOutDate handles the overnight case: read the check-in date from
// the dialog, compute the following day, and pick it in the date picker,
// navigating forward one month when the rollover crosses a month boundary.
func (d *Driver) selectCheckOutDate(ctx context.Context) error {
	var raw string
	if err := d.dom.Eval(ctx, dialogDateScript, &raw); err != nil {
		return fmt.Errorf("failed to read check-in date: %w", err)
	}
	base, ok := parseDialogDate(raw)
	if !ok {
		base = time.Now()
		d.logger.Warn("check-in date unreadable, falling back to today", zap.String("raw", raw))
		d.narrate(messaging.SeverityWarning, "無法讀取簽到日期，改用今天計算簽退日期")
	}
	target := base.AddDate(0, 0, 1)

	var found bool
	if err := d.dom.Eval(ctx, datePickerTriggerScript, &found); err != nil || !found {
		return &NotFoundError{What: "check-out date picker trigger"}
	}
	if err := d.dom.Click(ctx, selPickerTrigger); err != nil {
		return fmt.Errorf("failed to open date picker: %w", err)
	}
	if !d.waitFor(ctx, d.cfg.DialogTimeout, d.evalBool(pickerReadyScript)) {
		if d.interrupted(ctx) {
			return ErrStopped
		}
		return &NotFoundError{What: "date picker panel"}
	}

	if target.Month() != base.Month() {
		var navFound bool
		if err := d.dom.Eval(ctx, pickerNextMonthScript, &navFound); err != nil || !navFound {
			return &NotFoundError{What: "next month control"}
		}
		if err := d.dom.Click(ctx, selMonthNext); err != nil {
			return fmt.Errorf("failed to navigate picker month: %w", err)
		}
		if !d.sleepInterruptible(ctx, d.cfg.SettleDelay) {
			return ErrStopped
		}
	}

	label := target.Format("2006/01/02")
	var cell bool
	if err := d.dom.Eval(ctx, dayCellScript(label, target.Day()), &cell); err != nil || !cell {
		return &NotFoundError{What: "day cell", Sought: label}
	}
	return d.dom.Click(ctx, selDayCell)
}

// parseDialogDate parses a YYYY/MM/DD-shaped value, accepting dash
// separators and unpadded components.
func parseDialogDate(s string) (time.Time, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "-", "/")
	t, err := time.Parse("2006/1/2", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// submitDialog locates and clicks the dialog's submit control. Controls that
// resolve outside the dialog or are disabled are rejected.
func (d *Driver) submitDialog(ctx context.Context) error {
	var status string
	if err := d.dom.Eval(ctx, submitScript(submitLabels), &status); err != nil {
		return fmt.Errorf("failed to locate submit control: %w", err)
	}
	switch status {
	case "ok":
		return d.dom.Click(ctx, selSubmit)
	case "disabled":
		return &StateMismatchError{What: "submit control", Detail: "is disabled"}
	case "outside":
		return &StateMismatchError{What: "submit control", Detail: "resolved outside the dialog"}
	default:
		return &NotFoundError{What: "submit control", Sought: strings.Join(submitLabels, "/")}
	}
}

// removeItem performs the remove-record protocol: open the editor, click the
// delete control when it is enabled, or log a skip when the day has no
// record to remove.
func (d *Driver) removeItem(ctx context.Context, item schedule.WorkItem) error {
	d.narrate(messaging.SeverityInfo, fmt.Sprintf("移除 %s 的打卡紀錄", item.DateStr))

	if err := d.openEditDialog(ctx, item); err != nil {
		return err
	}

	var status string
	if err := d.dom.Eval(ctx, deleteControlScript, &status); err != nil {
		return fmt.Errorf("failed to locate delete control: %w", err)
	}
	switch status {
	case "enabled":
		if err := d.dom.Click(ctx, selDelete); err != nil {
			return fmt.Errorf("failed to click delete control: %w", err)
		}
	case "disabled":
		d.narrate(messaging.SeverityInfo, fmt.Sprintf("%s 沒有既有紀錄，略過", item.DateStr))
		d.forceCloseDialog(ctx)
		return nil
	default:
		return &NotFoundError{What: "delete control", Sought: "trash icon in dialog"}
	}

	if !d.sleepInterruptible(ctx, d.cfg.SettleDelay) {
		return ErrStopped
	}
	if !d.waitForDialogClose(ctx, d.cfg.SubmitWait) {
		if d.interrupted(ctx) {
			return ErrStopped
		}
		return &StateMismatchError{What: "edit dialog", Detail: "still open after delete"}
	}
	return nil
}
