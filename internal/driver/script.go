package driver

import (
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/icheng/autopunch/internal/schedule"
)

// Elements resolved inside the page are handed back to Go by stamping a
// marker attribute on them; subsequent clicks address the stamped element
// through these selectors instead of re-running the lookup.
const (
	selRow           = `[data-autopunch-target="row"]`
	selEdit          = `[data-autopunch-target="edit"]`
	selDialog        = `[data-autopunch-target="dialog"]`
	selTrigger       = `[data-autopunch-target="trigger"]`
	selOption        = `[data-autopunch-target="option"]`
	selPickerTrigger = `[data-autopunch-target="picker-trigger"]`
	selMonthNext     = `[data-autopunch-target="month-next"]`
	selDayCell       = `[data-autopunch-target="day"]`
	selSubmit        = `[data-autopunch-target="submit"]`
	selDelete        = `[data-autopunch-target="delete"]`
	selCancel        = `[data-autopunch-target="cancel"]`
)

// jsString renders a Go string as a JavaScript string literal.
func jsString(s string) string {
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(s)
	if err != nil {
		return `""`
	}
	return out
}

// jsStringArray renders a Go string slice as a JavaScript array literal.
func jsStringArray(values []string) string {
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(values)
	if err != nil {
		return "[]"
	}
	return out
}

// dateVariants lists the text forms a row for this date may render as.
func dateVariants(item schedule.WorkItem) []string {
	variants := []string{fmt.Sprintf("%d日", item.Date)}
	parts := strings.Split(item.DateStr, "/")
	if len(parts) != 3 {
		return variants
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return variants
	}
	dd := fmt.Sprintf("%02d", item.Date)
	mm := fmt.Sprintf("%02d", month)
	return append(variants,
		mm+"/"+dd,
		fmt.Sprintf("%d/%d", month, item.Date),
		parts[0]+"/"+mm+"/"+dd,
		item.DateStr,
	)
}

// rowScript resolves the table row for a day of month. Resolution order:
// first-cell day number, then date text variants, then row position.
func rowScript(day int, variants []string) string {
	return fmt.Sprintf(`(() => {
	const day = %d;
	const variants = %s;
	const visible = (el) => el.getClientRects().length > 0;
	const rows = Array.from(document.querySelectorAll('table tbody tr, [role="row"]')).filter(visible);
	if (rows.length === 0) { return false; }
	const firstCellText = (row) => {
		const cell = row.querySelector('td, th, [role="cell"], [role="gridcell"]');
		return cell ? cell.textContent.trim() : '';
	};
	const dayText = String(day);
	const padded = dayText.padStart(2, '0');
	let hit = rows.find((r) => firstCellText(r) === dayText || firstCellText(r) === padded);
	if (!hit) { hit = rows.find((r) => variants.some((v) => r.textContent.includes(v))); }
	if (!hit && rows.length >= day) { hit = rows[day - 1]; }
	if (!hit) { return false; }
	document.querySelectorAll('[data-autopunch-target="row"]').forEach((n) => n.removeAttribute('data-autopunch-target'));
	hit.setAttribute('data-autopunch-target', 'row');
	return true;
})()`, day, jsStringArray(variants))
}

// editControlScript resolves the control that opens the row's editor:
// semantic markers first, then attribute hints, then the first enabled
// interactive control in the row.
const editControlScript = `(() => {
	const row = document.querySelector('[data-autopunch-target="row"]');
	if (!row) { return false; }
	const visible = (el) => el.getClientRects().length > 0;
	const enabled = (el) => !el.disabled && el.getAttribute('aria-disabled') !== 'true';
	const controls = Array.from(row.querySelectorAll('button, a, [role="button"], i, span[onclick]'))
		.filter((el) => visible(el) && enabled(el));
	const textOf = (el) => ((el.textContent || '') + ' ' + (el.getAttribute('title') || '') + ' ' +
		(el.getAttribute('aria-label') || '')).toLowerCase();
	const markers = ['編輯', '修改', 'edit'];
	let hit = controls.find((el) => markers.some((m) => textOf(el).includes(m)));
	if (!hit) { hit = controls.find((el) => el.getAttribute('title') || el.getAttribute('aria-label')); }
	if (!hit) { hit = controls[0]; }
	if (!hit) { return false; }
	document.querySelectorAll('[data-autopunch-target="edit"]').forEach((n) => n.removeAttribute('data-autopunch-target'));
	hit.setAttribute('data-autopunch-target', 'edit');
	return true;
})()`

// dialogReadyScript matches only a fully rendered, actionable dialog: a
// heading region plus at least one input control, so a transitional shell
// does not count as open.
const dialogReadyScript = `(() => {
	const visible = (el) => el.getClientRects().length > 0;
	const candidates = Array.from(document.querySelectorAll(
		'[role="dialog"], dialog[open], .modal, .el-dialog, .ant-modal')).filter(visible);
	const ready = candidates.find((dlg) =>
		dlg.querySelector('h1, h2, h3, h4, [class*="title"], [class*="header"]') &&
		dlg.querySelector('select, [role="combobox"], [role="listbox"], input'));
	if (!ready) { return false; }
	document.querySelectorAll('[data-autopunch-target="dialog"]').forEach((n) => n.removeAttribute('data-autopunch-target'));
	ready.setAttribute('data-autopunch-target', 'dialog');
	return true;
})()`

// dialogPresentScript reports whether any dialog container is visible at all.
const dialogPresentScript = `(() => {
	const visible = (el) => el.getClientRects().length > 0;
	const anyOpen = Array.from(document.querySelectorAll(
		'[role="dialog"], dialog[open], .modal, .el-dialog, .ant-modal')).some(visible);
	return anyOpen;
})()`

// nativeOptionsScript reads the option texts of the nth visible native
// selection element in the dialog, reporting absence when the dialog uses a
// custom widget at that position instead.
func nativeOptionsScript(index int) string {
	return fmt.Sprintf(`(() => {
	const dlg = document.querySelector('[data-autopunch-target="dialog"]');
	if (!dlg) { return { found: false, options: [] }; }
	const visible = (el) => el.getClientRects().length > 0;
	const selects = Array.from(dlg.querySelectorAll('select')).filter(visible);
	const sel = selects[%d];
	if (!sel) { return { found: false, options: [] }; }
	return { found: true, options: Array.from(sel.options).map((o) => o.textContent.trim()) };
})()`, index)
}

// nativeSelectScript assigns an option on a native selection element and
// dispatches the events the page's framework listens for.
func nativeSelectScript(index, optionIndex int) string {
	return fmt.Sprintf(`(() => {
	const dlg = document.querySelector('[data-autopunch-target="dialog"]');
	if (!dlg) { return false; }
	const visible = (el) => el.getClientRects().length > 0;
	const selects = Array.from(dlg.querySelectorAll('select')).filter(visible);
	const sel = selects[%d];
	if (!sel || !sel.options[%d]) { return false; }
	sel.selectedIndex = %d;
	sel.dispatchEvent(new Event('input', { bubbles: true }));
	sel.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`, index, optionIndex, optionIndex)
}

// overlayTriggerScript resolves the nth custom combobox trigger in the dialog.
func overlayTriggerScript(index int) string {
	return fmt.Sprintf(`(() => {
	const dlg = document.querySelector('[data-autopunch-target="dialog"]');
	if (!dlg) { return false; }
	const visible = (el) => el.getClientRects().length > 0;
	const triggers = Array.from(dlg.querySelectorAll(
		'[role="combobox"], [aria-haspopup="listbox"], .el-select, .dropdown-toggle')).filter(visible);
	const hit = triggers[%d];
	if (!hit) { return false; }
	document.querySelectorAll('[data-autopunch-target="trigger"]').forEach((n) => n.removeAttribute('data-autopunch-target'));
	hit.setAttribute('data-autopunch-target', 'trigger');
	return true;
})()`, index)
}

// overlayOptionsScript reads the texts of the currently open option list.
// Custom widgets often portal the list to the document body, so the whole
// document is searched, not just the dialog.
const overlayOptionsScript = `(() => {
	const visible = (el) => el.getClientRects().length > 0;
	const optionNodes = Array.from(document.querySelectorAll(
		'[role="option"], [role="listbox"] li, .el-select-dropdown__item')).filter(visible);
	return { found: optionNodes.length > 0, options: optionNodes.map((o) => o.textContent.trim()) };
})()`

// overlayPickScript stamps the nth visible entry of the open option list.
func overlayPickScript(optionIndex int) string {
	return fmt.Sprintf(`(() => {
	const visible = (el) => el.getClientRects().length > 0;
	const optionNodes = Array.from(document.querySelectorAll(
		'[role="option"], [role="listbox"] li, .el-select-dropdown__item')).filter(visible);
	const hit = optionNodes[%d];
	if (!hit) { return false; }
	document.querySelectorAll('[data-autopunch-target="option"]').forEach((n) => n.removeAttribute('data-autopunch-target'));
	hit.setAttribute('data-autopunch-target', 'option');
	return true;
})()`, optionIndex)
}

// dialogDateScript extracts the check-in date already displayed in the
// dialog, as a YYYY/MM/DD-shaped text value. Inputs are checked before
// free text.
const dialogDateScript = `(() => {
	const dlg = document.querySelector('[data-autopunch-target="dialog"]');
	if (!dlg) { return ''; }
	const re = /\d{4}[\/\-]\d{1,2}[\/\-]\d{1,2}/;
	for (const input of Array.from(dlg.querySelectorAll('input'))) {
		const m = (input.value || '').match(re);
		if (m) { return m[0]; }
	}
	const m = (dlg.textContent || '').match(re);
	return m ? m[0] : '';
})()`

// datePickerTriggerScript resolves the check-out date field's picker
// trigger. With two date fields in the dialog the second one is the
// check-out date.
const datePickerTriggerScript = `(() => {
	const dlg = document.querySelector('[data-autopunch-target="dialog"]');
	if (!dlg) { return false; }
	const visible = (el) => el.getClientRects().length > 0;
	const fields = Array.from(dlg.querySelectorAll(
		'input[placeholder*="日期"], [class*="date"] input, input[class*="date"]')).filter(visible);
	let hit = fields.length >= 2 ? fields[1] : fields[0];
	if (!hit) {
		const icons = Array.from(dlg.querySelectorAll('i[class*="calendar"], [class*="calendar"] i, button[class*="date"]')).filter(visible);
		hit = icons.length >= 2 ? icons[1] : icons[0];
	}
	if (!hit) { return false; }
	document.querySelectorAll('[data-autopunch-target="picker-trigger"]').forEach((n) => n.removeAttribute('data-autopunch-target'));
	hit.setAttribute('data-autopunch-target', 'picker-trigger');
	return true;
})()`

// pickerReadyScript reports whether a calendar panel with day cells is open.
const pickerReadyScript = `(() => {
	const visible = (el) => el.getClientRects().length > 0;
	const panels = Array.from(document.querySelectorAll(
		'[role="grid"], .el-picker-panel, [class*="picker-panel"], [class*="calendar"]')).filter(visible);
	const panelReady = panels.some((p) => p.querySelector('td, [role="gridcell"]'));
	return panelReady;
})()`

// pickerNextMonthScript resolves the open panel's forward month navigation.
const pickerNextMonthScript = `(() => {
	const visible = (el) => el.getClientRects().length > 0;
	const panels = Array.from(document.querySelectorAll(
		'[role="grid"], .el-picker-panel, [class*="picker-panel"], [class*="calendar"]')).filter(visible);
	const panel = panels[panels.length - 1];
	if (!panel) { return false; }
	const scope = panel.closest('[class*="picker"]') || panel;
	const buttons = Array.from(scope.querySelectorAll('button, [role="button"], i, span')).filter(visible);
	const textOf = (el) => ((el.textContent || '') + ' ' + (el.getAttribute('aria-label') || '') +
		' ' + (el.getAttribute('title') || '') + ' ' + el.className).toLowerCase();
	const hit = buttons.find((el) => ['下個月', '下个月', 'next month', 'arrow-right', 'next'].some((m) => textOf(el).includes(m)));
	if (!hit) { return false; }
	document.querySelectorAll('[data-autopunch-target="month-next"]').forEach((n) => n.removeAttribute('data-autopunch-target'));
	hit.setAttribute('data-autopunch-target', 'month-next');
	return true;
})()`

// dayCellScript resolves the calendar cell for the target date, matching the
// accessible label first and falling back to the numeric day text. Cells in
// disabled or adjacent-month positions are excluded from the fallback.
func dayCellScript(label string, day int) string {
	return fmt.Sprintf(`(() => {
	const visible = (el) => el.getClientRects().length > 0;
	const panels = Array.from(document.querySelectorAll(
		'[role="grid"], .el-picker-panel, [class*="picker-panel"], [class*="calendar"]')).filter(visible);
	const panel = panels[panels.length - 1];
	if (!panel) { return false; }
	const cells = Array.from(panel.querySelectorAll('td, [role="gridcell"]')).filter(visible);
	const label = %s;
	let hit = cells.find((c) => (c.getAttribute('aria-label') || '').includes(label));
	if (!hit) {
		const dayText = %s;
		hit = cells.find((c) => c.textContent.trim() === dayText &&
			!c.className.includes('disabled') && !c.className.includes('other'));
	}
	if (!hit) { return false; }
	document.querySelectorAll('[data-autopunch-target="day"]').forEach((n) => n.removeAttribute('data-autopunch-target'));
	hit.setAttribute('data-autopunch-target', 'day');
	return true;
})()`, jsString(label), jsString(strconv.Itoa(day)))
}

// submitScript resolves the dialog's submit control by exact label match in
// priority order. A control that resolves outside the dialog or is disabled
// is reported rather than stamped.
func submitScript(labels []string) string {
	return fmt.Sprintf(`(() => {
	const dlg = document.querySelector('[data-autopunch-target="dialog"]');
	if (!dlg) { return 'missing'; }
	const visible = (el) => el.getClientRects().length > 0;
	const labels = %s;
	const buttons = Array.from(document.querySelectorAll(
		'button, [role="button"], input[type="submit"], input[type="button"]')).filter(visible);
	const textOf = (el) => ((el.textContent || el.value) || '').trim();
	for (const label of labels) {
		const hit = buttons.find((b) => dlg.contains(b) && textOf(b) === label) ||
			buttons.find((b) => textOf(b) === label);
		if (!hit) { continue; }
		if (!dlg.contains(hit)) { return 'outside'; }
		if (hit.disabled || hit.getAttribute('aria-disabled') === 'true') { return 'disabled'; }
		document.querySelectorAll('[data-autopunch-target="submit"]').forEach((n) => n.removeAttribute('data-autopunch-target'));
		hit.setAttribute('data-autopunch-target', 'submit');
		return 'ok';
	}
	return 'missing';
})()`, jsStringArray(labels))
}

// deleteControlScript resolves the dialog's delete control by tooltip text,
// or positionally as the second icon button when no tooltip matches. A
// disabled control means the day has no existing record.
const deleteControlScript = `(() => {
	const dlg = document.querySelector('[data-autopunch-target="dialog"]');
	if (!dlg) { return 'missing'; }
	const visible = (el) => el.getClientRects().length > 0;
	const controls = Array.from(dlg.querySelectorAll('button, [role="button"], a, i')).filter(visible);
	const textOf = (el) => ((el.getAttribute('title') || '') + ' ' + (el.getAttribute('aria-label') || '') +
		' ' + (el.textContent || '')).toLowerCase();
	const markers = ['刪除', '删除', 'delete', 'trash'];
	let hit = controls.find((el) => markers.some((m) => textOf(el).includes(m)));
	if (!hit) {
		const iconButtons = controls.filter((el) => el.tagName === 'I' || el.querySelector('i, svg'));
		hit = iconButtons[1];
	}
	if (!hit) { return 'missing'; }
	if (hit.disabled || hit.getAttribute('aria-disabled') === 'true' || hit.className.includes('disabled')) {
		return 'disabled';
	}
	document.querySelectorAll('[data-autopunch-target="delete"]').forEach((n) => n.removeAttribute('data-autopunch-target'));
	hit.setAttribute('data-autopunch-target', 'delete');
	return 'enabled';
})()`

// cancelControlScript resolves a cancel-labeled control in the topmost
// visible dialog, for retry recovery.
const cancelControlScript = `(() => {
	const visible = (el) => el.getClientRects().length > 0;
	const dialogs = Array.from(document.querySelectorAll(
		'[role="dialog"], dialog[open], .modal, .el-dialog, .ant-modal')).filter(visible);
	const scope = dialogs[dialogs.length - 1];
	if (!scope) { return false; }
	const labels = ['取消', '關閉', '关闭', 'Cancel', 'Close'];
	const buttons = Array.from(scope.querySelectorAll('button, [role="button"], a')).filter(visible);
	const hit = buttons.find((b) => labels.includes((b.textContent || '').trim()));
	if (!hit) { return false; }
	document.querySelectorAll('[data-autopunch-target="cancel"]').forEach((n) => n.removeAttribute('data-autopunch-target'));
	hit.setAttribute('data-autopunch-target', 'cancel');
	return true;
})()`
