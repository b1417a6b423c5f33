// Package schedule holds the shift model and the month-plan generator that
// produces the work items consumed by the automation driver.
package schedule

import (
	"fmt"
	"time"
)

// Shift codes understood by the attendance application.
const (
	ShiftDay          = "C02"  // weekday day shift, 8-17:30
	ShiftSaturday     = "W02"  // Saturday half day, 8-12
	ShiftOnCall       = "DW2"  // weekday on-call, 8 to next day 12
	ShiftOnCallSunday = "DW6"  // holiday on-call, 8 to next day 12
	ShiftOnCallRest   = "DW2H" // weekday on-call with next-day rest
	ShiftOnCallSat    = "DW4"  // Saturday on-call, 8 to next day 8
	ShiftDayLunch     = "N"    // day shift with lunch break
)

// OvertimeCheckOutHour is the late checkout applied to the standard day shift
// when a day is flagged as overtime.
const OvertimeCheckOutHour = 20

// ClockTime is an hour/minute pair as shown in the form's time dropdowns.
type ClockTime struct {
	Hour   int
	Minute int
}

// HH returns the zero-padded hour string used by the dropdown options.
func (c ClockTime) HH() string { return fmt.Sprintf("%02d", c.Hour) }

// MM returns the zero-padded minute string used by the dropdown options.
func (c ClockTime) MM() string { return fmt.Sprintf("%02d", c.Minute) }

func (c ClockTime) String() string { return c.HH() + ":" + c.MM() }

// TimeSetting is the static per-shift-code configuration loaded once at
// driver construction.
type TimeSetting struct {
	CheckIn     ClockTime
	CheckOut    ClockTime
	IsOvernight bool
	Description string
}

// shiftLabels maps a shift code to the display name shown in the shift
// dropdown. The application appends a human description after the code.
var shiftLabels = map[string]string{
	ShiftDay:          "C02：8-17半(無休)",
	ShiftSaturday:     "W02：六8-12",
	ShiftOnCall:       "DW2：平值8-隔日12",
	ShiftOnCallSunday: "DW6：假8-隔日12",
	ShiftOnCallRest:   "DW2H：平值8-隔日8(次日公休)",
	ShiftOnCallSat:    "DW4：六8-隔日8",
	ShiftDayLunch:     "N：8-17半(午休1.5h)",
}

// timeSettings maps a shift code to its check-in/out times.
var timeSettings = map[string]TimeSetting{
	ShiftDay:          {CheckIn: ClockTime{8, 0}, CheckOut: ClockTime{17, 30}, Description: "一般日班工作"},
	ShiftSaturday:     {CheckIn: ClockTime{8, 0}, CheckOut: ClockTime{12, 0}, Description: "週六半日班"},
	ShiftOnCall:       {CheckIn: ClockTime{8, 0}, CheckOut: ClockTime{12, 0}, IsOvernight: true, Description: "平日值班工作"},
	ShiftOnCallSunday: {CheckIn: ClockTime{8, 0}, CheckOut: ClockTime{12, 0}, IsOvernight: true, Description: "假日值班工作"},
	ShiftOnCallRest:   {CheckIn: ClockTime{8, 0}, CheckOut: ClockTime{8, 0}, IsOvernight: true, Description: "平日值班(次日公休)"},
	ShiftOnCallSat:    {CheckIn: ClockTime{8, 0}, CheckOut: ClockTime{8, 0}, IsOvernight: true, Description: "週六值班工作"},
	ShiftDayLunch:     {CheckIn: ClockTime{8, 0}, CheckOut: ClockTime{17, 30}, Description: "一般日班(含午休)"},
}

// ShiftLabel returns the dropdown display name for a shift code.
func ShiftLabel(code string) (string, bool) {
	label, ok := shiftLabels[code]
	return label, ok
}

// ShiftTimes returns the static time setting for a shift code.
func ShiftTimes(code string) (TimeSetting, bool) {
	ts, ok := timeSettings[code]
	return ts, ok
}

// WorkItem is one calendar day's scheduled action submitted to the driver.
// Immutable once the run starts.
type WorkItem struct {
	Date       int    // day of month, 1-31
	DateStr    string // display form, e.g. "2025/8/5"
	ShiftCode  string
	IsOvertime bool
}

// EffectiveCheckOut resolves the checkout time for a work item: the static
// shift setting, or the late overtime override when the item is an overtime
// day on the standard day shift. Overtime on any other shift has no effect.
func EffectiveCheckOut(item WorkItem) (ClockTime, error) {
	ts, ok := timeSettings[item.ShiftCode]
	if !ok {
		return ClockTime{}, fmt.Errorf("unknown shift code %q", item.ShiftCode)
	}
	if item.IsOvertime && item.ShiftCode == ShiftDay {
		return ClockTime{Hour: OvertimeCheckOutHour, Minute: 0}, nil
	}
	return ts.CheckOut, nil
}

// FormatDate renders a date the way the selection UI keys its day sets:
// unpadded YYYY/M/D.
func FormatDate(year int, month time.Month, day int) string {
	return fmt.Sprintf("%d/%d/%d", year, int(month), day)
}
