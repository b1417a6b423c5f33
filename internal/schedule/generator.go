package schedule

import (
	"time"
)

// DayStatus classifies a calendar day in the generated month plan.
type DayStatus string

const (
	StatusRegular  DayStatus = "regular"
	StatusOnCall   DayStatus = "oncall"
	StatusOvertime DayStatus = "overtime"
	StatusLeave    DayStatus = "leave"
	StatusSkip     DayStatus = "skip"
)

// DayPlan is one row of the generated month plan. Days without a shift
// (leave, skip) carry a reason instead of times.
type DayPlan struct {
	Date       int
	DateStr    string
	Weekday    time.Weekday
	Status     DayStatus
	Reason     string
	ShiftCode  string
	ShiftLabel string
	IsOvertime bool
	Times      *TimeSetting
	EndTime    ClockTime // effective checkout, after any overtime override
}

// Selection is the per-category day selection the user made for a month.
// Keys are FormatDate strings. The selection UI guarantees the categories are
// mutually exclusive per day; the generator trusts that.
type Selection struct {
	Year     int
	Month    time.Month
	OnCall   map[string]bool
	Leave    map[string]bool
	Overtime map[string]bool
}

// Generate walks every day of the selection's month and produces the plan.
// Today and future days are skipped (the application only accepts records for
// past days), as are leave days, the day after an on-call day, and a Saturday
// directly before a Sunday on-call.
func Generate(sel Selection, now time.Time) []DayPlan {
	daysInMonth := time.Date(sel.Year, sel.Month+1, 0, 0, 0, 0, 0, time.Local).Day()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)

	plan := make([]DayPlan, 0, daysInMonth)
	for day := 1; day <= daysInMonth; day++ {
		date := time.Date(sel.Year, sel.Month, day, 0, 0, 0, 0, time.Local)
		entry := DayPlan{
			Date:    day,
			DateStr: FormatDate(sel.Year, sel.Month, day),
			Weekday: date.Weekday(),
		}

		if !date.Before(today) {
			entry.Status = StatusSkip
			if date.Equal(today) {
				entry.Reason = "今天不可打卡"
			} else {
				entry.Reason = "未來日期不可打卡"
			}
			plan = append(plan, entry)
			continue
		}

		if sel.Leave[entry.DateStr] {
			entry.Status = StatusLeave
			entry.Reason = "請假"
			plan = append(plan, entry)
			continue
		}

		if reason, skip := skipReason(date, sel); skip {
			entry.Status = StatusSkip
			entry.Reason = reason
			plan = append(plan, entry)
			continue
		}

		isOnCall := sel.OnCall[entry.DateStr]
		isOvertime := sel.Overtime[entry.DateStr]
		code := shiftFor(date.Weekday(), isOnCall)
		if code == "" {
			// Sundays without on-call duty carry no record.
			entry.Status = StatusSkip
			entry.Reason = "週日無班"
			plan = append(plan, entry)
			continue
		}

		ts, _ := ShiftTimes(code)
		label, _ := ShiftLabel(code)
		entry.ShiftCode = code
		entry.ShiftLabel = label
		entry.IsOvertime = isOvertime
		entry.Times = &ts
		entry.EndTime, _ = EffectiveCheckOut(WorkItem{Date: day, ShiftCode: code, IsOvertime: isOvertime})

		switch {
		case isOnCall:
			entry.Status = StatusOnCall
			entry.Reason = "值班"
		case isOvertime:
			entry.Status = StatusOvertime
			entry.Reason = "加班"
		default:
			entry.Status = StatusRegular
			entry.Reason = "一般上班"
		}
		plan = append(plan, entry)
	}
	return plan
}

// WorkItems filters a plan to the ordered list of actionable work items.
func WorkItems(plan []DayPlan) []WorkItem {
	var items []WorkItem
	for _, d := range plan {
		if d.ShiftCode == "" {
			continue
		}
		items = append(items, WorkItem{
			Date:       d.Date,
			DateStr:    d.DateStr,
			ShiftCode:  d.ShiftCode,
			IsOvertime: d.IsOvertime,
		})
	}
	return items
}

// RangeItems builds remove-run work items for an inclusive day range.
func RangeItems(year int, month time.Month, startDay, endDay int) []WorkItem {
	var items []WorkItem
	for day := startDay; day <= endDay; day++ {
		items = append(items, WorkItem{
			Date:    day,
			DateStr: FormatDate(year, month, day),
		})
	}
	return items
}

// shiftFor selects the shift code for a weekday. On-call days use the
// overnight variants; Sundays only have shifts when on call.
func shiftFor(weekday time.Weekday, isOnCall bool) string {
	if isOnCall {
		if weekday == time.Sunday {
			return ShiftOnCallSunday
		}
		return ShiftOnCall
	}
	switch weekday {
	case time.Saturday:
		return ShiftSaturday
	case time.Sunday:
		return ""
	default:
		return ShiftDay
	}
}

// skipReason reports whether a working day must be skipped because of
// adjacent on-call duty: the day after an on-call day is a rest day, and a
// Saturday before a Sunday on-call is excluded.
func skipReason(date time.Time, sel Selection) (string, bool) {
	yesterday := date.AddDate(0, 0, -1)
	if sel.OnCall[FormatDate(yesterday.Year(), yesterday.Month(), yesterday.Day())] {
		return "值班隔日", true
	}

	tomorrow := date.AddDate(0, 0, 1)
	if date.Weekday() == time.Saturday && tomorrow.Weekday() == time.Sunday &&
		sel.OnCall[FormatDate(tomorrow.Year(), tomorrow.Month(), tomorrow.Day())] {
		return "週日值班前一天", true
	}

	return "", false
}
