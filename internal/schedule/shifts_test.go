package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveCheckOut(t *testing.T) {
	t.Run("overtime overrides the day shift checkout hour", func(t *testing.T) {
		out, err := EffectiveCheckOut(WorkItem{Date: 4, ShiftCode: ShiftDay, IsOvertime: true})
		require.NoError(t, err)
		assert.Equal(t, ClockTime{Hour: OvertimeCheckOutHour, Minute: 0}, out)
	})

	t.Run("overtime has no effect on other shifts", func(t *testing.T) {
		for _, code := range []string{ShiftSaturday, ShiftOnCall, ShiftOnCallSunday, ShiftOnCallRest, ShiftOnCallSat, ShiftDayLunch} {
			static, ok := ShiftTimes(code)
			require.True(t, ok, code)
			out, err := EffectiveCheckOut(WorkItem{Date: 4, ShiftCode: code, IsOvertime: true})
			require.NoError(t, err, code)
			assert.Equal(t, static.CheckOut, out, code)
		}
	})

	t.Run("non-overtime day shift keeps the static checkout", func(t *testing.T) {
		out, err := EffectiveCheckOut(WorkItem{Date: 4, ShiftCode: ShiftDay})
		require.NoError(t, err)
		assert.Equal(t, ClockTime{Hour: 17, Minute: 30}, out)
	})

	t.Run("unknown shift code errors", func(t *testing.T) {
		_, err := EffectiveCheckOut(WorkItem{Date: 4, ShiftCode: "X99"})
		assert.Error(t, err)
	})
}

func TestClockTimeFormatting(t *testing.T) {
	c := ClockTime{Hour: 8, Minute: 0}
	assert.Equal(t, "08", c.HH())
	assert.Equal(t, "00", c.MM())
	assert.Equal(t, "08:00", c.String())

	late := ClockTime{Hour: 17, Minute: 30}
	assert.Equal(t, "17:30", late.String())
}

func TestShiftTables(t *testing.T) {
	// Every shift with a label has a time setting and vice versa.
	for code := range shiftLabels {
		_, ok := timeSettings[code]
		assert.True(t, ok, "missing time setting for %s", code)
	}
	for code := range timeSettings {
		_, ok := shiftLabels[code]
		assert.True(t, ok, "missing label for %s", code)
	}

	label, ok := ShiftLabel(ShiftOnCall)
	require.True(t, ok)
	assert.Equal(t, "DW2：平值8-隔日12", label)

	_, ok = ShiftLabel("bogus")
	assert.False(t, ok)
}
