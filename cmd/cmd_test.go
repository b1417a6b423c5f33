package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectionFlags(t *testing.T) {
	t.Run("builds category sets keyed by date", func(t *testing.T) {
		sf := selectionFlags{year: 2025, month: 8, onCall: []int{5, 12}, leave: []int{20}}

		sel, err := sf.selection()
		require.NoError(t, err)

		assert.Equal(t, 2025, sel.Year)
		assert.Equal(t, time.August, sel.Month)
		assert.True(t, sel.OnCall["2025/8/5"])
		assert.True(t, sel.OnCall["2025/8/12"])
		assert.True(t, sel.Leave["2025/8/20"])
		assert.Empty(t, sel.Overtime)
	})

	t.Run("rejects an out-of-range month", func(t *testing.T) {
		sf := selectionFlags{year: 2025, month: 13}
		_, err := sf.selection()
		require.Error(t, err)
	})
}

func TestPersistedSelectionRoundTrip(t *testing.T) {
	ps := persistedSelection{Year: 2025, Month: 8, OnCall: []int{5}, Leave: []int{20}, Overtime: []int{7}}
	sf := ps.flags()

	assert.Equal(t, 2025, sf.year)
	assert.Equal(t, 8, sf.month)
	assert.Equal(t, []int{5}, sf.onCall)
	assert.Equal(t, []int{20}, sf.leave)
	assert.Equal(t, []int{7}, sf.overtime)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"fill", "remove", "preview"} {
		assert.True(t, names[want], "command %q not registered", want)
	}
}

func TestFillCmdFlags(t *testing.T) {
	fill := newFillCmd()
	for _, name := range []string{"year", "month", "oncall", "leave", "overtime", "resume", "headless", "url"} {
		assert.NotNil(t, fill.Flags().Lookup(name), "flag %q missing", name)
	}
}
