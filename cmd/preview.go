package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/icheng/autopunch/internal/schedule"
)

var weekdayNames = [...]string{"日", "一", "二", "三", "四", "五", "六"}

// newPreviewCmd creates and configures the `preview` command.
func newPreviewCmd() *cobra.Command {
	var sf selectionFlags

	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "Shows the generated month plan without touching the browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := sf.selection()
			if err != nil {
				return err
			}
			renderPlan(schedule.Generate(sel, time.Now()))
			return nil
		},
	}

	sf.register(previewCmd)
	return previewCmd
}

func renderPlan(plan []schedule.DayPlan) {
	color.New(color.Bold).Printf("%-12s %-4s %-26s %-14s %s\n", "日期", "星期", "班別", "時間", "備註")

	counts := map[schedule.DayStatus]int{}
	for _, d := range plan {
		counts[d.Status]++
		line := fmt.Sprintf("%-12s 週%-3s %-26s %-14s %s",
			d.DateStr, weekdayNames[d.Weekday], planShift(d), planTimes(d), d.Reason)

		switch d.Status {
		case schedule.StatusOnCall:
			color.Cyan(line)
		case schedule.StatusOvertime:
			color.Magenta(line)
		case schedule.StatusLeave:
			color.Yellow(line)
		case schedule.StatusSkip:
			color.New(color.Faint).Println(line)
		default:
			fmt.Println(line)
		}
	}

	fmt.Println()
	fmt.Printf("上班 %d 天，值班 %d 天，加班 %d 天，請假 %d 天，略過 %d 天\n",
		counts[schedule.StatusRegular], counts[schedule.StatusOnCall], counts[schedule.StatusOvertime],
		counts[schedule.StatusLeave], counts[schedule.StatusSkip])
}

func planShift(d schedule.DayPlan) string {
	if d.ShiftLabel == "" {
		return "-"
	}
	return d.ShiftLabel
}

func planTimes(d schedule.DayPlan) string {
	if d.Times == nil {
		return "-"
	}
	if d.Times.IsOvernight {
		return fmt.Sprintf("%s-翌日%s", d.Times.CheckIn, d.EndTime)
	}
	return fmt.Sprintf("%s-%s", d.Times.CheckIn, d.EndTime)
}
