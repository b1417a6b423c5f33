package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/icheng/autopunch/internal/config"
	"github.com/icheng/autopunch/internal/driver"
	"github.com/icheng/autopunch/internal/observability"
	"github.com/icheng/autopunch/internal/schedule"
	"github.com/icheng/autopunch/internal/statestore"
)

// newFillCmd creates and configures the `fill` command.
func newFillCmd() *cobra.Command {
	var sf selectionFlags
	var resume bool

	fillCmd := &cobra.Command{
		Use:   "fill",
		Short: "Fills attendance records for the selected days of a month",
		Long: `Generates the month plan from the selected on-call, leave and overtime
days, then drives the attendance page to fill one record per working day.
An interrupted run can be continued with --resume, which restores the
selection and cursor persisted during the previous run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			st, err := statestore.Open(cfg.State.Path, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := st.Close(); err != nil {
					logger.Warn("failed to close state store", zap.Error(err))
				}
			}()

			cursor := 0
			if resume {
				var ps persistedSelection
				if err := st.Get(ctx, statestore.KeySelection, &ps); err != nil {
					return fmt.Errorf("no persisted selection to resume from: %w", err)
				}
				sf = ps.flags()

				progress, err := st.LoadProgress(ctx)
				if err != nil && !errors.Is(err, statestore.ErrNotFound) {
					return err
				}
				cursor = progress.Current
			}

			sel, err := sf.selection()
			if err != nil {
				return err
			}

			plan := schedule.Generate(sel, time.Now())
			items := schedule.WorkItems(plan)
			if len(items) == 0 {
				color.Yellow("選擇的月份沒有可處理的日期")
				return nil
			}
			if cursor > len(items) {
				cursor = 0
			}

			if !resume {
				ps := persistedSelection{Year: sf.year, Month: sf.month, OnCall: sf.onCall, Leave: sf.leave, Overtime: sf.overtime}
				if err := st.Put(ctx, statestore.KeySelection, ps); err != nil {
					logger.Warn("failed to persist selection", zap.Error(err))
				}
			}

			return executeRun(ctx, cfg, logger, st, items, driver.ModeFill, cursor)
		},
	}

	sf.register(fillCmd)
	fillCmd.Flags().BoolVar(&resume, "resume", false, "resume the last interrupted run from its stored cursor")
	bindBrowserFlags(fillCmd)
	return fillCmd
}
