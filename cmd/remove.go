package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/icheng/autopunch/internal/config"
	"github.com/icheng/autopunch/internal/driver"
	"github.com/icheng/autopunch/internal/observability"
	"github.com/icheng/autopunch/internal/schedule"
	"github.com/icheng/autopunch/internal/statestore"
)

// newRemoveCmd creates and configures the `remove` command.
func newRemoveCmd() *cobra.Command {
	var year, month, from, to int

	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Removes existing attendance records for a range of days",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			if month < 1 || month > 12 {
				return fmt.Errorf("month must be between 1 and 12, got %d", month)
			}
			if from < 1 || to > 31 || from > to {
				return fmt.Errorf("invalid day range %d-%d", from, to)
			}

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

			items := schedule.RangeItems(year, time.Month(month), from, to)
			return executeRun(ctx, cfg, logger, st, items, driver.ModeRemove, 0)
		},
	}

	now := time.Now()
	removeCmd.Flags().IntVar(&year, "year", now.Year(), "target year")
	removeCmd.Flags().IntVar(&month, "month", int(now.Month()), "target month (1-12)")
	removeCmd.Flags().IntVar(&from, "from", 0, "first day of the range (required)")
	removeCmd.Flags().IntVar(&to, "to", 0, "last day of the range (required)")
	_ = removeCmd.MarkFlagRequired("from")
	_ = removeCmd.MarkFlagRequired("to")
	bindBrowserFlags(removeCmd)
	return removeCmd
}
