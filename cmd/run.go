package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/icheng/autopunch/internal/config"
	"github.com/icheng/autopunch/internal/driver"
	"github.com/icheng/autopunch/internal/messaging"
	"github.com/icheng/autopunch/internal/page"
	"github.com/icheng/autopunch/internal/schedule"
	"github.com/icheng/autopunch/internal/statestore"
)

// selectionFlags collects the per-category day selections shared by the
// schedule-driven commands.
type selectionFlags struct {
	year     int
	month    int
	onCall   []int
	leave    []int
	overtime []int
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	now := time.Now()
	cmd.Flags().IntVar(&f.year, "year", now.Year(), "target year")
	cmd.Flags().IntVar(&f.month, "month", int(now.Month()), "target month (1-12)")
	cmd.Flags().IntSliceVar(&f.onCall, "oncall", nil, "on-call days of month, e.g. 5,12,26")
	cmd.Flags().IntSliceVar(&f.leave, "leave", nil, "leave days of month")
	cmd.Flags().IntSliceVar(&f.overtime, "overtime", nil, "overtime days of month")
}

func (f *selectionFlags) selection() (schedule.Selection, error) {
	if f.month < 1 || f.month > 12 {
		return schedule.Selection{}, fmt.Errorf("month must be between 1 and 12, got %d", f.month)
	}
	month := time.Month(f.month)
	return schedule.Selection{
		Year:     f.year,
		Month:    month,
		OnCall:   daySet(f.year, month, f.onCall),
		Leave:    daySet(f.year, month, f.leave),
		Overtime: daySet(f.year, month, f.overtime),
	}, nil
}

func daySet(year int, month time.Month, days []int) map[string]bool {
	set := make(map[string]bool, len(days))
	for _, d := range days {
		set[schedule.FormatDate(year, month, d)] = true
	}
	return set
}

// persistedSelection is the selection blob stored between runs so an
// interrupted run can be resumed without repeating the flags.
type persistedSelection struct {
	Year     int   `json:"year"`
	Month    int   `json:"month"`
	OnCall   []int `json:"onCall"`
	Leave    []int `json:"leave"`
	Overtime []int `json:"overtime"`
}

func (p persistedSelection) flags() selectionFlags {
	return selectionFlags{
		year:     p.Year,
		month:    p.Month,
		onCall:   p.OnCall,
		leave:    p.Leave,
		overtime: p.Overtime,
	}
}

// bindBrowserFlags registers the browser override flags and wires them into
// viper only when explicitly set, so config file values keep their
// precedence otherwise.
func bindBrowserFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("headless", false, "run the browser headless")
	cmd.Flags().String("url", "", "attendance page URL override")

	existing := cmd.PreRunE
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if existing != nil {
			if err := existing(cmd, args); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("headless") {
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("url") {
			if err := viper.BindPFlag("target.url", cmd.Flags().Lookup("url")); err != nil {
				return err
			}
		}
		return nil
	}
}

// executeRun owns the shared run plumbing: browser session, driver, event
// rendering, and progress persistence. cursor > 0 resumes an interrupted
// run at that index.
func executeRun(ctx context.Context, cfg *config.Config, logger *zap.Logger, st *statestore.Store,
	items []schedule.WorkItem, mode driver.Mode, cursor int) error {

	runID := uuid.New().String()
	logger.Info("starting run",
		zap.String("runId", runID),
		zap.String("mode", string(mode)),
		zap.Int("items", len(items)),
		zap.Int("cursor", cursor),
	)

	session, err := page.NewSession(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to close browser session", zap.Error(err))
		}
	}()

	if err := session.Navigate(ctx, cfg.Target.URL); err != nil {
		return fmt.Errorf("failed to open target page: %w", err)
	}

	bus := messaging.NewBus(64, logger)
	drv := driver.New(session.DOM(), cfg.Driver, bus, logger)

	// A signal on the command context stops the driver cooperatively.
	stopWatch := context.AfterFunc(ctx, drv.Stop)
	defer stopWatch()

	var g errgroup.Group
	g.Go(func() error {
		defer bus.Close()
		if cursor > 0 {
			if err := drv.Restore(items, cursor, mode); err != nil {
				return err
			}
			return drv.Resume(ctx)
		}
		return drv.Run(ctx, items)
	})
	g.Go(func() error {
		for ev := range bus.Events() {
			renderEvent(ev)
			if p, ok := ev.(messaging.ProgressUpdate); ok {
				progress := statestore.Progress{Current: p.Current, Total: p.Total, Mode: string(mode), RunID: runID}
				// Persist with a fresh context so a signal does not lose the cursor.
				if err := st.SaveProgress(context.Background(), progress); err != nil {
					logger.Warn("failed to persist progress", zap.Error(err))
				}
			}
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, driver.ErrStopped) {
		color.Yellow("已停止，可加上 --resume 從第 %d 項繼續", drv.Cursor()+1)
		return nil
	}
	return err
}

func renderEvent(ev messaging.Event) {
	switch e := ev.(type) {
	case messaging.LogMessage:
		printer := color.New(color.FgWhite)
		switch e.Severity {
		case messaging.SeveritySuccess:
			printer = color.New(color.FgGreen)
		case messaging.SeverityWarning:
			printer = color.New(color.FgYellow)
		case messaging.SeverityError:
			printer = color.New(color.FgRed)
		}
		printer.Printf("[%s] %s\n", e.Timestamp.Format("15:04:05"), e.Message)
	case messaging.ProgressUpdate:
		fmt.Printf("進度 %d/%d\n", e.Current, e.Total)
	case messaging.RunComplete:
		if e.Success {
			color.Green("執行完成")
		} else {
			color.Red("執行結束：%s", e.Error)
		}
	}
}
