// Package driver implements the retrying automation loop that fills the
// attendance form: it consumes an ordered list of work items, processes them
// sequentially against the live document with bounded retry per item, and
// supports cooperative stop and resume.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/icheng/autopunch/internal/config"
	"github.com/icheng/autopunch/internal/messaging"
	"github.com/icheng/autopunch/internal/schedule"
)

// DOM is the document access the driver needs. The production implementation
// is backed by a live browser tab.
type DOM interface {
	Eval(ctx context.Context, expr string, out any) error
	Click(ctx context.Context, selector string) error
	PressEscape(ctx context.Context) error
}

// Mode distinguishes a fill run from a remove-records run.
type Mode string

const (
	ModeFill   Mode = "fill"
	ModeRemove Mode = "remove"
)

func (m Mode) describe() string {
	if m == ModeRemove {
		return "移除打卡紀錄"
	}
	return "自動打卡"
}

// Phase is the run state machine: Idle → Running → {Completed, Failed,
// Stopped}; Stopped transitions back to Running via Resume.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseCompleted
	PhaseFailed
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	case PhaseStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Driver executes work items sequentially against the live document.
type Driver struct {
	dom      DOM
	cfg      config.DriverConfig
	notifier messaging.Notifier
	logger   *zap.Logger

	mu      sync.Mutex
	phase   Phase
	mode    Mode
	items   []schedule.WorkItem
	cursor  int
	stopped bool
	stopCh  chan struct{}
}

// New creates a driver bound to a document and a notifier.
func New(dom DOM, cfg config.DriverConfig, notifier messaging.Notifier, logger *zap.Logger) *Driver {
	return &Driver{
		dom:      dom,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger.Named("driver"),
		stopCh:   make(chan struct{}),
	}
}

// Run executes a fill run over the given items. It blocks until the run
// reaches a terminal phase. A second Run while one is active is rejected
// with ErrRunInProgress and does not disturb the active run. A user stop is
// reported as ErrStopped, which callers must not treat as a failure.
func (d *Driver) Run(ctx context.Context, items []schedule.WorkItem) error {
	return d.start(ctx, items, ModeFill)
}

// RunRemoval executes a remove-records run over the given items.
func (d *Driver) RunRemoval(ctx context.Context, items []schedule.WorkItem) error {
	return d.start(ctx, items, ModeRemove)
}

func (d *Driver) start(ctx context.Context, items []schedule.WorkItem, mode Mode) error {
	d.mu.Lock()
	if d.phase == PhaseRunning {
		d.mu.Unlock()
		d.logger.Warn("start requested while a run is active")
		return ErrRunInProgress
	}
	d.phase = PhaseRunning
	d.mode = mode
	d.items = items
	d.cursor = 0
	d.stopped = false
	d.stopCh = make(chan struct{})
	d.mu.Unlock()

	return d.runLoop(ctx)
}

// Stop requests cooperative cancellation. Every wait and sleep point
// observes it and unwinds without raising. Safe to call at any time,
// idempotent.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	close(d.stopCh)
}

// Resume continues a stopped run from the stored cursor. The item in
// progress at stop time restarts from its first step.
func (d *Driver) Resume(ctx context.Context) error {
	d.mu.Lock()
	if d.phase != PhaseStopped {
		phase := d.phase
		d.mu.Unlock()
		return fmt.Errorf("cannot resume from phase %s", phase)
	}
	d.phase = PhaseRunning
	d.stopped = false
	d.stopCh = make(chan struct{})
	d.mu.Unlock()

	d.forceCloseDialog(ctx)
	return d.runLoop(ctx)
}

// Restore primes an idle driver with a previously interrupted run so a new
// process can Resume it from the persisted cursor.
func (d *Driver) Restore(items []schedule.WorkItem, cursor int, mode Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase != PhaseIdle {
		return fmt.Errorf("cannot restore into phase %s", d.phase)
	}
	if cursor < 0 || cursor > len(items) {
		return fmt.Errorf("cursor %d out of range for %d items", cursor, len(items))
	}
	d.phase = PhaseStopped
	d.mode = mode
	d.items = items
	d.cursor = cursor
	return nil
}

// Phase returns the current run phase.
func (d *Driver) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// Cursor returns the index of the next item to process.
func (d *Driver) Cursor() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor
}

// Total returns the length of the current work item list.
func (d *Driver) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

func (d *Driver) interrupted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

func (d *Driver) stopChan() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopCh
}

func (d *Driver) narrate(severity messaging.Severity, message string) {
	d.notifier.Log(message, severity)
}

// runLoop drives the item list from the current cursor to the end. One
// item's exhausted failure is logged and skipped; the run continues with the
// next item.
func (d *Driver) runLoop(ctx context.Context) error {
	d.mu.Lock()
	items, mode, start := d.items, d.mode, d.cursor
	d.mu.Unlock()
	total := len(items)
	failed := 0

	if start == 0 {
		d.narrate(messaging.SeverityInfo, fmt.Sprintf("開始%s，共 %d 天", mode.describe(), total))
	} else {
		d.narrate(messaging.SeverityInfo, fmt.Sprintf("從第 %d 項繼續%s，共 %d 天", start+1, mode.describe(), total))
	}

	for i := start; i < total; i++ {
		if d.interrupted(ctx) {
			return d.finishStopped(mode)
		}
		item := items[i]

		err := d.processWithRetry(ctx, item, mode)
		if errors.Is(err, ErrStopped) || d.interrupted(ctx) {
			return d.finishStopped(mode)
		}
		if err != nil {
			failed++
			d.logger.Error("work item failed after exhausting retries",
				zap.Int("day", item.Date),
				zap.String("shift", item.ShiftCode),
				zap.Error(err),
			)
			d.narrate(messaging.SeverityError, fmt.Sprintf("%s 處理失敗，已略過：%v", item.DateStr, err))
		} else {
			d.narrate(messaging.SeveritySuccess, fmt.Sprintf("%s 處理完成", item.DateStr))
		}

		d.mu.Lock()
		d.cursor = i + 1
		d.mu.Unlock()
		d.notifier.Progress(i+1, total)

		if i+1 < total && !d.sleepInterruptible(ctx, d.cfg.ItemDelay) {
			return d.finishStopped(mode)
		}
	}

	d.mu.Lock()
	if failed == 0 {
		d.phase = PhaseCompleted
	} else {
		d.phase = PhaseFailed
	}
	d.mu.Unlock()

	if failed == 0 {
		d.narrate(messaging.SeveritySuccess, "全部項目處理完成")
		d.notifier.Complete(messaging.RunComplete{Success: true, IsRemoval: mode == ModeRemove})
		return nil
	}
	d.notifier.Complete(messaging.RunComplete{
		Success:   false,
		Error:     fmt.Sprintf("%d/%d 天處理失敗", failed, total),
		IsRemoval: mode == ModeRemove,
	})
	return fmt.Errorf("%d of %d work items failed", failed, total)
}

func (d *Driver) finishStopped(mode Mode) error {
	d.mu.Lock()
	d.phase = PhaseStopped
	d.mu.Unlock()
	d.narrate(messaging.SeverityWarning, "使用者已停止執行")
	d.notifier.Complete(messaging.RunComplete{
		Success:   false,
		Error:     "user stopped",
		IsRemoval: mode == ModeRemove,
	})
	return ErrStopped
}

// processWithRetry wraps one item in the bounded retry loop. Stray dialogs
// are force-closed between attempts. A stop request short-circuits as a
// permanent outcome.
func (d *Driver) processWithRetry(ctx context.Context, item schedule.WorkItem, mode Mode) error {
	attempt := 0
	operation := func() (struct{}, error) {
		if d.interrupted(ctx) {
			return struct{}{}, backoff.Permanent(ErrStopped)
		}
		attempt++
		var err error
		if mode == ModeRemove {
			err = d.removeItem(ctx, item)
		} else {
			err = d.fillItem(ctx, item)
		}
		if errors.Is(err, ErrStopped) {
			return struct{}{}, backoff.Permanent(ErrStopped)
		}
		return struct{}{}, err
	}
	notify := func(err error, delay time.Duration) {
		d.logger.Warn("attempt failed, retrying",
			zap.Int("day", item.Date),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		d.narrate(messaging.SeverityWarning,
			fmt.Sprintf("%s 第 %d 次嘗試失敗，稍後重試：%v", item.DateStr, attempt, err))
		d.forceCloseDialog(ctx)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(d.cfg.RetryDelay)),
		backoff.WithMaxTries(d.cfg.MaxAttempts),
		backoff.WithNotify(notify),
	)
	return err
}
