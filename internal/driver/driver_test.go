package driver

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/icheng/autopunch/internal/config"
	"github.com/icheng/autopunch/internal/messaging"
	"github.com/icheng/autopunch/internal/schedule"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- scripted fake page ---

var (
	reSelectsIdx  = regexp.MustCompile(`selects\[(\d+)\]`)
	reSelectedIdx = regexp.MustCompile(`selectedIndex = (\d+)`)
	reTriggersIdx = regexp.MustCompile(`triggers\[(\d+)\]`)
	reOptionIdx   = regexp.MustCompile(`optionNodes\[(\d+)\]`)
	reDayLabel    = regexp.MustCompile(`\d{4}/\d{2}/\d{2}`)
)

// fakePage simulates the attendance page: a row table, an edit dialog with
// dropdowns, an optional date picker, and submit/delete controls. State
// transitions happen on the same clicks the real page reacts to.
type fakePage struct {
	mu sync.Mutex

	rowFailures   int // row lookups that report absent before the row resolves
	editMissing   bool
	dialogOpen    bool
	nativeSelects map[int][]string
	overlays      map[int][]string
	openOverlay   int
	dialogDate    string
	pickerOpen    bool
	submitStatus  string
	deleteStatus  string
	cancelable    bool

	selected    map[int]string
	overlayPick []string
	pendingOpt  string
	pendingIdx  int
	monthNavs   int
	dayLabels   []string
	escapes     int
	clicks      []string

	rowEvals     int
	overlayEvals int

	onRowEval func(n int)
}

func newFakePage() *fakePage {
	return &fakePage{
		openOverlay:  -1,
		submitStatus: "ok",
		deleteStatus: "enabled",
		selected:     map[int]string{},
	}
}

func hourOptions() []string {
	opts := make([]string, 24)
	for h := range opts {
		opts[h] = fmt.Sprintf("%02d", h)
	}
	return opts
}

func minuteOptions() []string {
	return []string{"00", "30"}
}

func shiftOptions() []string {
	return []string{
		"C02：8-17半(無休)",
		"W02：六8-12",
		"DW2：平值8-隔日12",
		"DW6：假8-隔日12",
		"N：8-17半(午休1.5h)",
	}
}

// fillReadyPage is a page where every control resolves on the first attempt
// through native selection elements.
func fillReadyPage(dialogDate string) *fakePage {
	f := newFakePage()
	f.dialogDate = dialogDate
	f.nativeSelects = map[int][]string{
		0: {"內科部"},
		1: shiftOptions(),
		2: hourOptions(),
		3: minuteOptions(),
		4: hourOptions(),
		5: minuteOptions(),
	}
	return f
}

func setOut(t *testing.T, out, value any) {
	t.Helper()
	raw, err := jsoniter.Marshal(value)
	require.NoError(t, err)
	require.NoError(t, jsoniter.Unmarshal(raw, out))
}

func mustIdx(t *testing.T, re *regexp.Regexp, expr string) int {
	t.Helper()
	m := re.FindStringSubmatch(expr)
	require.NotNil(t, m, "no index in script: %s", re)
	n, err := strconv.Atoi(m[1])
	require.NoError(t, err)
	return n
}

type fakeDOM struct {
	t    *testing.T
	page *fakePage
}

func (f *fakeDOM) Eval(_ context.Context, expr string, out any) error {
	p := f.page
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case strings.Contains(expr, "const day ="):
		p.rowEvals++
		if p.onRowEval != nil {
			p.onRowEval(p.rowEvals)
		}
		if p.rowFailures > 0 {
			p.rowFailures--
			setOut(f.t, out, false)
		} else {
			setOut(f.t, out, true)
		}
	case strings.Contains(expr, "'edit')"):
		setOut(f.t, out, !p.editMissing)
	case strings.Contains(expr, "anyOpen"):
		setOut(f.t, out, p.dialogOpen)
	case strings.Contains(expr, "'dialog')"):
		setOut(f.t, out, p.dialogOpen)
	case strings.Contains(expr, "selectedIndex ="):
		idx := mustIdx(f.t, reSelectsIdx, expr)
		opt := mustIdx(f.t, reSelectedIdx, expr)
		opts := p.nativeSelects[idx]
		require.Less(f.t, opt, len(opts), "option index out of range for select %d", idx)
		p.selected[idx] = opts[opt]
		setOut(f.t, out, true)
	case strings.Contains(expr, "sel.options).map"):
		idx := mustIdx(f.t, reSelectsIdx, expr)
		opts, ok := p.nativeSelects[idx]
		setOut(f.t, out, map[string]any{"found": ok, "options": opts})
	case strings.Contains(expr, "'picker-trigger')"):
		setOut(f.t, out, true)
	case strings.Contains(expr, "'trigger')"):
		idx := mustIdx(f.t, reTriggersIdx, expr)
		_, ok := p.overlays[idx]
		if ok {
			p.pendingIdx = idx
		}
		setOut(f.t, out, ok)
	case strings.Contains(expr, "'option')"):
		idx := mustIdx(f.t, reOptionIdx, expr)
		opts := p.overlays[p.openOverlay]
		require.Less(f.t, idx, len(opts))
		p.pendingOpt = opts[idx]
		setOut(f.t, out, true)
	case strings.Contains(expr, "optionNodes"):
		p.overlayEvals++
		opts := p.overlays[p.openOverlay]
		setOut(f.t, out, map[string]any{"found": p.openOverlay >= 0, "options": opts})
	case strings.Contains(expr, `\d{4}[`):
		setOut(f.t, out, p.dialogDate)
	case strings.Contains(expr, "panelReady"):
		setOut(f.t, out, p.pickerOpen)
	case strings.Contains(expr, "'month-next')"):
		setOut(f.t, out, true)
	case strings.Contains(expr, "'day')"):
		label := reDayLabel.FindString(expr)
		require.NotEmpty(f.t, label)
		p.dayLabels = append(p.dayLabels, label)
		setOut(f.t, out, true)
	case strings.Contains(expr, "'submit')"):
		setOut(f.t, out, p.submitStatus)
	case strings.Contains(expr, "'delete')"):
		setOut(f.t, out, p.deleteStatus)
	case strings.Contains(expr, "'cancel')"):
		setOut(f.t, out, p.cancelable)
	default:
		f.t.Fatalf("unexpected script: %s", expr)
	}
	return nil
}

func (f *fakeDOM) Click(_ context.Context, selector string) error {
	p := f.page
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, selector)

	switch selector {
	case selEdit:
		p.dialogOpen = true
	case selTrigger:
		p.openOverlay = p.pendingIdx
	case selOption:
		p.overlayPick = append(p.overlayPick, p.pendingOpt)
		p.openOverlay = -1
	case selPickerTrigger:
		p.pickerOpen = true
	case selMonthNext:
		p.monthNavs++
	case selDayCell:
		p.pickerOpen = false
	case selSubmit, selCancel, selDelete:
		p.dialogOpen = false
	}
	return nil
}

func (f *fakeDOM) PressEscape(context.Context) error {
	p := f.page
	p.mu.Lock()
	defer p.mu.Unlock()
	p.escapes++
	p.dialogOpen = false
	return nil
}

// --- recording notifier ---

type recordingNotifier struct {
	mu        sync.Mutex
	logs      []messaging.LogMessage
	progress  []messaging.ProgressUpdate
	completes []messaging.RunComplete
}

func (n *recordingNotifier) Log(message string, severity messaging.Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.logs = append(n.logs, messaging.LogMessage{Message: message, Severity: severity, Timestamp: time.Now()})
}

func (n *recordingNotifier) Progress(current, total int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, messaging.ProgressUpdate{Current: current, Total: total})
}

func (n *recordingNotifier) Complete(outcome messaging.RunComplete) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completes = append(n.completes, outcome)
}

func (n *recordingNotifier) logsWith(severity messaging.Severity) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var msgs []string
	for _, l := range n.logs {
		if l.Severity == severity {
			msgs = append(msgs, l.Message)
		}
	}
	return msgs
}

// --- helpers ---

func testDriverConfig() config.DriverConfig {
	return config.DriverConfig{
		MaxAttempts:   3,
		RetryDelay:    2 * time.Millisecond,
		ItemDelay:     time.Millisecond,
		DialogTimeout: 200 * time.Millisecond,
		TableTimeout:  200 * time.Millisecond,
		PollInterval:  time.Millisecond,
		SettleDelay:   0,
		SubmitWait:    200 * time.Millisecond,
	}
}

func newTestDriver(t *testing.T, page *fakePage, cfg config.DriverConfig) (*Driver, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	d := New(&fakeDOM{t: t, page: page}, cfg, notifier, zap.NewNop())
	return d, notifier
}

func item(day int, dateStr, code string, overtime bool) schedule.WorkItem {
	return schedule.WorkItem{Date: day, DateStr: dateStr, ShiftCode: code, IsOvertime: overtime}
}

// --- tests ---

func TestRun_SingleOvernightItem(t *testing.T) {
	page := fillReadyPage("2025/08/05")
	d, notifier := newTestDriver(t, page, testDriverConfig())

	err := d.Run(context.Background(), []schedule.WorkItem{item(5, "2025/8/5", "DW2", false)})
	require.NoError(t, err)

	assert.Equal(t, PhaseCompleted, d.Phase())
	assert.Equal(t, 1, d.Cursor())
	assert.Equal(t, []messaging.ProgressUpdate{{Current: 1, Total: 1}}, notifier.progress)
	require.Len(t, notifier.completes, 1)
	assert.True(t, notifier.completes[0].Success)

	assert.Equal(t, "DW2：平值8-隔日12", page.selected[1])
	assert.Equal(t, "12", page.selected[4])
	assert.Equal(t, "00", page.selected[5])
	assert.Equal(t, []string{"2025/08/06"}, page.dayLabels)
	assert.Zero(t, page.monthNavs)
	assert.Zero(t, page.overlayEvals, "native fast path must not poll overlay options")
	assert.False(t, page.dialogOpen)
}

func TestRun_DayShiftSkipsDatePicker(t *testing.T) {
	page := fillReadyPage("2025/08/04")
	d, _ := newTestDriver(t, page, testDriverConfig())

	err := d.Run(context.Background(), []schedule.WorkItem{item(4, "2025/8/4", "C02", false)})
	require.NoError(t, err)

	assert.Empty(t, page.dayLabels)
	assert.Equal(t, "17", page.selected[4])
	assert.Equal(t, "30", page.selected[5])
}

func TestRun_OvertimeOverride(t *testing.T) {
	t.Run("day shift uses the late checkout", func(t *testing.T) {
		page := fillReadyPage("2025/08/04")
		d, _ := newTestDriver(t, page, testDriverConfig())

		err := d.Run(context.Background(), []schedule.WorkItem{item(4, "2025/8/4", "C02", true)})
		require.NoError(t, err)
		assert.Equal(t, "20", page.selected[4])
		assert.Equal(t, "00", page.selected[5])
	})

	t.Run("other shifts are unaffected", func(t *testing.T) {
		page := fillReadyPage("2025/08/05")
		d, _ := newTestDriver(t, page, testDriverConfig())

		err := d.Run(context.Background(), []schedule.WorkItem{item(5, "2025/8/5", "DW2", true)})
		require.NoError(t, err)
		assert.Equal(t, "12", page.selected[4])
	})
}

func TestRun_OvernightMonthRollover(t *testing.T) {
	page := fillReadyPage("2025/01/31")
	d, _ := newTestDriver(t, page, testDriverConfig())

	err := d.Run(context.Background(), []schedule.WorkItem{item(31, "2025/1/31", "DW2", false)})
	require.NoError(t, err)

	assert.Equal(t, 1, page.monthNavs, "month navigation must happen exactly once")
	assert.Equal(t, []string{"2025/02/01"}, page.dayLabels)
}

func TestRun_OverlayDropdownFallback(t *testing.T) {
	page := newFakePage()
	page.dialogDate = "2025/08/04"
	page.overlays = map[int][]string{
		0: {"內科部"},
		1: shiftOptions(),
		2: hourOptions(),
		3: minuteOptions(),
		4: hourOptions(),
		5: minuteOptions(),
	}
	d, _ := newTestDriver(t, page, testDriverConfig())

	err := d.Run(context.Background(), []schedule.WorkItem{item(4, "2025/8/4", "C02", false)})
	require.NoError(t, err)

	assert.Equal(t, []string{"C02：8-17半(無休)", "17", "30"}, page.overlayPick)
	assert.Positive(t, page.overlayEvals)
}

func TestRun_RejectsSecondStart(t *testing.T) {
	page := fillReadyPage("2025/08/04")
	started := make(chan struct{})
	release := make(chan struct{})
	page.onRowEval = func(n int) {
		if n == 1 {
			close(started)
			<-release
		}
	}
	d, notifier := newTestDriver(t, page, testDriverConfig())
	items := []schedule.WorkItem{item(4, "2025/8/4", "C02", false)}

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background(), items) }()
	<-started

	require.ErrorIs(t, d.Run(context.Background(), items), ErrRunInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, d.Cursor())
	assert.Len(t, notifier.completes, 1)
}

func TestRun_RetryThenSucceed(t *testing.T) {
	cfg := testDriverConfig()
	cfg.TableTimeout = 0 // one row lookup per attempt
	page := fillReadyPage("2025/08/04")
	page.rowFailures = 2
	d, notifier := newTestDriver(t, page, cfg)

	err := d.Run(context.Background(), []schedule.WorkItem{item(4, "2025/8/4", "C02", false)})
	require.NoError(t, err)

	assert.Equal(t, 3, page.rowEvals)
	assert.Len(t, notifier.logsWith(messaging.SeverityWarning), 2, "one retry narration per failed attempt")
	assert.Empty(t, notifier.logsWith(messaging.SeverityError))
	require.Len(t, notifier.completes, 1)
	assert.True(t, notifier.completes[0].Success)
}

func TestRun_ExhaustedItemIsSkipped(t *testing.T) {
	cfg := testDriverConfig()
	cfg.TableTimeout = 0
	page := fillReadyPage("2025/08/04")
	page.rowFailures = 3 // consumes every attempt of the first item
	d, notifier := newTestDriver(t, page, cfg)

	items := []schedule.WorkItem{
		item(4, "2025/8/4", "C02", false),
		item(5, "2025/8/5", "C02", false),
	}
	err := d.Run(context.Background(), items)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")

	assert.Equal(t, PhaseFailed, d.Phase())
	assert.Equal(t, 2, d.Cursor(), "failed item must still advance the cursor")
	assert.Equal(t, []messaging.ProgressUpdate{{Current: 1, Total: 2}, {Current: 2, Total: 2}}, notifier.progress)
	assert.Len(t, notifier.logsWith(messaging.SeverityError), 1)
	require.Len(t, notifier.completes, 1)
	assert.False(t, notifier.completes[0].Success)
}

func TestStopAndResume(t *testing.T) {
	page := fillReadyPage("2025/08/04")
	d, notifier := newTestDriver(t, page, testDriverConfig())
	page.onRowEval = func(n int) {
		if n == 2 { // first lookup of the second item
			d.Stop()
		}
	}

	items := []schedule.WorkItem{
		item(4, "2025/8/4", "C02", false),
		item(5, "2025/8/5", "C02", false),
	}
	err := d.Run(context.Background(), items)
	require.ErrorIs(t, err, ErrStopped)

	assert.Equal(t, PhaseStopped, d.Phase())
	assert.Equal(t, 1, d.Cursor(), "resume must re-enter at the interrupted item")
	assert.Equal(t, []messaging.ProgressUpdate{{Current: 1, Total: 2}}, notifier.progress)
	require.Len(t, notifier.completes, 1)
	assert.False(t, notifier.completes[0].Success)
	assert.Equal(t, "user stopped", notifier.completes[0].Error)

	page.onRowEval = nil
	require.NoError(t, d.Resume(context.Background()))

	assert.Equal(t, PhaseCompleted, d.Phase())
	assert.Equal(t, 2, d.Cursor())
	assert.Equal(t, []messaging.ProgressUpdate{{Current: 1, Total: 2}, {Current: 2, Total: 2}}, notifier.progress)
	require.Len(t, notifier.completes, 2)
	assert.True(t, notifier.completes[1].Success)
}

func TestRestore(t *testing.T) {
	items := []schedule.WorkItem{
		item(4, "2025/8/4", "C02", false),
		item(5, "2025/8/5", "C02", false),
	}

	t.Run("resumes from the persisted cursor", func(t *testing.T) {
		page := fillReadyPage("2025/08/05")
		d, notifier := newTestDriver(t, page, testDriverConfig())

		require.NoError(t, d.Restore(items, 1, ModeFill))
		assert.Equal(t, PhaseStopped, d.Phase())

		require.NoError(t, d.Resume(context.Background()))
		assert.Equal(t, 1, page.rowEvals, "only the remaining item is processed")
		assert.Equal(t, []messaging.ProgressUpdate{{Current: 2, Total: 2}}, notifier.progress)
	})

	t.Run("rejects an out-of-range cursor", func(t *testing.T) {
		d, _ := newTestDriver(t, newFakePage(), testDriverConfig())
		require.Error(t, d.Restore(items, 3, ModeFill))
	})

	t.Run("rejects a non-idle driver", func(t *testing.T) {
		page := fillReadyPage("2025/08/04")
		d, _ := newTestDriver(t, page, testDriverConfig())
		require.NoError(t, d.Run(context.Background(), items[:1]))
		require.Error(t, d.Restore(items, 0, ModeFill))
	})
}

func TestStop_WaitPrimitivesReturnSentinels(t *testing.T) {
	d, _ := newTestDriver(t, newFakePage(), testDriverConfig())
	d.Stop()

	start := time.Now()
	assert.False(t, d.waitFor(context.Background(), time.Minute, func(context.Context) bool { return true }))
	assert.False(t, d.sleepInterruptible(context.Background(), time.Minute))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRun_SubmitControlGuards(t *testing.T) {
	for _, status := range []string{"disabled", "outside", "missing"} {
		t.Run(status, func(t *testing.T) {
			page := fillReadyPage("2025/08/04")
			page.submitStatus = status
			d, notifier := newTestDriver(t, page, testDriverConfig())

			err := d.Run(context.Background(), []schedule.WorkItem{item(4, "2025/8/4", "C02", false)})
			require.Error(t, err)
			assert.Equal(t, PhaseFailed, d.Phase())
			require.Len(t, notifier.completes, 1)
			assert.False(t, notifier.completes[0].Success)
		})
	}
}

func TestRunRemoval(t *testing.T) {
	t.Run("deletes an existing record", func(t *testing.T) {
		page := fillReadyPage("2025/08/04")
		d, notifier := newTestDriver(t, page, testDriverConfig())

		err := d.RunRemoval(context.Background(), []schedule.WorkItem{item(4, "2025/8/4", "C02", false)})
		require.NoError(t, err)

		assert.Contains(t, page.clicks, selDelete)
		require.Len(t, notifier.completes, 1)
		assert.True(t, notifier.completes[0].Success)
		assert.True(t, notifier.completes[0].IsRemoval)
	})

	t.Run("skips a day without a record", func(t *testing.T) {
		page := fillReadyPage("2025/08/04")
		page.deleteStatus = "disabled"
		d, notifier := newTestDriver(t, page, testDriverConfig())

		err := d.RunRemoval(context.Background(), []schedule.WorkItem{item(4, "2025/8/4", "C02", false)})
		require.NoError(t, err)

		assert.NotContains(t, page.clicks, selDelete)
		assert.Empty(t, notifier.logsWith(messaging.SeverityError))
		require.Len(t, notifier.completes, 1)
		assert.True(t, notifier.completes[0].Success)
	})
}

func TestRun_EmptyList(t *testing.T) {
	d, notifier := newTestDriver(t, newFakePage(), testDriverConfig())
	require.NoError(t, d.Run(context.Background(), nil))
	assert.Equal(t, PhaseCompleted, d.Phase())
	require.Len(t, notifier.completes, 1)
	assert.True(t, notifier.completes[0].Success)
}
