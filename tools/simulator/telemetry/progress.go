package telemetry

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

const (
	progressUpdateFrequency = 100 * time.Millisecond
)

// ProgressTelemetry renders one progress tracker per namespace, such as
// blocks mined or upkeeps registered.
type ProgressTelemetry struct {
	mu       sync.Mutex
	writer   progress.Writer
	trackers map[string]*progress.Tracker
}

func NewProgressTelemetry(wOutput io.Writer) *ProgressTelemetry {
	writer := progress.NewWriter()

	writer.SetOutputWriter(wOutput)
	writer.SetAutoStop(false)
	writer.SetTrackerLength(25)
	writer.SetMessageWidth(32)
	writer.SetStyle(progress.StyleDefault)
	writer.SetTrackerPosition(progress.PositionRight)
	writer.SetUpdateFrequency(progressUpdateFrequency)

	writer.Style().Options.PercentFormat = "%4.1f%%"
	writer.Style().Visibility.Percentage = true
	writer.Style().Visibility.Time = true
	writer.Style().Visibility.Value = true

	return &ProgressTelemetry{
		writer:   writer,
		trackers: make(map[string]*progress.Tracker),
	}
}

func (t *ProgressTelemetry) Type() CollectorType {
	return ProgressType
}

func (t *ProgressTelemetry) Register(namespace string, total int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.trackers[namespace]; exists {
		return fmt.Errorf("progress namespace %s already registered", namespace)
	}

	tracker := &progress.Tracker{
		Message: namespace,
		Total:   total,
		Units:   progress.UnitsDefault,
	}

	t.trackers[namespace] = tracker
	t.writer.AppendTracker(tracker)

	return nil
}

func (t *ProgressTelemetry) Increment(namespace string, count int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tracker, exists := t.trackers[namespace]; exists {
		tracker.Increment(count)
	}
}

// Value returns the current value of a namespace tracker.
func (t *ProgressTelemetry) Value(namespace string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tracker, exists := t.trackers[namespace]; exists {
		return tracker.Value()
	}

	return 0
}

func (t *ProgressTelemetry) Start() {
	go t.writer.Render()
}

// Close marks unfinished trackers as errored and stops rendering.
func (t *ProgressTelemetry) Close() error {
	t.mu.Lock()

	for _, tracker := range t.trackers {
		if !tracker.IsDone() {
			tracker.MarkAsErrored()
		}
	}

	t.mu.Unlock()

	// allow the final state to render
	time.Sleep(2 * progressUpdateFrequency)

	t.writer.Stop()

	return nil
}
