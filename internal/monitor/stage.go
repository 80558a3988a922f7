package monitor

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// Snapshot is the resource usage of the current process at one instant.
type Snapshot struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	VMSBytes   uint64  `json:"vms_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"goroutines"`
}

// TakeSnapshot reads the resource usage of the current process.
func TakeSnapshot() (Snapshot, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to get process instance: %w", err)
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to get process memory info: %w", err)
	}
	cpu, err := proc.CPUPercent()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to get process cpu usage: %w", err)
	}
	return Snapshot{
		RSSBytes:   mem.RSS,
		VMSBytes:   mem.VMS,
		CPUPercent: cpu,
		Goroutines: runtime.NumGoroutine(),
	}, nil
}

// StageReport is what a finished stage recorded.
type StageReport struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
	Before   Snapshot      `json:"before"`
	After    Snapshot      `json:"after"`
}

// Monitor times pipeline stages. It is safe for concurrent use, but each
// function returned by Start belongs to one goroutine.
type Monitor struct {
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a monitor. Both arguments may be nil.
func New(metrics *Metrics, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{metrics: metrics, logger: logger.Named("monitor"), now: time.Now}
}

// Metrics returns the metrics the monitor records into, possibly nil.
func (m *Monitor) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

// Start begins timing stage. The returned function ends it and returns the
// stage report; calling it more than once is harmless but only the first
// call records.
func (m *Monitor) Start(stage string) func() StageReport {
	if m == nil {
		return func() StageReport { return StageReport{Stage: stage} }
	}
	before, err := TakeSnapshot()
	if err != nil {
		m.logger.Debug("resource snapshot failed", zap.String("stage", stage), zap.Error(err))
	}
	start := m.now()

	var (
		done   bool
		report StageReport
	)
	return func() StageReport {
		if done {
			return report
		}
		done = true
		elapsed := m.now().Sub(start)
		after, err := TakeSnapshot()
		if err != nil {
			m.logger.Debug("resource snapshot failed", zap.String("stage", stage), zap.Error(err))
		}
		report = StageReport{Stage: stage, Duration: elapsed, Before: before, After: after}

		m.metrics.ObserveStage(stage, elapsed.Seconds())
		if after.RSSBytes > 0 {
			m.metrics.SetResident(after.RSSBytes)
		}
		m.logger.Info("stage finished",
			zap.String("stage", stage),
			zap.Duration("duration", elapsed),
			zap.Uint64("rss_bytes", after.RSSBytes),
			zap.Int64("rss_delta_bytes", int64(after.RSSBytes)-int64(before.RSSBytes)),
			zap.Float64("cpu_percent", after.CPUPercent),
			zap.Int("goroutines", after.Goroutines))
		return report
	}
}
