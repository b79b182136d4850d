package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalTasks is the number of scenes in the run.
	TotalTasks int

	// Workers is the number of parallel workers.
	Workers int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// Label names the run (dataset or destination) for display.
	Label string
}

// Reporter outputs human-readable progress for a download run.
type Reporter struct {
	opts Options

	completedBytes atomic.Int64
	completed      atomic.Int32
	skipped        atomic.Int32
	failed         atomic.Int32
	inProgress     atomic.Int32

	mu         sync.Mutex
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
	stopCh     chan struct{}
	stopped    bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.startTime = time.Now()
	r.lastUpdate = r.startTime

	fmt.Fprintf(r.opts.Output, "[theia] Downloading: %s\n", r.opts.Label)
	fmt.Fprintf(r.opts.Output, "[theia] Scenes: %d | Workers: %d\n",
		r.opts.TotalTasks,
		r.opts.Workers,
	)

	go r.updateLoop()
}

// Stop stops the progress reporter.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
}

// TaskStarted marks a scene as in progress.
func (r *Reporter) TaskStarted() {
	r.inProgress.Add(1)
}

// TaskCompleted marks a scene as completed with the given byte count.
func (r *Reporter) TaskCompleted(bytes int64, skipped bool) {
	if skipped {
		r.skipped.Add(1)
	} else {
		r.completedBytes.Add(bytes)
	}
	r.completed.Add(1)
	r.inProgress.Add(-1)
}

// TaskFailed marks a scene as failed or aborted.
func (r *Reporter) TaskFailed() {
	r.failed.Add(1)
	r.inProgress.Add(-1)
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress line.
func (r *Reporter) printProgress() {
	now := time.Now()
	bytes := r.completedBytes.Load()
	completed := int(r.completed.Load())
	failed := int(r.failed.Load())
	inProgress := int(r.inProgress.Load())

	r.mu.Lock()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(bytes-r.lastBytes) / elapsed
	r.lastUpdate = now
	r.lastBytes = bytes
	r.mu.Unlock()

	pending := r.opts.TotalTasks - completed - failed - inProgress
	if pending < 0 {
		pending = 0
	}

	fmt.Fprintf(r.opts.Output, "\r[theia] Scenes: %d/%d done | %d active | %d pending | %s | %s/s    ",
		completed,
		r.opts.TotalTasks,
		inProgress,
		pending,
		formatBytes(bytes),
		formatBytes(int64(speed)),
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	bytes := r.completedBytes.Load()
	completed := int(r.completed.Load())
	skipped := int(r.skipped.Load())
	failed := int(r.failed.Load())
	duration := time.Since(r.startTime)
	avgSpeed := float64(bytes) / duration.Seconds()

	fmt.Fprintf(r.opts.Output, "\r[theia] Done: %d completed (%d skipped) | %d failed | %s in %s (%s/s)\n",
		completed,
		skipped,
		failed,
		formatBytes(bytes),
		formatDuration(duration),
		formatBytes(int64(avgSpeed)),
	)
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes is exported for use by other packages.
func FormatBytes(b int64) string {
	return formatBytes(b)
}
