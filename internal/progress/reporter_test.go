package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is safe for the reporter's background goroutine to write to.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestReporterCounters(t *testing.T) {
	var buf syncBuffer
	r := NewReporter(Options{
		TotalTasks:     4,
		Workers:        2,
		Output:         &buf,
		UpdateInterval: time.Hour, // no periodic output during the test
		Label:          "landsat_tm_c2_l1",
	})

	r.Start()

	r.TaskStarted()
	r.TaskCompleted(1024, false)
	r.TaskStarted()
	r.TaskCompleted(0, true)
	r.TaskStarted()
	r.TaskFailed()

	r.Stop()
	time.Sleep(20 * time.Millisecond) // let the final status flush

	out := buf.String()
	if !strings.Contains(out, "landsat_tm_c2_l1") {
		t.Errorf("output missing label: %q", out)
	}
	if !strings.Contains(out, "2 completed (1 skipped)") {
		t.Errorf("output missing completion counts: %q", out)
	}
	if !strings.Contains(out, "1 failed") {
		t.Errorf("output missing failure count: %q", out)
	}
	if !strings.Contains(out, "1.00 KB") {
		t.Errorf("output missing byte total: %q", out)
	}
}

func TestReporterStopIsIdempotent(t *testing.T) {
	var buf syncBuffer
	r := NewReporter(Options{TotalTasks: 1, Output: &buf, UpdateInterval: time.Hour})
	r.Start()
	r.Stop()
	r.Stop()
}

func TestReporterConcurrentUpdates(t *testing.T) {
	var buf syncBuffer
	r := NewReporter(Options{TotalTasks: 100, Output: &buf, UpdateInterval: time.Hour})
	r.Start()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.TaskStarted()
			if i%10 == 0 {
				r.TaskFailed()
			} else {
				r.TaskCompleted(100, false)
			}
		}(i)
	}
	wg.Wait()
	r.Stop()
	time.Sleep(20 * time.Millisecond)

	if got := r.completed.Load(); got != 90 {
		t.Errorf("completed = %d, want 90", got)
	}
	if got := r.failed.Load(); got != 10 {
		t.Errorf("failed = %d, want 10", got)
	}
	if got := r.completedBytes.Load(); got != 9000 {
		t.Errorf("completedBytes = %d, want 9000", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1 << 20, "1.00 MB"},
		{1 << 30, "1.00 GB"},
		{1 << 40, "1.00 TB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{3725 * time.Second, "1h 2m 5s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
