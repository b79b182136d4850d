package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gocloud.dev/blob/memblob"

	"github.com/nooodle-soup/Theia/internal/transport"
)

// stubTransport is a scripted Transport. Resolve and Fetch behavior is set
// per test through resolveFn and fetchFn; call counts are tracked per scene.
type stubTransport struct {
	mu           sync.Mutex
	resolveCalls map[string]int
	fetchCalls   map[string]int

	resolveFn func(scene Scene, call int) (*Resolved, error)
	fetchFn   func(url string, call int) (*transport.FetchResponse, error)
}

func newStubTransport() *stubTransport {
	s := &stubTransport{
		resolveCalls: make(map[string]int),
		fetchCalls:   make(map[string]int),
	}
	s.resolveFn = func(scene Scene, call int) (*Resolved, error) {
		return &Resolved{
			URL:      "https://example.com/" + scene.EntityID,
			Filename: scene.EntityID + ".tar.gz",
			Size:     int64(len(contentFor(scene.EntityID))),
		}, nil
	}
	s.fetchFn = func(url string, call int) (*transport.FetchResponse, error) {
		id := url[strings.LastIndex(url, "/")+1:]
		body := contentFor(id)
		return &transport.FetchResponse{
			Body:          io.NopCloser(strings.NewReader(body)),
			ContentLength: int64(len(body)),
		}, nil
	}
	return s
}

func contentFor(id string) string {
	return "archive-bytes-" + id
}

func (s *stubTransport) Resolve(ctx context.Context, scene Scene) (*Resolved, error) {
	s.mu.Lock()
	s.resolveCalls[scene.EntityID]++
	call := s.resolveCalls[scene.EntityID]
	fn := s.resolveFn
	s.mu.Unlock()
	return fn(scene, call)
}

func (s *stubTransport) Fetch(ctx context.Context, url string) (*transport.FetchResponse, error) {
	id := url[strings.LastIndex(url, "/")+1:]
	s.mu.Lock()
	s.fetchCalls[id]++
	call := s.fetchCalls[id]
	fn := s.fetchFn
	s.mu.Unlock()
	return fn(url, call)
}

func (s *stubTransport) fetches(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls[id]
}

func sceneList(n int) []Scene {
	scenes := make([]Scene, n)
	for i := range scenes {
		scenes[i] = Scene{EntityID: fmt.Sprintf("LT05_%03d", i), Dataset: "landsat_tm_c2_l1"}
	}
	return scenes
}

func fastOpts() Options {
	return Options{
		RetryBackoff:    time.Millisecond,
		RetryMaxBackoff: 5 * time.Millisecond,
	}
}

func TestDownloadAllScenes(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	tp := newStubTransport()
	scenes := sceneList(4)

	opts := fastOpts()
	opts.Bucket = bucket
	report, err := Download(context.Background(), tp, scenes, opts)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	if !report.AllCompleted() {
		t.Fatalf("AllCompleted = false: completed=%d failed=%d cancelled=%d",
			report.Completed, report.Failed, report.Cancelled)
	}
	if report.Completed != 4 || report.Failed != 0 || report.Skipped != 0 {
		t.Errorf("counters = %d/%d/%d, want 4/0/0", report.Completed, report.Failed, report.Skipped)
	}

	for _, s := range scenes {
		task := report.Tasks[s.EntityID]
		wantPath := s.EntityID + ".tar.gz"
		if task.Path != wantPath {
			t.Errorf("task %s path = %q, want %q", s.EntityID, task.Path, wantPath)
		}
		data, err := bucket.ReadAll(context.Background(), wantPath)
		if err != nil {
			t.Fatalf("read %s: %v", wantPath, err)
		}
		if string(data) != contentFor(s.EntityID) {
			t.Errorf("content of %s = %q", wantPath, data)
		}
		if task.Bytes != int64(len(data)) {
			t.Errorf("task %s bytes = %d, want %d", s.EntityID, task.Bytes, len(data))
		}
	}
}

func TestDownloadBoundsConcurrency(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	var inflight, highWater atomic.Int32

	tp := newStubTransport()
	base := tp.fetchFn
	tp.fetchFn = func(url string, call int) (*transport.FetchResponse, error) {
		cur := inflight.Add(1)
		for {
			max := highWater.Load()
			if cur <= max || highWater.CompareAndSwap(max, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inflight.Add(-1)
		return base(url, call)
	}

	opts := fastOpts()
	opts.Bucket = bucket
	opts.MaxConcurrency = 3
	report, err := Download(context.Background(), tp, sceneList(10), opts)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !report.AllCompleted() {
		t.Fatalf("completed = %d, want 10", report.Completed)
	}
	if got := highWater.Load(); got > 3 {
		t.Errorf("high-water concurrency = %d, want <= 3", got)
	}
}

func TestDownloadRetriesTransientFailures(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	tp := newStubTransport()
	base := tp.fetchFn
	tp.fetchFn = func(url string, call int) (*transport.FetchResponse, error) {
		if call <= 2 {
			return nil, fmt.Errorf("%w: connection reset", transport.ErrNetwork)
		}
		return base(url, call)
	}

	opts := fastOpts()
	opts.Bucket = bucket
	opts.RetryLimit = 3
	report, err := Download(context.Background(), tp, sceneList(1), opts)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	task := report.Tasks["LT05_000"]
	if task.State != StateCompleted {
		t.Fatalf("state = %s, want completed (err: %v)", task.State, task.Err)
	}
	if task.Retries != 2 {
		t.Errorf("retries = %d, want 2", task.Retries)
	}
	if got := tp.fetches("LT05_000"); got != 3 {
		t.Errorf("fetch calls = %d, want 3", got)
	}
}

func TestDownloadExhaustsRetryLimit(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	tp := newStubTransport()
	tp.fetchFn = func(url string, call int) (*transport.FetchResponse, error) {
		return nil, fmt.Errorf("%w: 503", transport.ErrServer)
	}

	opts := fastOpts()
	opts.Bucket = bucket
	opts.RetryLimit = 2
	report, err := Download(context.Background(), tp, sceneList(1), opts)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	task := report.Tasks["LT05_000"]
	if task.State != StateFailed {
		t.Fatalf("state = %s, want failed", task.State)
	}
	if !errors.Is(task.Err, transport.ErrServer) {
		t.Errorf("task err = %v, want ErrServer", task.Err)
	}
	if task.Retries != 2 {
		t.Errorf("retries = %d, want 2", task.Retries)
	}
	// RetryLimit=2 means 3 total attempts.
	if got := tp.fetches("LT05_000"); got != 3 {
		t.Errorf("fetch calls = %d, want 3", got)
	}
	if report.Failed != 1 || report.Completed != 0 {
		t.Errorf("counters = completed %d failed %d", report.Completed, report.Failed)
	}
}

func TestDownloadPermanentFailureNotRetried(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	tp := newStubTransport()
	tp.resolveFn = func(scene Scene, call int) (*Resolved, error) {
		return nil, fmt.Errorf("%w: DATASET_AUTH", transport.ErrDatasetAuth)
	}

	opts := fastOpts()
	opts.Bucket = bucket
	opts.RetryLimit = 3
	report, err := Download(context.Background(), tp, sceneList(1), opts)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	task := report.Tasks["LT05_000"]
	if task.State != StateFailed {
		t.Fatalf("state = %s, want failed", task.State)
	}
	if task.Retries != 0 {
		t.Errorf("retries = %d, want 0 (permanent failures are not retried)", task.Retries)
	}
	tp.mu.Lock()
	resolves := tp.resolveCalls["LT05_000"]
	tp.mu.Unlock()
	if resolves != 1 {
		t.Errorf("resolve calls = %d, want 1", resolves)
	}
}

func TestDownloadPartialFailureIsolated(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	tp := newStubTransport()
	base := tp.fetchFn
	tp.fetchFn = func(url string, call int) (*transport.FetchResponse, error) {
		if strings.HasSuffix(url, "LT05_001") {
			return nil, transport.ErrNotFound
		}
		return base(url, call)
	}

	opts := fastOpts()
	opts.Bucket = bucket
	report, err := Download(context.Background(), tp, sceneList(3), opts)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	if report.Completed != 2 || report.Failed != 1 {
		t.Errorf("counters = completed %d failed %d, want 2/1", report.Completed, report.Failed)
	}
	if report.Tasks["LT05_001"].State != StateFailed {
		t.Errorf("LT05_001 state = %s, want failed", report.Tasks["LT05_001"].State)
	}
	if report.Tasks["LT05_000"].State != StateCompleted || report.Tasks["LT05_002"].State != StateCompleted {
		t.Error("other scenes should complete despite the failure")
	}
}

func TestDownloadSkipsExistingFile(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	// A previous run already landed this scene.
	content := contentFor("LT05_000")
	if err := bucket.WriteAll(ctx, "LT05_000.tar.gz", []byte(content), nil); err != nil {
		t.Fatalf("seed bucket: %v", err)
	}

	tp := newStubTransport()
	opts := fastOpts()
	opts.Bucket = bucket
	report, err := Download(ctx, tp, sceneList(1), opts)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	task := report.Tasks["LT05_000"]
	if task.State != StateCompleted || !task.Skipped {
		t.Fatalf("state = %s skipped = %v, want completed/skipped", task.State, task.Skipped)
	}
	if task.Bytes != int64(len(content)) {
		t.Errorf("bytes = %d, want %d", task.Bytes, len(content))
	}
	if report.Skipped != 1 || report.Completed != 1 {
		t.Errorf("counters = completed %d skipped %d, want 1/1", report.Completed, report.Skipped)
	}
	if got := tp.fetches("LT05_000"); got != 0 {
		t.Errorf("fetch calls = %d, want 0 (no transfer for a complete file)", got)
	}
}

func TestDownloadForceRetransfers(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	content := contentFor("LT05_000")
	if err := bucket.WriteAll(ctx, "LT05_000.tar.gz", []byte(content), nil); err != nil {
		t.Fatalf("seed bucket: %v", err)
	}

	tp := newStubTransport()
	opts := fastOpts()
	opts.Bucket = bucket
	opts.Force = true
	report, err := Download(ctx, tp, sceneList(1), opts)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	task := report.Tasks["LT05_000"]
	if task.Skipped {
		t.Error("Force run should not skip")
	}
	if task.State != StateCompleted {
		t.Fatalf("state = %s, want completed", task.State)
	}
	if got := tp.fetches("LT05_000"); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

// brokenReader fails mid-stream the way an interrupted connection does.
type brokenReader struct {
	data string
	pos  int
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data)/2 {
		return 0, io.ErrUnexpectedEOF
	}
	n := copy(p, r.data[r.pos:len(r.data)/2])
	r.pos += n
	return n, nil
}

func (r *brokenReader) Close() error { return nil }

func TestDownloadAbortsPartialWrite(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	tp := newStubTransport()
	tp.fetchFn = func(url string, call int) (*transport.FetchResponse, error) {
		return &transport.FetchResponse{
			Body:          &brokenReader{data: contentFor("LT05_000")},
			ContentLength: int64(len(contentFor("LT05_000"))),
		}, nil
	}

	opts := fastOpts()
	opts.Bucket = bucket
	opts.RetryLimit = -1
	report, err := Download(ctx, tp, sceneList(1), opts)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	task := report.Tasks["LT05_000"]
	if task.State != StateFailed {
		t.Fatalf("state = %s, want failed", task.State)
	}
	if !errors.Is(task.Err, transport.ErrNetwork) {
		t.Errorf("task err = %v, want ErrNetwork (read failures are transient)", task.Err)
	}

	// The staged write must have been aborted; nothing lands under the
	// final name.
	exists, err := bucket.Exists(ctx, "LT05_000.tar.gz")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("partial file surfaced under the final name")
	}
}

func TestDownloadCancellation(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	started := make(chan struct{})
	var once sync.Once

	tp := newStubTransport()
	tp.fetchFn = func(url string, call int) (*transport.FetchResponse, error) {
		once.Do(func() { close(started) })
		time.Sleep(50 * time.Millisecond)
		return nil, context.Canceled
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	opts := fastOpts()
	opts.Bucket = bucket
	opts.MaxConcurrency = 2
	report, err := Download(ctx, tp, sceneList(10), opts)
	if err != nil {
		t.Fatalf("Download after cancel: %v", err)
	}

	// Every requested scene has a terminal state; nothing is lost.
	total := report.Completed + report.Failed + report.Cancelled
	if total != 10 {
		t.Errorf("terminal tasks = %d, want 10", total)
	}
	if report.Cancelled == 0 {
		t.Error("expected cancelled tasks after mid-run cancellation")
	}
	for id, task := range report.Tasks {
		if !task.State.Terminal() {
			t.Errorf("task %s state = %s, want terminal", id, task.State)
		}
	}
}

func TestDownloadDuplicateScenesCollapse(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	scenes := []Scene{
		{EntityID: "LT05_000", Dataset: "d"},
		{EntityID: "LT05_000", Dataset: "d"},
		{EntityID: "LT05_001", Dataset: "d"},
	}

	tp := newStubTransport()
	opts := fastOpts()
	opts.Bucket = bucket
	report, err := Download(context.Background(), tp, scenes, opts)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	if len(report.Order) != 2 {
		t.Errorf("unique tasks = %d, want 2", len(report.Order))
	}
	if got := tp.fetches("LT05_000"); got != 1 {
		t.Errorf("fetch calls for duplicate scene = %d, want 1", got)
	}
	if !report.AllCompleted() {
		t.Error("AllCompleted = false")
	}
}

func TestDownloadRequiresBucket(t *testing.T) {
	_, err := Download(context.Background(), newStubTransport(), sceneList(1), Options{})
	if !errors.Is(err, ErrFilesystem) {
		t.Errorf("Download without bucket error = %v, want ErrFilesystem", err)
	}
}

func TestDestKey(t *testing.T) {
	tests := []struct {
		entityID, filename, want string
	}{
		{"LT05_000", "product.tar.gz", "LT05_000.tar.gz"},
		{"LT05_000", "scene.zip", "LT05_000.zip"},
		{"LT05_000", "noextension", "LT05_000"},
		{"LT05_000", "", "LT05_000"},
	}
	for _, tt := range tests {
		if got := destKey(tt.entityID, tt.filename); got != tt.want {
			t.Errorf("destKey(%q, %q) = %q, want %q", tt.entityID, tt.filename, got, tt.want)
		}
	}
}
