package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"gocloud.dev/blob"
	"golang.org/x/sync/errgroup"

	"github.com/nooodle-soup/Theia/internal/progress"
	"github.com/nooodle-soup/Theia/internal/transport"
)

// Defaults applied when Options fields are zero.
const (
	DefaultMaxConcurrency  = 5
	DefaultRetryLimit      = 3
	DefaultRetryBackoff    = time.Second
	DefaultRetryMaxBackoff = 30 * time.Second
)

// copyBufferSize is the buffer used when streaming archive bytes to the
// destination. Scenes can be gigabytes; nothing is ever buffered whole.
const copyBufferSize = 1 << 20

// ErrFilesystem is wrapped around destination write failures. Filesystem
// errors are permanent and never retried.
var ErrFilesystem = errors.New("downloader: filesystem error")

// Options configures a Download call.
type Options struct {
	// Bucket is the destination. Required. For local directories open it
	// with fileblob; writes are staged and renamed on success, so a crash
	// mid-transfer never leaves a partial file under the final name.
	Bucket *blob.Bucket

	// MaxConcurrency is the worker pool size.
	// Default: 5
	MaxConcurrency int

	// RetryLimit is the maximum number of retries per task after transient
	// failures. 0 means DefaultRetryLimit; negative disables retries.
	RetryLimit int

	// RetryBackoff is the initial backoff duration between retries.
	// Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff caps the backoff growth.
	// Default: 30s
	RetryMaxBackoff time.Duration

	// Force re-transfers scenes even when the destination already holds a
	// file of the expected size.
	Force bool

	// Progress is an optional progress reporter.
	Progress *progress.Reporter
}

func (o *Options) applyDefaults() {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.RetryLimit == 0 {
		o.RetryLimit = DefaultRetryLimit
	} else if o.RetryLimit < 0 {
		o.RetryLimit = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.RetryMaxBackoff <= 0 {
		o.RetryMaxBackoff = DefaultRetryMaxBackoff
	}
}

// downloader holds the shared state of one Download call.
type downloader struct {
	tp   Transport
	opts Options

	mu     sync.Mutex
	report *Report
}

// Download resolves each scene to a direct URL and streams the archives to
// the destination with a bounded worker pool. Tasks are admitted in the
// order scenes were supplied; completion order is unordered but the report
// is keyed by scene id, so the outcome is deterministic regardless of
// timing.
//
// Cancellation is aborting: when ctx is cancelled, in-flight transfers stop
// at the next buffer boundary and are reported Cancelled along with all
// queued tasks. A cancelled run returns its report with a nil error;
// Download itself only fails when the destination is missing or not
// accessible before any task starts.
func Download(ctx context.Context, tp Transport, scenes []Scene, opts Options) (*Report, error) {
	if opts.Bucket == nil {
		return nil, fmt.Errorf("%w: no destination bucket", ErrFilesystem)
	}
	opts.applyDefaults()

	if ok, err := opts.Bucket.IsAccessible(ctx); err != nil || !ok {
		return nil, fmt.Errorf("%w: destination not accessible: %v", ErrFilesystem, err)
	}

	d := &downloader{tp: tp, opts: opts, report: newReport(scenes)}

	jobs := make(chan *Task)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < opts.MaxConcurrency; i++ {
		g.Go(func() error {
			for t := range jobs {
				d.run(gctx, t)
			}
			return nil
		})
	}

	// FIFO admission: tasks enter the pool in request order. Once the
	// context is done, everything not yet admitted is Cancelled.
	for _, id := range d.report.Order {
		t := d.report.Tasks[id]
		if gctx.Err() != nil {
			d.finish(t, StateCancelled, gctx.Err())
			continue
		}
		select {
		case jobs <- t:
		case <-gctx.Done():
			d.finish(t, StateCancelled, gctx.Err())
		}
	}
	close(jobs)

	g.Wait()
	return d.report, nil
}

// run drives one task through the state machine to a terminal state,
// retrying transient failures with capped exponential backoff.
func (d *downloader) run(ctx context.Context, t *Task) {
	for {
		if ctx.Err() != nil {
			d.finish(t, StateCancelled, ctx.Err())
			return
		}

		err := d.attempt(ctx, t)
		if err == nil {
			d.finish(t, StateCompleted, nil)
			return
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			d.finish(t, StateCancelled, err)
			return
		}
		if !transport.IsTransient(err) || t.Retries >= d.opts.RetryLimit {
			d.finish(t, StateFailed, err)
			return
		}

		t.Retries++
		slog.Debug("retrying scene", "scene", t.Scene.EntityID, "retry", t.Retries, "err", err)
		if err := d.backoff(ctx, t.Retries); err != nil {
			d.finish(t, StateCancelled, err)
			return
		}
	}
}

// attempt performs one resolution-plus-transfer pass for the task.
func (d *downloader) attempt(ctx context.Context, t *Task) error {
	if t.resolved == nil {
		d.setState(t, StateResolving)
		res, err := d.tp.Resolve(ctx, t.Scene)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", t.Scene.EntityID, err)
		}
		t.resolved = res
	}

	t.Path = destKey(t.Scene.EntityID, t.resolved.Filename)

	// Idempotence: a destination file of the expected size means a prior
	// run already finished this scene. No transfer is issued.
	if !d.opts.Force && t.resolved.Size > 0 {
		if attrs, err := d.opts.Bucket.Attributes(ctx, t.Path); err == nil && attrs.Size == t.resolved.Size {
			t.Bytes = attrs.Size
			t.Skipped = true
			return nil
		}
	}

	d.setState(t, StateDownloading)
	resp, err := d.tp.Fetch(ctx, t.resolved.URL)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", t.Scene.EntityID, err)
	}
	defer resp.Body.Close()

	n, err := d.write(ctx, t.Path, resp.Body)
	if err != nil {
		return err
	}
	if t.resolved.Size > 0 && n != t.resolved.Size {
		// Truncated stream; the staged write was already aborted.
		return fmt.Errorf("%w: %s: got %d of %d bytes", transport.ErrNetwork, t.Scene.EntityID, n, t.resolved.Size)
	}

	t.Bytes = n
	return nil
}

// write streams r to the destination key. The blob writer stages the bytes
// and only commits on Close; cancelling its context aborts the staged
// write, so a failed or interrupted transfer never surfaces under the
// final name.
func (d *downloader) write(ctx context.Context, key string, r io.Reader) (int64, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := d.opts.Bucket.NewWriter(wctx, key, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", ErrFilesystem, key, err)
	}

	buf := make([]byte, copyBufferSize)
	var written int64
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				cancel()
				w.Close()
				return written, fmt.Errorf("%w: write %s: %v", ErrFilesystem, key, writeErr)
			}
			written += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			cancel()
			w.Close()
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			return written, fmt.Errorf("%w: read %s: %v", transport.ErrNetwork, key, readErr)
		}
	}

	if err := w.Close(); err != nil {
		if ctx.Err() != nil {
			return written, ctx.Err()
		}
		return written, fmt.Errorf("%w: commit %s: %v", ErrFilesystem, key, err)
	}
	return written, nil
}

// backoff waits for an exponentially increasing duration with jitter.
func (d *downloader) backoff(ctx context.Context, attempt int) error {
	backoff := d.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > d.opts.RetryMaxBackoff {
		backoff = d.opts.RetryMaxBackoff
	}

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

func (d *downloader) setState(t *Task, s State) {
	d.mu.Lock()
	t.State = s
	d.mu.Unlock()

	if s == StateResolving && d.opts.Progress != nil {
		d.opts.Progress.TaskStarted()
	}
}

// finish moves the task to a terminal state exactly once and updates the
// report counters.
func (d *downloader) finish(t *Task, s State, err error) {
	d.mu.Lock()
	if t.State.Terminal() {
		d.mu.Unlock()
		return
	}
	started := t.State != StatePending
	t.State = s
	t.Err = err
	d.report.count(t)
	d.mu.Unlock()

	if p := d.opts.Progress; p != nil {
		switch s {
		case StateCompleted:
			p.TaskCompleted(t.Bytes, t.Skipped)
		case StateFailed:
			p.TaskFailed()
		case StateCancelled:
			if started {
				p.TaskFailed()
			}
		}
	}

	switch s {
	case StateCompleted:
		slog.Info("scene done", "scene", t.Scene.EntityID, "path", t.Path, "bytes", t.Bytes, "skipped", t.Skipped, "retries", t.Retries)
	case StateFailed:
		slog.Error("scene failed", "scene", t.Scene.EntityID, "retries", t.Retries, "err", err)
	case StateCancelled:
		slog.Info("scene cancelled", "scene", t.Scene.EntityID)
	}
}
