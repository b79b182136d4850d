// Package downloader orchestrates concurrent scene downloads.
//
// Each scene moves through an explicit state machine
// (Pending → Resolving → Downloading → Completed/Failed/Cancelled) driven by
// a bounded worker pool. Resolution (turning a scene id into a direct URL)
// and transfer are separate steps with separately tracked failures.
//
// # Usage
//
//	report, err := downloader.Download(ctx, tp, scenes, downloader.Options{
//	    Bucket:         bucket,
//	    MaxConcurrency: 5,
//	    RetryLimit:     3,
//	})
//
// # Worker Pool
//
// MaxConcurrency workers take tasks from a FIFO channel, so admission
// follows request order while completion order is free. Transient failures
// retry with capped exponential backoff; permanent failures (not found,
// forbidden, filesystem) record immediately. One task's failure never
// aborts its siblings.
//
// # Cancellation
//
// Cancellation aborts rather than drains: in-flight transfers observe the
// context at the next buffer boundary, and every task that did not complete
// is reported Cancelled. Destination writes are staged and renamed on
// success, so an aborted transfer leaves nothing under the final name.
package downloader
