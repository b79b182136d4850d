package downloader

import (
	"context"
	"strings"

	"github.com/nooodle-soup/Theia/internal/transport"
)

// State is the lifecycle state of a download task.
type State int

const (
	StatePending State = iota
	StateResolving
	StateDownloading
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolving:
		return "resolving"
	case StateDownloading:
		return "downloading"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition occurs from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Scene identifies one scene to download.
type Scene struct {
	// EntityID is the scene identifier.
	EntityID string

	// Dataset is the dataset alias the scene belongs to.
	Dataset string
}

// Resolved describes a product resolved to a direct download URL.
type Resolved struct {
	// URL is the pre-signed transfer URL.
	URL string

	// Filename is the product filename, used to derive the destination
	// name's extension.
	Filename string

	// Size is the expected archive size in bytes, or -1 if unknown.
	Size int64
}

// Transport is the surface the download manager needs from the API client.
// Both operations may fail independently and are tracked separately in the
// task state machine.
type Transport interface {
	// Resolve turns a scene into a direct download URL.
	Resolve(ctx context.Context, scene Scene) (*Resolved, error)

	// Fetch opens a streaming transfer for a resolved URL.
	Fetch(ctx context.Context, url string) (*transport.FetchResponse, error)
}

// Task tracks one scene through the download state machine. A task is owned
// by a single worker until it reaches a terminal state; afterwards it is
// read-only in the report.
type Task struct {
	Scene Scene

	// State is the terminal state after Download returns.
	State State

	// Retries counts re-attempts after transient failures.
	Retries int

	// Path is the destination key the archive was (or would be) written to.
	Path string

	// Bytes is the byte count written, or the existing size when skipped.
	Bytes int64

	// Skipped is set when the destination already held the complete file.
	Skipped bool

	// Err is the terminating error for failed or cancelled tasks.
	Err error

	resolved *Resolved
}

// destKey derives the deterministic destination name for a scene: the
// entity id plus the product filename's extension chain, so re-runs always
// target the same file.
func destKey(entityID, filename string) string {
	if i := strings.Index(filename, "."); i >= 0 {
		return entityID + filename[i:]
	}
	return entityID
}
