//nolint:revive // exported
package mexec

import (
	"time"

	"pairbench/server/pkg/idwrap"
)

// Status follows the monotonic lifecycle Pending -> Running -> terminal.
// A terminal row is never mutated again.
type Status int8

const (
	StatusPending   Status = 0
	StatusRunning   Status = 1
	StatusCompleted Status = 2
	StatusError     Status = 3
	StatusTimeout   Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusTimeout
}

// CanTransition enforces the monotonic lifecycle: forward only, never out of
// a terminal state.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	return next > s
}

// ResultKeep bounds the per-workspace execution history ring.
const ResultKeep = 50

// Result is the persisted outcome record of one execution job.
type Result struct {
	ID            idwrap.IDWrap
	WorkspaceID   idwrap.IDWrap
	FileID        idwrap.IDWrap
	ExecutedBy    idwrap.IDWrap
	Stdout        string
	Stderr        string
	ExitCode      *int
	ExecutionTime int64 // milliseconds
	Status        Status
	CreatedAt     time.Time
}

// Job is the in-memory queue entry. Code is snapshotted at submit time so a
// later file edit cannot change what runs.
type Job struct {
	WorkspaceID idwrap.IDWrap
	FileID      idwrap.IDWrap
	ResultID    idwrap.IDWrap
	Code        string
	Language    string
	RequestedBy idwrap.IDWrap
}
