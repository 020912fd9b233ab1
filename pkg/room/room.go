// Package room is the realtime broadcast layer: one logical room per
// workspace, fanned out over an in-process event stream. Delivery is
// best-effort, at-most-once, ordered per publisher; there is no replay
// buffer, so a reconnecting client re-reads workspace state instead of
// expecting missed events.
package room

import (
	"context"
	"log/slog"
	"time"

	"pairbench/server/pkg/eventstream"
	"pairbench/server/pkg/eventstream/memory"
	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/model/mexec"
	"pairbench/server/pkg/model/mfile"
)

// Event names carried on the wire.
const (
	EventFileLocked         = "file-locked"
	EventFileUnlocked       = "file-unlocked"
	EventFileCreated        = "file-created"
	EventFileUpdated        = "file-updated"
	EventFileDeleted        = "file-deleted"
	EventCollaboratorJoined = "collaborator-joined"
	EventWorkspaceDeleted   = "workspace-deleted"
	EventExecutionResult    = "execution-result"
)

// Event is the envelope every session in a room receives. Every event is
// delivered to all sessions, including the originator's; clients reconcile
// by the userId carried in the payload.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type FileLockedPayload struct {
	FileID   idwrap.IDWrap `json:"fileId"`
	UserID   idwrap.IDWrap `json:"userId"`
	Username string        `json:"username"`
}

type FileUnlockedPayload struct {
	FileID idwrap.IDWrap `json:"fileId"`
	UserID idwrap.IDWrap `json:"userId"`
}

// FilePayload describes a file change for created/updated/deleted events.
// Content is not carried; clients re-fetch the file body they care about.
type FilePayload struct {
	FileID   idwrap.IDWrap `json:"fileId"`
	Name     string        `json:"name"`
	Language string        `json:"language"`
	UserID   idwrap.IDWrap `json:"userId"`
}

type CollaboratorJoinedPayload struct {
	UserID   idwrap.IDWrap `json:"userId"`
	Username string        `json:"username"`
}

type WorkspaceDeletedPayload struct {
	WorkspaceID idwrap.IDWrap `json:"workspaceId"`
}

type ResultPayload struct {
	ID            idwrap.IDWrap `json:"id"`
	FileID        idwrap.IDWrap `json:"fileId"`
	ExecutedBy    idwrap.IDWrap `json:"executedBy"`
	Stdout        string        `json:"stdout"`
	Stderr        string        `json:"stderr"`
	ExitCode      *int          `json:"exitCode"`
	ExecutionTime int64         `json:"executionTime"`
	Status        string        `json:"status"`
	CreatedAt     time.Time     `json:"createdAt"`
}

type ExecutionResultPayload struct {
	FileID idwrap.IDWrap `json:"fileId"`
	Result ResultPayload `json:"result"`
}

// NewResultPayload converts a persisted result into its wire shape.
func NewResultPayload(r mexec.Result) ResultPayload {
	return ResultPayload{
		ID:            r.ID,
		FileID:        r.FileID,
		ExecutedBy:    r.ExecutedBy,
		Stdout:        r.Stdout,
		Stderr:        r.Stderr,
		ExitCode:      r.ExitCode,
		ExecutionTime: r.ExecutionTime,
		Status:        r.Status.String(),
		CreatedAt:     r.CreatedAt,
	}
}

// NewFilePayload converts a file into its change-event wire shape.
func NewFilePayload(f mfile.File, actor idwrap.IDWrap) FilePayload {
	return FilePayload{FileID: f.ID, Name: f.Name, Language: f.Language, UserID: actor}
}

// Hub owns the room registry. Rooms are topics on the underlying streamer,
// so join/leave is subscription lifecycle and needs no separate registry
// bookkeeping.
type Hub struct {
	streamer eventstream.SyncStreamer[idwrap.IDWrap, Event]
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Hub {
	return &Hub{
		streamer: memory.NewInMemorySyncStreamer[idwrap.IDWrap, Event](),
		logger:   logger,
	}
}

// Publish fans evt out to every session attached to the workspace's room.
func (h *Hub) Publish(workspaceID idwrap.IDWrap, evt Event) {
	h.logger.Debug("room publish", "workspace", workspaceID.String(), "event", evt.Event)
	h.streamer.Publish(workspaceID, evt)
}

// Attach joins a session to a workspace room for the lifetime of ctx.
// Membership must be verified by the caller before attaching; the hub does
// not re-check identity.
func (h *Hub) Attach(ctx context.Context, workspaceID idwrap.IDWrap) (<-chan eventstream.Event[idwrap.IDWrap, Event], error) {
	return h.streamer.Subscribe(ctx, func(topic idwrap.IDWrap) bool {
		return topic.Compare(workspaceID) == 0
	})
}

func (h *Hub) Shutdown() {
	h.streamer.Shutdown()
}
