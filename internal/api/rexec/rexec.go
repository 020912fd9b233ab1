//nolint:revive // exported
package rexec

import (
	"errors"
	"net/http"

	"pairbench/server/internal/api"
	"pairbench/server/internal/api/rbody"
	"pairbench/server/pkg/errmap"
	"pairbench/server/pkg/execqueue"
	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/model/mexec"
	"pairbench/server/pkg/model/mfile"
	"pairbench/server/pkg/model/mworkspace"
	"pairbench/server/pkg/permcheck"
	"pairbench/server/pkg/room"
	"pairbench/server/pkg/service/sexec"
	"pairbench/server/pkg/service/sfile"
	"pairbench/server/pkg/service/smember"
	"pairbench/server/pkg/service/sworkspace"
)

type ExecHandler struct {
	ws    sworkspace.WorkspaceService
	fs    sfile.FileService
	ms    smember.MemberService
	es    sexec.ExecService
	queue *execqueue.Queue
	hub   *room.Hub
}

func New(ws sworkspace.WorkspaceService, fs sfile.FileService, ms smember.MemberService,
	es sexec.ExecService, queue *execqueue.Queue, hub *room.Hub,
) *ExecHandler {
	return &ExecHandler{ws: ws, fs: fs, ms: ms, es: es, queue: queue, hub: hub}
}

func CreateServices(srv *ExecHandler) []api.Service {
	return []api.Service{
		{Path: "POST /api/workspaces/{id}/files/{fid}/run", Handler: http.HandlerFunc(srv.Run)},
		{Path: "GET /api/workspaces/{id}/executions", Handler: http.HandlerFunc(srv.List)},
	}
}

type runResponse struct {
	ExecutionID idwrap.IDWrap `json:"executionId"`
	Status      string        `json:"status"`
}

// Run snapshots the file's current content into a job and enqueues it. The
// ack carries only the execution ID; the outcome arrives over the room
// broadcast or a later store read.
func (h *ExecHandler) Run(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := rbody.PathID(r, "id")
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	member, err := permcheck.CheckWorkspaceReadAccess(r.Context(), h.ms, workspaceID)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}

	workspace, err := h.ws.Get(r.Context(), workspaceID)
	if err != nil {
		if errors.Is(err, sworkspace.ErrNoWorkspaceFound) {
			rbody.WriteError(w, errmap.New(errmap.CodeNotFound, "workspace not found", err))
			return
		}
		rbody.WriteError(w, err)
		return
	}

	fileID, err := rbody.PathID(r, "fid")
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	file, err := h.fs.Get(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, sfile.ErrFileNotFound) {
			rbody.WriteError(w, errmap.New(errmap.CodeNotFound, "file not found", err))
			return
		}
		rbody.WriteError(w, err)
		return
	}
	if file.WorkspaceID.Compare(workspaceID) != 0 {
		rbody.WriteError(w, errmap.New(errmap.CodeNotFound, "file not found", nil))
		return
	}

	if err := h.validateRun(workspace, file); err != nil {
		rbody.WriteError(w, err)
		return
	}

	job := mexec.Job{
		WorkspaceID: workspaceID,
		FileID:      file.ID,
		ResultID:    idwrap.NewNow(),
		Code:        file.Content,
		Language:    file.Language,
		RequestedBy: member.UserID,
	}

	// Languages outside the server allow-list never reach the queue: the
	// result row is written already terminal and no process is spawned.
	if _, ok := h.queue.Languages().Resolve(file.Language); !ok {
		id, err := execqueue.SubmitUnsupported(r.Context(), h.es, h.hub, job)
		if err != nil {
			rbody.WriteError(w, err)
			return
		}
		rbody.WriteJSON(w, http.StatusAccepted, runResponse{ExecutionID: id, Status: mexec.StatusError.String()})
		return
	}

	if err := h.queue.Submit(job); err != nil {
		if errors.Is(err, execqueue.ErrQueueFull) {
			rbody.WriteError(w, errmap.New(errmap.CodeQueueFull, "execution queue is full", err))
			return
		}
		rbody.WriteError(w, err)
		return
	}

	rbody.WriteJSON(w, http.StatusAccepted, runResponse{ExecutionID: job.ResultID, Status: "queued"})
}

func (h *ExecHandler) validateRun(workspace *mworkspace.Workspace, file *mfile.File) error {
	if !workspace.Exec.Enabled {
		return errmap.New(errmap.CodeValidation, "execution is disabled for this workspace", nil)
	}
	if max := workspace.Exec.MaxFileBytes; max > 0 && int64(len(file.Content)) > max {
		return errmap.Newf(errmap.CodeValidation, "file exceeds the %d byte execution limit", max)
	}
	if file.Language == "" {
		return errmap.New(errmap.CodeValidation, "file has no language set", nil)
	}
	if !workspace.Exec.LanguageAllowed(file.Language) {
		return errmap.Newf(errmap.CodeValidation, "language %q is not allowed in this workspace", file.Language)
	}
	return nil
}

func (h *ExecHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := rbody.PathID(r, "id")
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	if _, err := permcheck.CheckWorkspaceReadAccess(r.Context(), h.ms, workspaceID); err != nil {
		rbody.WriteError(w, err)
		return
	}

	results, err := h.es.GetByWorkspace(r.Context(), workspaceID)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	out := make([]room.ResultPayload, 0, len(results))
	for _, res := range results {
		out = append(out, room.NewResultPayload(res))
	}
	rbody.WriteJSON(w, http.StatusOK, map[string]any{"executions": out})
}
