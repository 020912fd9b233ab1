//nolint:revive // exported
package rfile

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"pairbench/server/internal/api"
	"pairbench/server/internal/api/rbody"
	"pairbench/server/internal/db"
	"pairbench/server/pkg/errmap"
	"pairbench/server/pkg/fuzzyfinder"
	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/model/mfile"
	"pairbench/server/pkg/model/mmember"
	"pairbench/server/pkg/permcheck"
	"pairbench/server/pkg/room"
	"pairbench/server/pkg/service/sfile"
	"pairbench/server/pkg/service/smember"
	"pairbench/server/pkg/service/suser"
)

type FileHandler struct {
	DB      *sql.DB
	fs      sfile.FileService
	ms      smember.MemberService
	us      suser.UserService
	hub     *room.Hub
	lockTTL time.Duration
}

func New(database *sql.DB, fs sfile.FileService, ms smember.MemberService,
	us suser.UserService, hub *room.Hub, lockTTL time.Duration,
) *FileHandler {
	return &FileHandler{DB: database, fs: fs, ms: ms, us: us, hub: hub, lockTTL: lockTTL}
}

func CreateServices(srv *FileHandler) []api.Service {
	return []api.Service{
		{Path: "POST /api/workspaces/{id}/files", Handler: http.HandlerFunc(srv.Create)},
		{Path: "GET /api/workspaces/{id}/files", Handler: http.HandlerFunc(srv.List)},
		{Path: "GET /api/workspaces/{id}/files/{fid}", Handler: http.HandlerFunc(srv.Get)},
		{Path: "PUT /api/workspaces/{id}/files/{fid}", Handler: http.HandlerFunc(srv.Update)},
		{Path: "DELETE /api/workspaces/{id}/files/{fid}", Handler: http.HandlerFunc(srv.Delete)},
		{Path: "POST /api/workspaces/{id}/files/{fid}/lock", Handler: http.HandlerFunc(srv.Lock)},
		{Path: "DELETE /api/workspaces/{id}/files/{fid}/lock", Handler: http.HandlerFunc(srv.Unlock)},
		{Path: "GET /api/workspaces/{id}/files/{fid}/revisions", Handler: http.HandlerFunc(srv.Revisions)},
	}
}

type fileResponse struct {
	ID        idwrap.IDWrap  `json:"id"`
	Name      string         `json:"name"`
	Content   string         `json:"content"`
	Language  string         `json:"language"`
	CreatedBy idwrap.IDWrap  `json:"createdBy"`
	LockedBy  *idwrap.IDWrap `json:"lockedBy"`
	LockedAt  *time.Time     `json:"lockedAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func newFileResponse(f mfile.File) fileResponse {
	return fileResponse{
		ID:        f.ID,
		Name:      f.Name,
		Content:   f.Content,
		Language:  f.Language,
		CreatedBy: f.CreatedBy,
		LockedBy:  f.LockedBy,
		LockedAt:  f.LockedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// loadScoped fetches a file and confirms it belongs to the workspace in the
// path. A file reachable under the wrong workspace is reported as missing.
func (h *FileHandler) loadScoped(r *http.Request) (*mfile.File, *mmember.Member, error) {
	workspaceID, err := rbody.PathID(r, "id")
	if err != nil {
		return nil, nil, err
	}
	member, err := permcheck.CheckWorkspaceReadAccess(r.Context(), h.ms, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	fileID, err := rbody.PathID(r, "fid")
	if err != nil {
		return nil, nil, err
	}
	file, err := h.fs.Get(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, sfile.ErrFileNotFound) {
			return nil, nil, errmap.New(errmap.CodeNotFound, "file not found", err)
		}
		return nil, nil, err
	}
	if file.WorkspaceID.Compare(workspaceID) != 0 {
		return nil, nil, errmap.New(errmap.CodeNotFound, "file not found", nil)
	}
	return file, member, nil
}

type createRequest struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

func (h *FileHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	var req createRequest
	if err := rbody.DecodeJSON(r, &req); err != nil {
		rbody.WriteError(w, err)
		return
	}
	if req.Name == "" {
		rbody.WriteError(w, errmap.New(errmap.CodeValidation, "file name is required", nil))
		return
	}

	file := mfile.File{
		ID:          idwrap.NewNow(),
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Content:     req.Content,
		Language:    req.Language,
		CreatedBy:   member.UserID,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := h.fs.Create(r.Context(), &file); err != nil {
		rbody.WriteError(w, err)
		return
	}

	h.hub.Publish(workspaceID, room.Event{
		Event: room.EventFileCreated,
		Data:  room.NewFilePayload(file, member.UserID),
	})
	rbody.WriteJSON(w, http.StatusCreated, newFileResponse(file))
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := rbody.PathID(r, "id")
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	if _, err := permcheck.CheckWorkspaceReadAccess(r.Context(), h.ms, workspaceID); err != nil {
		rbody.WriteError(w, err)
		return
	}

	files, err := h.fs.GetByWorkspace(r.Context(), workspaceID)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}

	if query := r.URL.Query().Get("q"); query != "" {
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = f.Name
		}
		matched := make([]mfile.File, 0, len(files))
		for _, rank := range fuzzyfinder.RankFindFold(names, query) {
			matched = append(matched, files[rank.OriginalIndex])
		}
		files = matched
	}

	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, newFileResponse(f))
	}
	rbody.WriteJSON(w, http.StatusOK, map[string]any{"files": out})
}

func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	file, _, err := h.loadScoped(r)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	rbody.WriteJSON(w, http.StatusOK, newFileResponse(*file))
}

type updateRequest struct {
	Name    *string `json:"name"`
	Content *string `json:"content"`
}

// Update writes name and/or content. While the file is locked only the
// holder may write; the previous content goes into the revision ring.
func (h *FileHandler) Update(w http.ResponseWriter, r *http.Request) {
	file, member, err := h.loadScoped(r)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	if file.LockedByOther(member.UserID) && !file.LockExpired(h.lockTTL, time.Now().UTC()) {
		rbody.WriteError(w, errmap.New(errmap.CodeLockConflict, "file is locked by another member", nil))
		return
	}

	var req updateRequest
	if err := rbody.DecodeJSON(r, &req); err != nil {
		rbody.WriteError(w, err)
		return
	}
	if req.Name == nil && req.Content == nil {
		rbody.WriteError(w, errmap.New(errmap.CodeValidation, "nothing to update", nil))
		return
	}

	tx, err := h.DB.BeginTx(r.Context(), nil)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	defer db.TxnRollback(tx)
	txFS := h.fs.TX(tx)

	if req.Content != nil && *req.Content != file.Content {
		rev := mfile.Revision{
			ID:      idwrap.NewNow(),
			FileID:  file.ID,
			Content: file.Content,
			SavedBy: member.UserID,
			SavedAt: time.Now().UTC(),
		}
		if err := txFS.CreateRevision(r.Context(), &rev); err != nil {
			rbody.WriteError(w, err)
			return
		}
		file.Content = *req.Content
	}
	if req.Name != nil {
		if *req.Name == "" {
			rbody.WriteError(w, errmap.New(errmap.CodeValidation, "file name is required", nil))
			return
		}
		file.Name = *req.Name
	}
	file.UpdatedAt = time.Now().UTC()

	if err := txFS.Update(r.Context(), file); err != nil {
		rbody.WriteError(w, err)
		return
	}
	if err := tx.Commit(); err != nil {
		rbody.WriteError(w, err)
		return
	}

	h.hub.Publish(file.WorkspaceID, room.Event{
		Event: room.EventFileUpdated,
		Data:  room.NewFilePayload(*file, member.UserID),
	})
	rbody.WriteJSON(w, http.StatusOK, newFileResponse(*file))
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	file, member, err := h.loadScoped(r)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	if file.LockedByOther(member.UserID) && !file.LockExpired(h.lockTTL, time.Now().UTC()) {
		rbody.WriteError(w, errmap.New(errmap.CodeLockConflict, "file is locked by another member", nil))
		return
	}

	if err := h.fs.Delete(r.Context(), file.ID); err != nil {
		rbody.WriteError(w, err)
		return
	}

	h.hub.Publish(file.WorkspaceID, room.Event{
		Event: room.EventFileDeleted,
		Data:  room.NewFilePayload(*file, member.UserID),
	})
	rbody.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Lock attempts to acquire the edit lock. The store's conditional update is
// the arbiter: no matter how many members race, exactly one write matches.
func (h *FileHandler) Lock(w http.ResponseWriter, r *http.Request) {
	file, member, err := h.loadScoped(r)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}

	acquired, err := h.fs.TryLock(r.Context(), file.ID, member.UserID, h.lockTTL)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	if !acquired {
		rbody.WriteError(w, errmap.New(errmap.CodeLockConflict, "file is locked by another member", nil))
		return
	}

	username := ""
	if user, err := h.us.GetUser(r.Context(), member.UserID); err == nil {
		username = user.Username
	}
	h.hub.Publish(file.WorkspaceID, room.Event{
		Event: room.EventFileLocked,
		Data:  room.FileLockedPayload{FileID: file.ID, UserID: member.UserID, Username: username},
	})
	rbody.WriteJSON(w, http.StatusOK, map[string]any{
		"fileId":   file.ID,
		"lockedBy": member.UserID,
	})
}

// Unlock releases the edit lock. Only the holder may release; the workspace
// owner can force-release any lock to recover from a vanished holder.
func (h *FileHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	file, member, err := h.loadScoped(r)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	if !file.Locked() {
		rbody.WriteError(w, errmap.New(errmap.CodeValidation, "file is not locked", nil))
		return
	}

	var released bool
	if member.Role == mmember.RoleOwner && file.LockedByOther(member.UserID) {
		released, err = h.fs.UnlockForce(r.Context(), file.ID)
	} else {
		released, err = h.fs.Unlock(r.Context(), file.ID, member.UserID)
	}
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	if !released {
		rbody.WriteError(w, errmap.New(errmap.CodeValidation, "lock is held by another member", nil))
		return
	}

	h.hub.Publish(file.WorkspaceID, room.Event{
		Event: room.EventFileUnlocked,
		Data:  room.FileUnlockedPayload{FileID: file.ID, UserID: member.UserID},
	})
	rbody.WriteJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

type revisionResponse struct {
	ID      idwrap.IDWrap `json:"id"`
	Content string        `json:"content"`
	SavedBy idwrap.IDWrap `json:"savedBy"`
	SavedAt time.Time     `json:"savedAt"`
}

func (h *FileHandler) Revisions(w http.ResponseWriter, r *http.Request) {
	file, _, err := h.loadScoped(r)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}

	revisions, err := h.fs.GetRevisions(r.Context(), file.ID)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	out := make([]revisionResponse, 0, len(revisions))
	for _, rev := range revisions {
		out = append(out, revisionResponse{
			ID: rev.ID, Content: rev.Content, SavedBy: rev.SavedBy, SavedAt: rev.SavedAt,
		})
	}
	rbody.WriteJSON(w, http.StatusOK, map[string]any{"revisions": out})
}
