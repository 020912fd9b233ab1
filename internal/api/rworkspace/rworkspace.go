//nolint:revive // exported
package rworkspace

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"pairbench/server/internal/api"
	"pairbench/server/internal/api/middleware/mwauth"
	"pairbench/server/internal/api/rbody"
	"pairbench/server/internal/db"
	"pairbench/server/pkg/errmap"
	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/model/mmember"
	"pairbench/server/pkg/model/muser"
	"pairbench/server/pkg/model/mworkspace"
	"pairbench/server/pkg/permcheck"
	"pairbench/server/pkg/room"
	"pairbench/server/pkg/service/sexec"
	"pairbench/server/pkg/service/sfile"
	"pairbench/server/pkg/service/smember"
	"pairbench/server/pkg/service/suser"
	"pairbench/server/pkg/service/sworkspace"
)

type WorkspaceHandler struct {
	DB  *sql.DB
	ws  sworkspace.WorkspaceService
	us  suser.UserService
	ms  smember.MemberService
	fs  sfile.FileService
	es  sexec.ExecService
	hub *room.Hub
}

func New(database *sql.DB, ws sworkspace.WorkspaceService, us suser.UserService,
	ms smember.MemberService, fs sfile.FileService, es sexec.ExecService, hub *room.Hub,
) *WorkspaceHandler {
	return &WorkspaceHandler{DB: database, ws: ws, us: us, ms: ms, fs: fs, es: es, hub: hub}
}

func CreateServices(srv *WorkspaceHandler) []api.Service {
	return []api.Service{
		{Path: "POST /api/workspaces", Handler: http.HandlerFunc(srv.Create)},
		{Path: "GET /api/workspaces", Handler: http.HandlerFunc(srv.List)},
		{Path: "GET /api/workspaces/{id}", Handler: http.HandlerFunc(srv.Get)},
		{Path: "DELETE /api/workspaces/{id}", Handler: http.HandlerFunc(srv.Delete)},
		{Path: "POST /api/workspaces/{id}/join", Handler: http.HandlerFunc(srv.Join)},
		{Path: "GET /api/workspaces/{id}/members", Handler: http.HandlerFunc(srv.Members)},
		{Path: "POST /api/workspaces/{id}/invite/rotate", Handler: http.HandlerFunc(srv.RotateInvite)},
	}
}

type execSettingsBody struct {
	Enabled      bool     `json:"enabled"`
	MaxFileBytes int64    `json:"maxFileBytes"`
	Languages    []string `json:"languages"`
}

type createRequest struct {
	Name string            `json:"name"`
	Exec *execSettingsBody `json:"exec"`
}

type workspaceResponse struct {
	ID          idwrap.IDWrap    `json:"id"`
	Name        string           `json:"name"`
	OwnerID     idwrap.IDWrap    `json:"ownerId"`
	InviteToken string           `json:"inviteToken,omitempty"`
	Exec        execSettingsBody `json:"exec"`
	Updated     time.Time        `json:"updated"`
}

type memberResponse struct {
	UserID   idwrap.IDWrap `json:"userId"`
	Username string        `json:"username"`
	Role     string        `json:"role"`
	JoinedAt time.Time     `json:"joinedAt"`
}

func newWorkspaceResponse(w mworkspace.Workspace, includeToken bool) workspaceResponse {
	resp := workspaceResponse{
		ID:      w.ID,
		Name:    w.Name,
		OwnerID: w.OwnerID,
		Exec: execSettingsBody{
			Enabled:      w.Exec.Enabled,
			MaxFileBytes: w.Exec.MaxFileBytes,
			Languages:    w.Exec.Languages,
		},
		Updated: w.Updated,
	}
	if includeToken {
		resp.InviteToken = w.InviteToken
	}
	return resp
}

// ensureUser makes sure the authenticated principal has a user row, so
// membership foreign keys hold. Identity provisioning is external; this
// backfills a minimal row on first contact.
func (h *WorkspaceHandler) ensureUser(r *http.Request, userID idwrap.IDWrap) error {
	_, err := h.us.GetUser(r.Context(), userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, suser.ErrUserNotFound) {
		return err
	}
	user := muser.User{ID: userID, Username: "user-" + userID.String()[:8]}
	return h.us.CreateUser(r.Context(), &user)
}

func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := mwauth.GetContextUserID(r.Context())
	if err != nil {
		rbody.WriteError(w, errmap.New(errmap.CodeUnauthenticated, "authentication required", err))
		return
	}

	var req createRequest
	if err := rbody.DecodeJSON(r, &req); err != nil {
		rbody.WriteError(w, err)
		return
	}
	if req.Name == "" {
		rbody.WriteError(w, errmap.New(errmap.CodeValidation, "workspace name is required", nil))
		return
	}

	if err := h.ensureUser(r, userID); err != nil {
		rbody.WriteError(w, err)
		return
	}

	workspace := mworkspace.Workspace{
		ID:          idwrap.NewNow(),
		Name:        req.Name,
		OwnerID:     userID,
		InviteToken: uuid.NewString(),
		Updated:     time.Now().UTC(),
	}
	// Execution defaults to on; workspaces opt out explicitly.
	workspace.Exec = mworkspace.ExecSettings{Enabled: true}
	if req.Exec != nil {
		workspace.Exec = mworkspace.ExecSettings{
			Enabled:      req.Exec.Enabled,
			MaxFileBytes: req.Exec.MaxFileBytes,
			Languages:    req.Exec.Languages,
		}
	}

	tx, err := h.DB.BeginTx(r.Context(), nil)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	defer db.TxnRollback(tx)

	if err := h.ws.TX(tx).Create(r.Context(), &workspace); err != nil {
		rbody.WriteError(w, err)
		return
	}
	owner := mmember.Member{
		ID:          idwrap.NewNow(),
		WorkspaceID: workspace.ID,
		UserID:      userID,
		Role:        mmember.RoleOwner,
		JoinedAt:    time.Now().UTC(),
	}
	if err := h.ms.TX(tx).Create(r.Context(), &owner); err != nil {
		rbody.WriteError(w, err)
		return
	}
	if err := tx.Commit(); err != nil {
		rbody.WriteError(w, err)
		return
	}

	rbody.WriteJSON(w, http.StatusCreated, newWorkspaceResponse(workspace, true))
}

// List returns the workspaces the caller belongs to. Invite tokens are never
// included here; owners read theirs from the snapshot.
func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := mwauth.GetContextUserID(r.Context())
	if err != nil {
		rbody.WriteError(w, errmap.New(errmap.CodeUnauthenticated, "authentication required", err))
		return
	}

	workspaces, err := h.ws.GetMultiByUserID(r.Context(), userID)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	out := make([]workspaceResponse, 0, len(workspaces))
	for _, ws := range workspaces {
		out = append(out, newWorkspaceResponse(ws, false))
	}
	rbody.WriteJSON(w, http.StatusOK, map[string]any{"workspaces": out})
}

type fileSummary struct {
	ID        idwrap.IDWrap  `json:"id"`
	Name      string         `json:"name"`
	Language  string         `json:"language"`
	LockedBy  *idwrap.IDWrap `json:"lockedBy"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type snapshotResponse struct {
	Workspace workspaceResponse    `json:"workspace"`
	Files     []fileSummary        `json:"files"`
	Members   []memberResponse     `json:"members"`
	Results   []room.ResultPayload `json:"recentResults"`
}

// Get returns the aggregate workspace snapshot: the store re-read path that
// backs client reconnects and event reconciliation.
func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := rbody.PathID(r, "id")
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	caller, err := permcheck.CheckWorkspaceReadAccess(r.Context(), h.ms, workspaceID)
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

	files, err := h.fs.GetByWorkspace(r.Context(), workspaceID)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	members, err := h.memberResponses(r, workspaceID)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	results, err := h.es.GetByWorkspace(r.Context(), workspaceID)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}

	resp := snapshotResponse{
		// Only the owner sees the invite token in the snapshot.
		Workspace: newWorkspaceResponse(*workspace, caller.Role == mmember.RoleOwner),
		Files:     make([]fileSummary, 0, len(files)),
		Members:   members,
		Results:   make([]room.ResultPayload, 0, len(results)),
	}
	for _, f := range files {
		resp.Files = append(resp.Files, fileSummary{
			ID: f.ID, Name: f.Name, Language: f.Language,
			LockedBy: f.LockedBy, UpdatedAt: f.UpdatedAt,
		})
	}
	for _, res := range results {
		resp.Results = append(resp.Results, room.NewResultPayload(res))
	}

	rbody.WriteJSON(w, http.StatusOK, resp)
}

func (h *WorkspaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := rbody.PathID(r, "id")
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	if _, err := permcheck.CheckWorkspaceOwnerAccess(r.Context(), h.ms, workspaceID); err != nil {
		rbody.WriteError(w, err)
		return
	}

	if err := h.ws.Delete(r.Context(), workspaceID); err != nil {
		rbody.WriteError(w, err)
		return
	}

	h.hub.Publish(workspaceID, room.Event{
		Event: room.EventWorkspaceDeleted,
		Data:  room.WorkspaceDeletedPayload{WorkspaceID: workspaceID},
	})
	rbody.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type joinRequest struct {
	InviteToken string `json:"inviteToken"`
}

func (h *WorkspaceHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, err := mwauth.GetContextUserID(r.Context())
	if err != nil {
		rbody.WriteError(w, errmap.New(errmap.CodeUnauthenticated, "authentication required", err))
		return
	}
	workspaceID, err := rbody.PathID(r, "id")
	if err != nil {
		rbody.WriteError(w, err)
		return
	}

	var req joinRequest
	if err := rbody.DecodeJSON(r, &req); err != nil {
		rbody.WriteError(w, err)
		return
	}
	if req.InviteToken == "" {
		rbody.WriteError(w, errmap.New(errmap.CodeValidation, "inviteToken is required", nil))
		return
	}

	// An invalid token and an unknown workspace are indistinguishable on
	// purpose: the token is the capability.
	if _, err := h.ws.GetByInviteToken(r.Context(), workspaceID, req.InviteToken); err != nil {
		if errors.Is(err, sworkspace.ErrNoWorkspaceFound) {
			rbody.WriteError(w, errmap.New(errmap.CodeNotFound, "workspace not found", err))
			return
		}
		rbody.WriteError(w, err)
		return
	}

	if err := h.ensureUser(r, userID); err != nil {
		rbody.WriteError(w, err)
		return
	}

	member := mmember.Member{
		ID:          idwrap.NewNow(),
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        mmember.RoleMember,
		JoinedAt:    time.Now().UTC(),
	}
	if err := h.ms.Create(r.Context(), &member); err != nil {
		if errors.Is(err, smember.ErrAlreadyMember) {
			rbody.WriteError(w, errmap.New(errmap.CodeJoinConflict, "already a workspace member", err))
			return
		}
		rbody.WriteError(w, err)
		return
	}

	user, err := h.us.GetUser(r.Context(), userID)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	h.hub.Publish(workspaceID, room.Event{
		Event: room.EventCollaboratorJoined,
		Data:  room.CollaboratorJoinedPayload{UserID: userID, Username: user.Username},
	})

	rbody.WriteJSON(w, http.StatusOK, memberResponse{
		UserID:   member.UserID,
		Username: user.Username,
		Role:     member.Role.String(),
		JoinedAt: member.JoinedAt,
	})
}

func (h *WorkspaceHandler) Members(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := rbody.PathID(r, "id")
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	if _, err := permcheck.CheckWorkspaceReadAccess(r.Context(), h.ms, workspaceID); err != nil {
		rbody.WriteError(w, err)
		return
	}

	members, err := h.memberResponses(r, workspaceID)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	rbody.WriteJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (h *WorkspaceHandler) RotateInvite(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := rbody.PathID(r, "id")
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	if _, err := permcheck.CheckWorkspaceOwnerAccess(r.Context(), h.ms, workspaceID); err != nil {
		rbody.WriteError(w, err)
		return
	}

	token := uuid.NewString()
	if err := h.ws.RotateInviteToken(r.Context(), workspaceID, token); err != nil {
		if errors.Is(err, sworkspace.ErrNoWorkspaceFound) {
			rbody.WriteError(w, errmap.New(errmap.CodeNotFound, "workspace not found", err))
			return
		}
		rbody.WriteError(w, err)
		return
	}
	rbody.WriteJSON(w, http.StatusOK, map[string]string{"inviteToken": token})
}

func (h *WorkspaceHandler) memberResponses(r *http.Request, workspaceID idwrap.IDWrap) ([]memberResponse, error) {
	members, err := h.ms.GetByWorkspace(r.Context(), workspaceID)
	if err != nil {
		return nil, err
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		username := ""
		if user, err := h.us.GetUser(r.Context(), m.UserID); err == nil {
			username = user.Username
		}
		out = append(out, memberResponse{
			UserID:   m.UserID,
			Username: username,
			Role:     m.Role.String(),
			JoinedAt: m.JoinedAt,
		})
	}
	return out, nil
}
