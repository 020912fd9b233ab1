//nolint:revive // exported
package sworkspace

import (
	"context"
	"database/sql"
	"errors"

	"pairbench/server/internal/db"
	"pairbench/server/pkg/dbtime"
	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/model/mworkspace"
)

var ErrNoWorkspaceFound = sql.ErrNoRows

type WorkspaceService struct {
	dbtx db.DBTX
}

func New(dbtx db.DBTX) WorkspaceService {
	return WorkspaceService{dbtx: dbtx}
}

func (ws WorkspaceService) TX(tx *sql.Tx) WorkspaceService {
	return WorkspaceService{dbtx: tx}
}

const workspaceColumns = `id, name, owner_id, invite_token, exec_enabled, exec_max_file_bytes, exec_languages, updated`

func scanWorkspace(row interface{ Scan(...any) error }) (*mworkspace.Workspace, error) {
	var w mworkspace.Workspace
	var languages string
	var updated int64
	err := row.Scan(&w.ID, &w.Name, &w.OwnerID, &w.InviteToken,
		&w.Exec.Enabled, &w.Exec.MaxFileBytes, &languages, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoWorkspaceFound
		}
		return nil, err
	}
	w.Exec.Languages = mworkspace.LanguagesFromString(languages)
	w.Updated = dbtime.FromUnix(updated)
	return &w, nil
}

func (ws WorkspaceService) Create(ctx context.Context, w *mworkspace.Workspace) error {
	_, err := ws.dbtx.ExecContext(ctx, `
		INSERT INTO workspaces (`+workspaceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.Name, w.OwnerID, w.InviteToken,
		w.Exec.Enabled, w.Exec.MaxFileBytes, w.Exec.LanguagesString(), w.Updated.Unix())
	return err
}

func (ws WorkspaceService) Get(ctx context.Context, id idwrap.IDWrap) (*mworkspace.Workspace, error) {
	row := ws.dbtx.QueryRowContext(ctx, `
		SELECT `+workspaceColumns+` FROM workspaces WHERE id = ?
	`, id)
	return scanWorkspace(row)
}

func (ws WorkspaceService) Update(ctx context.Context, w *mworkspace.Workspace) error {
	res, err := ws.dbtx.ExecContext(ctx, `
		UPDATE workspaces
		SET name = ?, exec_enabled = ?, exec_max_file_bytes = ?, exec_languages = ?, updated = ?
		WHERE id = ?
	`, w.Name, w.Exec.Enabled, w.Exec.MaxFileBytes, w.Exec.LanguagesString(), w.Updated.Unix(), w.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoWorkspaceFound
	}
	return nil
}

// RotateInviteToken swaps the workspace-scoped join credential. Old tokens
// stop working immediately; there is still no expiry on the new one.
func (ws WorkspaceService) RotateInviteToken(ctx context.Context, id idwrap.IDWrap, token string) error {
	res, err := ws.dbtx.ExecContext(ctx, `
		UPDATE workspaces SET invite_token = ?, updated = ? WHERE id = ?
	`, token, dbtime.DBNow().Unix(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoWorkspaceFound
	}
	return nil
}

// GetByInviteToken resolves a join request. Token comparison is exact; the
// token is an opaque, workspace-scoped credential.
func (ws WorkspaceService) GetByInviteToken(ctx context.Context, id idwrap.IDWrap, token string) (*mworkspace.Workspace, error) {
	row := ws.dbtx.QueryRowContext(ctx, `
		SELECT `+workspaceColumns+` FROM workspaces WHERE id = ? AND invite_token = ?
	`, id, token)
	return scanWorkspace(row)
}

func (ws WorkspaceService) Delete(ctx context.Context, id idwrap.IDWrap) error {
	res, err := ws.dbtx.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoWorkspaceFound
	}
	return nil
}

func (ws WorkspaceService) GetMultiByUserID(ctx context.Context, userID idwrap.IDWrap) ([]mworkspace.Workspace, error) {
	rows, err := ws.dbtx.QueryContext(ctx, `
		SELECT w.id, w.name, w.owner_id, w.invite_token, w.exec_enabled,
		       w.exec_max_file_bytes, w.exec_languages, w.updated
		FROM workspaces w
		JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.user_id = ?
		ORDER BY w.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []mworkspace.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}
