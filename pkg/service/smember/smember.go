//nolint:revive // exported
package smember

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"pairbench/server/internal/db"
	"pairbench/server/pkg/dbtime"
	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/model/mmember"
)

var (
	ErrMemberNotFound = sql.ErrNoRows
	ErrAlreadyMember  = errors.New("smember: user is already a workspace member")
)

type MemberService struct {
	dbtx db.DBTX
}

func New(dbtx db.DBTX) MemberService {
	return MemberService{dbtx: dbtx}
}

func (ms MemberService) TX(tx *sql.Tx) MemberService {
	return MemberService{dbtx: tx}
}

// Create adds a member row. The (workspace_id, user_id) unique constraint is
// the source of truth for membership uniqueness; a constraint hit surfaces as
// ErrAlreadyMember so callers can map it to a join conflict.
func (ms MemberService) Create(ctx context.Context, m *mmember.Member) error {
	_, err := ms.dbtx.ExecContext(ctx, `
		INSERT INTO workspace_members (id, workspace_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.WorkspaceID, m.UserID, m.Role, m.JoinedAt.Unix())
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrAlreadyMember
	}
	return err
}

func (ms MemberService) GetByWorkspaceAndUser(ctx context.Context, workspaceID, userID idwrap.IDWrap) (*mmember.Member, error) {
	row := ms.dbtx.QueryRowContext(ctx, `
		SELECT id, workspace_id, user_id, role, joined_at
		FROM workspace_members
		WHERE workspace_id = ? AND user_id = ?
	`, workspaceID, userID)
	return scanMember(row)
}

func (ms MemberService) GetByWorkspace(ctx context.Context, workspaceID idwrap.IDWrap) ([]mmember.Member, error) {
	rows, err := ms.dbtx.QueryContext(ctx, `
		SELECT id, workspace_id, user_id, role, joined_at
		FROM workspace_members
		WHERE workspace_id = ?
		ORDER BY joined_at, id
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []mmember.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (ms MemberService) Delete(ctx context.Context, workspaceID, userID idwrap.IDWrap) error {
	res, err := ms.dbtx.ExecContext(ctx, `
		DELETE FROM workspace_members WHERE workspace_id = ? AND user_id = ?
	`, workspaceID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func scanMember(row interface{ Scan(...any) error }) (*mmember.Member, error) {
	var m mmember.Member
	var joined int64
	err := row.Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.Role, &joined)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	m.JoinedAt = dbtime.FromUnix(joined)
	return &m, nil
}
