//nolint:revive // exported
package sfile

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pairbench/server/internal/db"
	"pairbench/server/pkg/dbtime"
	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/model/mfile"
)

var ErrFileNotFound = sql.ErrNoRows

type FileService struct {
	dbtx db.DBTX
}

func New(dbtx db.DBTX) FileService {
	return FileService{dbtx: dbtx}
}

func (fs FileService) TX(tx *sql.Tx) FileService {
	return FileService{dbtx: tx}
}

const fileColumns = `id, workspace_id, name, content, language, created_by, locked_by, locked_at, updated_at`

func scanFile(row interface{ Scan(...any) error }) (*mfile.File, error) {
	var f mfile.File
	var lockedBy []byte
	var lockedAt sql.NullInt64
	var updated int64
	err := row.Scan(&f.ID, &f.WorkspaceID, &f.Name, &f.Content, &f.Language,
		&f.CreatedBy, &lockedBy, &lockedAt, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	if len(lockedBy) != 0 {
		id, err := idwrap.NewFromBytes(lockedBy)
		if err != nil {
			return nil, err
		}
		f.LockedBy = &id
	}
	if lockedAt.Valid {
		t := dbtime.FromUnixMilli(lockedAt.Int64)
		f.LockedAt = &t
	}
	f.UpdatedAt = dbtime.FromUnix(updated)
	return &f, nil
}

func (fs FileService) Create(ctx context.Context, f *mfile.File) error {
	if err := f.Validate(); err != nil {
		return err
	}
	_, err := fs.dbtx.ExecContext(ctx, `
		INSERT INTO files (id, workspace_id, name, content, language, created_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.WorkspaceID, f.Name, f.Content, f.Language, f.CreatedBy, f.UpdatedAt.Unix())
	return err
}

func (fs FileService) Get(ctx context.Context, id idwrap.IDWrap) (*mfile.File, error) {
	row := fs.dbtx.QueryRowContext(ctx, `
		SELECT `+fileColumns+` FROM files WHERE id = ?
	`, id)
	return scanFile(row)
}

func (fs FileService) GetByWorkspace(ctx context.Context, workspaceID idwrap.IDWrap) ([]mfile.File, error) {
	rows, err := fs.dbtx.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files WHERE workspace_id = ? ORDER BY name, id
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []mfile.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// Update rewrites name, content, and language. The holder-only rule while
// locked is the caller's responsibility; the store records whatever it is
// told here.
func (fs FileService) Update(ctx context.Context, f *mfile.File) error {
	res, err := fs.dbtx.ExecContext(ctx, `
		UPDATE files SET name = ?, content = ?, language = ?, updated_at = ?
		WHERE id = ?
	`, f.Name, f.Content, f.Language, f.UpdatedAt.Unix(), f.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrFileNotFound
	}
	return nil
}

func (fs FileService) Delete(ctx context.Context, id idwrap.IDWrap) error {
	res, err := fs.dbtx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrFileNotFound
	}
	return nil
}

// TryLock is the single conditional update that closes the acquire race: the
// row changes only when the descriptor is empty, already held by the caller
// (re-acquire refreshes the timestamp), or expired under a non-zero TTL.
// Exactly one of two concurrent callers can win. Returns false when the row
// was held by someone else; the file's existence must be checked separately.
func (fs FileService) TryLock(ctx context.Context, fileID, userID idwrap.IDWrap, ttl time.Duration) (bool, error) {
	now := dbtime.DBNow()
	var res sql.Result
	var err error
	if ttl > 0 {
		// locked_at carries milliseconds so short TTLs stay meaningful.
		cutoff := now.Add(-ttl).UnixMilli()
		res, err = fs.dbtx.ExecContext(ctx, `
			UPDATE files SET locked_by = ?, locked_at = ?
			WHERE id = ? AND (locked_by IS NULL OR locked_by = ? OR locked_at < ?)
		`, userID, now.UnixMilli(), fileID, userID, cutoff)
	} else {
		res, err = fs.dbtx.ExecContext(ctx, `
			UPDATE files SET locked_by = ?, locked_at = ?
			WHERE id = ? AND (locked_by IS NULL OR locked_by = ?)
		`, userID, now.UnixMilli(), fileID, userID)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Unlock clears the descriptor only when userID is the current holder.
func (fs FileService) Unlock(ctx context.Context, fileID, userID idwrap.IDWrap) (bool, error) {
	res, err := fs.dbtx.ExecContext(ctx, `
		UPDATE files SET locked_by = NULL, locked_at = NULL
		WHERE id = ? AND locked_by = ?
	`, fileID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UnlockForce clears the descriptor regardless of holder. Reserved for the
// workspace owner's stale-lock override.
func (fs FileService) UnlockForce(ctx context.Context, fileID idwrap.IDWrap) (bool, error) {
	res, err := fs.dbtx.ExecContext(ctx, `
		UPDATE files SET locked_by = NULL, locked_at = NULL
		WHERE id = ? AND locked_by IS NOT NULL
	`, fileID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
