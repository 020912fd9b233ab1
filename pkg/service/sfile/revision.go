package sfile

import (
	"context"
	"database/sql"
	"errors"

	"pairbench/server/pkg/dbtime"
	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/model/mfile"
)

// CreateRevision appends a content snapshot and trims the ring down to
// mfile.RevisionKeep entries. ULIDs sort by creation time, so ordering by id
// is ordering by age.
func (fs FileService) CreateRevision(ctx context.Context, rev *mfile.Revision) error {
	_, err := fs.dbtx.ExecContext(ctx, `
		INSERT INTO file_revisions (id, file_id, content, saved_by, saved_at)
		VALUES (?, ?, ?, ?, ?)
	`, rev.ID, rev.FileID, rev.Content, rev.SavedBy, rev.SavedAt.Unix())
	if err != nil {
		return err
	}
	_, err = fs.dbtx.ExecContext(ctx, `
		DELETE FROM file_revisions
		WHERE file_id = ? AND id NOT IN (
			SELECT id FROM file_revisions WHERE file_id = ? ORDER BY id DESC LIMIT ?
		)
	`, rev.FileID, rev.FileID, mfile.RevisionKeep)
	return err
}

// GetRevisions returns the ring newest-first.
func (fs FileService) GetRevisions(ctx context.Context, fileID idwrap.IDWrap) ([]mfile.Revision, error) {
	rows, err := fs.dbtx.QueryContext(ctx, `
		SELECT id, file_id, content, saved_by, saved_at
		FROM file_revisions
		WHERE file_id = ?
		ORDER BY id DESC
	`, fileID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []mfile.Revision
	for rows.Next() {
		var rev mfile.Revision
		var saved int64
		if err := rows.Scan(&rev.ID, &rev.FileID, &rev.Content, &rev.SavedBy, &saved); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrFileNotFound
			}
			return nil, err
		}
		rev.SavedAt = dbtime.FromUnix(saved)
		out = append(out, rev)
	}
	return out, rows.Err()
}
