//nolint:revive // exported
package sexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pairbench/server/internal/db"
	"pairbench/server/pkg/compress"
	"pairbench/server/pkg/dbtime"
	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/model/mexec"
)

var (
	ErrResultNotFound = sql.ErrNoRows
	ErrResultFinal    = errors.New("sexec: result already reached a terminal status")
)

// compressThreshold is the output size beyond which stdout/stderr are stored
// zstd-compressed.
const compressThreshold = 4 * 1024

type ExecService struct {
	dbtx db.DBTX
}

func New(dbtx db.DBTX) ExecService {
	return ExecService{dbtx: dbtx}
}

func (es ExecService) TX(tx *sql.Tx) ExecService {
	return ExecService{dbtx: tx}
}

func encodeOutput(stdout, stderr string) ([]byte, []byte, compress.CompressType, error) {
	if len(stdout)+len(stderr) < compressThreshold {
		return []byte(stdout), []byte(stderr), compress.CompressTypeNone, nil
	}
	out, err := compress.Compress([]byte(stdout), compress.CompressTypeZstd)
	if err != nil {
		return nil, nil, compress.CompressTypeNone, err
	}
	errOut, err := compress.Compress([]byte(stderr), compress.CompressTypeZstd)
	if err != nil {
		return nil, nil, compress.CompressTypeNone, err
	}
	return out, errOut, compress.CompressTypeZstd, nil
}

func decodeOutput(stdout, stderr []byte, comp compress.CompressType) (string, string, error) {
	if comp == compress.CompressTypeNone {
		return string(stdout), string(stderr), nil
	}
	out, err := compress.Decompress(stdout, comp)
	if err != nil {
		return "", "", err
	}
	errOut, err := compress.Decompress(stderr, comp)
	if err != nil {
		return "", "", err
	}
	return string(out), string(errOut), nil
}

// Create inserts the result row in its initial status and trims the
// workspace history ring down to mexec.ResultKeep rows.
func (es ExecService) Create(ctx context.Context, r *mexec.Result) error {
	stdout, stderr, comp, err := encodeOutput(r.Stdout, r.Stderr)
	if err != nil {
		return err
	}
	var exitCode sql.NullInt64
	if r.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*r.ExitCode), Valid: true}
	}
	_, err = es.dbtx.ExecContext(ctx, `
		INSERT INTO execution_results
			(id, workspace_id, file_id, executed_by, stdout, stderr, output_comp,
			 exit_code, execution_time, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.WorkspaceID, r.FileID, r.ExecutedBy, stdout, stderr, comp,
		exitCode, r.ExecutionTime, r.Status, r.CreatedAt.Unix())
	if err != nil {
		return err
	}
	_, err = es.dbtx.ExecContext(ctx, `
		DELETE FROM execution_results
		WHERE workspace_id = ? AND id NOT IN (
			SELECT id FROM execution_results WHERE workspace_id = ? ORDER BY id DESC LIMIT ?
		)
	`, r.WorkspaceID, r.WorkspaceID, mexec.ResultKeep)
	return err
}

// Finalize writes the terminal update. The status guard in the WHERE clause
// makes the terminal transition happen at most once per row; a second call
// reports ErrResultFinal.
func (es ExecService) Finalize(ctx context.Context, r *mexec.Result) error {
	if !r.Status.Terminal() {
		return fmt.Errorf("sexec: finalize with non-terminal status %s", r.Status)
	}
	stdout, stderr, comp, err := encodeOutput(r.Stdout, r.Stderr)
	if err != nil {
		return err
	}
	var exitCode sql.NullInt64
	if r.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*r.ExitCode), Valid: true}
	}
	res, err := es.dbtx.ExecContext(ctx, `
		UPDATE execution_results
		SET stdout = ?, stderr = ?, output_comp = ?, exit_code = ?,
		    execution_time = ?, status = ?
		WHERE id = ? AND status IN (?, ?)
	`, stdout, stderr, comp, exitCode, r.ExecutionTime, r.Status,
		r.ID, mexec.StatusPending, mexec.StatusRunning)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrResultFinal
	}
	return nil
}

func (es ExecService) Get(ctx context.Context, id idwrap.IDWrap) (*mexec.Result, error) {
	row := es.dbtx.QueryRowContext(ctx, `
		SELECT id, workspace_id, file_id, executed_by, stdout, stderr, output_comp,
		       exit_code, execution_time, status, created_at
		FROM execution_results WHERE id = ?
	`, id)
	return scanResult(row)
}

// GetByWorkspace returns the history ring newest-first.
func (es ExecService) GetByWorkspace(ctx context.Context, workspaceID idwrap.IDWrap) ([]mexec.Result, error) {
	rows, err := es.dbtx.QueryContext(ctx, `
		SELECT id, workspace_id, file_id, executed_by, stdout, stderr, output_comp,
		       exit_code, execution_time, status, created_at
		FROM execution_results
		WHERE workspace_id = ?
		ORDER BY id DESC
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []mexec.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanResult(row interface{ Scan(...any) error }) (*mexec.Result, error) {
	var r mexec.Result
	var stdout, stderr []byte
	var comp compress.CompressType
	var exitCode sql.NullInt64
	var created int64
	err := row.Scan(&r.ID, &r.WorkspaceID, &r.FileID, &r.ExecutedBy,
		&stdout, &stderr, &comp, &exitCode, &r.ExecutionTime, &r.Status, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	r.Stdout, r.Stderr, err = decodeOutput(stdout, stderr, comp)
	if err != nil {
		return nil, err
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		r.ExitCode = &code
	}
	r.CreatedAt = dbtime.FromUnix(created)
	return &r, nil
}
