//nolint:revive // exported
package suser

import (
	"context"
	"database/sql"
	"errors"

	"pairbench/server/internal/db"
	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/model/muser"
)

var ErrUserNotFound = sql.ErrNoRows

type UserService struct {
	dbtx db.DBTX
}

func New(dbtx db.DBTX) UserService {
	return UserService{dbtx: dbtx}
}

func (us UserService) TX(tx *sql.Tx) UserService {
	return UserService{dbtx: tx}
}

func (us UserService) GetUser(ctx context.Context, id idwrap.IDWrap) (*muser.User, error) {
	row := us.dbtx.QueryRowContext(ctx, `
		SELECT id, email, username, status FROM users WHERE id = ?
	`, id)
	var user muser.User
	if err := row.Scan(&user.ID, &user.Email, &user.Username, &user.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (us UserService) GetUserByEmail(ctx context.Context, email string) (*muser.User, error) {
	row := us.dbtx.QueryRowContext(ctx, `
		SELECT id, email, username, status FROM users WHERE email = ?
	`, email)
	var user muser.User
	if err := row.Scan(&user.ID, &user.Email, &user.Username, &user.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (us UserService) CreateUser(ctx context.Context, user *muser.User) error {
	_, err := us.dbtx.ExecContext(ctx, `
		INSERT INTO users (id, email, username, status)
		VALUES (?, ?, ?, ?)
	`, user.ID, user.Email, user.Username, user.Status)
	return err
}

func (us UserService) UpdateUser(ctx context.Context, user *muser.User) error {
	res, err := us.dbtx.ExecContext(ctx, `
		UPDATE users SET email = ?, username = ?, status = ? WHERE id = ?
	`, user.Email, user.Username, user.Status, user.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (us UserService) DeleteUser(ctx context.Context, id idwrap.IDWrap) error {
	_, err := us.dbtx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return err
}
