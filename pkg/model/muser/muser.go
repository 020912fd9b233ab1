//nolint:revive // exported
package muser

import (
	"time"

	"pairbench/server/pkg/idwrap"
)

type UserStatus int8

const (
	Active  UserStatus = 0
	Pending UserStatus = 1
	Blocked UserStatus = 2
)

// User is the minimal account record the server keeps. Account lifecycle
// (signup, password, verification) lives in the external auth service; the
// server only needs identity and a display name for event payloads.
type User struct {
	ID       idwrap.IDWrap
	Email    string
	Username string
	Status   UserStatus
}

func (u User) GetCreatedTime() time.Time {
	return u.ID.Time()
}
