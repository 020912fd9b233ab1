//nolint:revive // exported
package mmember

import (
	"time"

	"pairbench/server/pkg/idwrap"
)

type Role uint16

const (
	RoleUnknown Role = 0
	RoleMember  Role = 1
	RoleAdmin   Role = 2
	RoleOwner   Role = 3
)

func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// Member links a user to a workspace. Unique per (WorkspaceID, UserID).
type Member struct {
	ID          idwrap.IDWrap
	WorkspaceID idwrap.IDWrap
	UserID      idwrap.IDWrap
	Role        Role
	JoinedAt    time.Time
}
