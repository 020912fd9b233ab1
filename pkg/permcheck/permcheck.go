//nolint:revive // exported
package permcheck

import (
	"context"
	"errors"

	"pairbench/server/internal/api/middleware/mwauth"
	"pairbench/server/pkg/errmap"
	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/model/mmember"
	"pairbench/server/pkg/service/smember"
)

// CheckWorkspaceReadAccess verifies the caller is a member of the workspace
// (any role). Non-members get access_denied rather than not_found only when
// the workspace itself is known to exist; here membership is the sole gate,
// so a miss is access_denied.
func CheckWorkspaceReadAccess(ctx context.Context, ms smember.MemberService, workspaceID idwrap.IDWrap) (*mmember.Member, error) {
	return checkRole(ctx, ms, workspaceID, mmember.RoleMember)
}

// CheckWorkspaceAdminAccess verifies the caller is an admin or the owner.
func CheckWorkspaceAdminAccess(ctx context.Context, ms smember.MemberService, workspaceID idwrap.IDWrap) (*mmember.Member, error) {
	return checkRole(ctx, ms, workspaceID, mmember.RoleAdmin)
}

// CheckWorkspaceOwnerAccess verifies the caller owns the workspace.
func CheckWorkspaceOwnerAccess(ctx context.Context, ms smember.MemberService, workspaceID idwrap.IDWrap) (*mmember.Member, error) {
	return checkRole(ctx, ms, workspaceID, mmember.RoleOwner)
}

func checkRole(ctx context.Context, ms smember.MemberService, workspaceID idwrap.IDWrap, min mmember.Role) (*mmember.Member, error) {
	userID, err := mwauth.GetContextUserID(ctx)
	if err != nil {
		return nil, errmap.New(errmap.CodeUnauthenticated, "authentication required", err)
	}

	member, err := ms.GetByWorkspaceAndUser(ctx, workspaceID, userID)
	if err != nil {
		if errors.Is(err, smember.ErrMemberNotFound) {
			return nil, errmap.New(errmap.CodeAccessDenied, "not a member of this workspace", nil)
		}
		return nil, err
	}
	if member.Role < min {
		return nil, errmap.New(errmap.CodeAccessDenied, "insufficient role for this operation", nil)
	}
	return member, nil
}
