//nolint:revive // exported
package mfile

import (
	"fmt"
	"time"

	"pairbench/server/pkg/idwrap"
)

// File is a shared text file inside a workspace. The lock descriptor is
// advisory: it restricts edit rights to one member at a time, enforced by the
// store's conditional update, not by the content itself.
type File struct {
	ID          idwrap.IDWrap
	WorkspaceID idwrap.IDWrap
	Name        string
	Content     string
	Language    string
	CreatedBy   idwrap.IDWrap
	LockedBy    *idwrap.IDWrap
	LockedAt    *time.Time
	UpdatedAt   time.Time
}

// Revision is one bounded history snapshot of a file's content. The store
// keeps a ring of the latest RevisionKeep entries per file.
type Revision struct {
	ID      idwrap.IDWrap
	FileID  idwrap.IDWrap
	Content string
	SavedBy idwrap.IDWrap
	SavedAt time.Time
}

// RevisionKeep bounds the per-file revision ring.
const RevisionKeep = 3

func (f File) GetCreatedTime() time.Time {
	return f.ID.Time()
}

// Locked reports whether the lock descriptor currently has a holder.
func (f File) Locked() bool {
	return f.LockedBy != nil
}

// LockedByOther reports whether the file is held by someone other than userID.
func (f File) LockedByOther(userID idwrap.IDWrap) bool {
	return f.LockedBy != nil && f.LockedBy.Compare(userID) != 0
}

// LockExpired reports whether the lock is past the given TTL. A zero TTL
// means locks never expire, matching the inherited behavior.
func (f File) LockExpired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 || f.LockedAt == nil {
		return false
	}
	return now.Sub(*f.LockedAt) > ttl
}

func (f File) Validate() error {
	if f.ID.IsZero() {
		return fmt.Errorf("file ID cannot be empty")
	}
	if f.WorkspaceID.IsZero() {
		return fmt.Errorf("workspace ID cannot be empty")
	}
	if f.Name == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	return nil
}
