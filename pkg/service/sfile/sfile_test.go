package sfile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/model/mfile"
	"pairbench/server/pkg/testutil"
)

var errLost = errors.New("lock already held")

func seedFile(ctx context.Context, t *testing.T, base testutil.BaseTestServices, workspaceID, createdBy idwrap.IDWrap) mfile.File {
	t.Helper()
	file := mfile.File{
		ID:          idwrap.NewNow(),
		WorkspaceID: workspaceID,
		Name:        "main.js",
		Content:     "console.log(2+2)",
		Language:    "javascript",
		CreatedBy:   createdBy,
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, base.Fs.Create(ctx, &file))
	return file
}

func TestTryLockMutualExclusion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testutil.CreateBaseDB(ctx, t)
	defer db.Close()
	base := db.GetBaseServices()

	workspace, owner := base.SeedWorkspace(ctx, t, "lock-race")
	file := seedFile(ctx, t, base, workspace.ID, owner)

	userA := base.SeedMember(ctx, t, workspace.ID, "alice", 1)
	userB := base.SeedMember(ctx, t, workspace.ID, "bob", 1)

	okA, err := base.Fs.TryLock(ctx, file.ID, userA, 0)
	require.NoError(t, err)
	require.True(t, okA)

	okB, err := base.Fs.TryLock(ctx, file.ID, userB, 0)
	require.NoError(t, err)
	require.False(t, okB, "second acquirer must lose")

	// Re-acquire by the current holder succeeds.
	okA, err = base.Fs.TryLock(ctx, file.ID, userA, 0)
	require.NoError(t, err)
	require.True(t, okA)

	got, err := base.Fs.Get(ctx, file.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LockedBy)
	require.Zero(t, got.LockedBy.Compare(userA))
}

func TestTryLockConcurrentSingleWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testutil.CreateBaseDB(ctx, t)
	defer db.Close()
	base := db.GetBaseServices()

	workspace, owner := base.SeedWorkspace(ctx, t, "lock-many")
	file := seedFile(ctx, t, base, workspace.ID, owner)

	users := make([]idwrap.IDWrap, 10)
	for i := range users {
		users[i] = base.SeedMember(ctx, t, workspace.ID, "u"+string(rune('a'+i)), 1)
	}

	result := testutil.RunConcurrent(ctx, t,
		testutil.ConcurrencyTestConfig{NumGoroutines: len(users)},
		func(i int) idwrap.IDWrap { return users[i] },
		func(ctx context.Context, userID idwrap.IDWrap) error {
			ok, err := base.Fs.TryLock(ctx, file.ID, userID, 0)
			if err != nil {
				return err
			}
			if !ok {
				return errLost
			}
			return nil
		},
	)

	require.Equal(t, 0, result.TimeoutCount)
	require.Equal(t, 1, result.SuccessCount, "exactly one concurrent acquirer may win")
	require.Equal(t, len(users)-1, result.ErrorCount)
}

func TestUnlockAuthorization(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testutil.CreateBaseDB(ctx, t)
	defer db.Close()
	base := db.GetBaseServices()

	workspace, owner := base.SeedWorkspace(ctx, t, "unlock-auth")
	file := seedFile(ctx, t, base, workspace.ID, owner)
	holder := base.SeedMember(ctx, t, workspace.ID, "holder", 1)
	other := base.SeedMember(ctx, t, workspace.ID, "other", 1)

	ok, err := base.Fs.TryLock(ctx, file.ID, holder, 0)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := base.Fs.Unlock(ctx, file.ID, other)
	require.NoError(t, err)
	require.False(t, released, "non-holder release must be refused")

	released, err = base.Fs.Unlock(ctx, file.ID, holder)
	require.NoError(t, err)
	require.True(t, released)

	got, err := base.Fs.Get(ctx, file.ID)
	require.NoError(t, err)
	require.False(t, got.Locked())
}

func TestUnlockForceClearsAnyHolder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testutil.CreateBaseDB(ctx, t)
	defer db.Close()
	base := db.GetBaseServices()

	workspace, owner := base.SeedWorkspace(ctx, t, "unlock-force")
	file := seedFile(ctx, t, base, workspace.ID, owner)
	holder := base.SeedMember(ctx, t, workspace.ID, "holder", 1)

	ok, err := base.Fs.TryLock(ctx, file.ID, holder, 0)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := base.Fs.UnlockForce(ctx, file.ID)
	require.NoError(t, err)
	require.True(t, released)

	// Force release on an unlocked file is a no-op.
	released, err = base.Fs.UnlockForce(ctx, file.ID)
	require.NoError(t, err)
	require.False(t, released)
}

func TestTryLockExpiredTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testutil.CreateBaseDB(ctx, t)
	defer db.Close()
	base := db.GetBaseServices()

	workspace, owner := base.SeedWorkspace(ctx, t, "lock-ttl")
	file := seedFile(ctx, t, base, workspace.ID, owner)
	stale := base.SeedMember(ctx, t, workspace.ID, "stale", 1)
	fresh := base.SeedMember(ctx, t, workspace.ID, "fresh", 1)

	ok, err := base.Fs.TryLock(ctx, file.ID, stale, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// Within the TTL the lock still holds.
	ok, err = base.Fs.TryLock(ctx, file.ID, fresh, time.Hour)
	require.NoError(t, err)
	require.False(t, ok)

	time.Sleep(1100 * time.Millisecond)

	// Past the TTL the next acquire treats the lock as free.
	ok, err = base.Fs.TryLock(ctx, file.ID, fresh, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := base.Fs.Get(ctx, file.ID)
	require.NoError(t, err)
	require.Zero(t, got.LockedBy.Compare(fresh))
}

func TestFileCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testutil.CreateBaseDB(ctx, t)
	defer db.Close()
	base := db.GetBaseServices()

	workspace, owner := base.SeedWorkspace(ctx, t, "crud")
	file := seedFile(ctx, t, base, workspace.ID, owner)

	got, err := base.Fs.Get(ctx, file.ID)
	require.NoError(t, err)
	require.Equal(t, file.Name, got.Name)
	require.Equal(t, file.Content, got.Content)

	got.Content = "console.log(3+3)"
	got.UpdatedAt = time.Now().UTC()
	require.NoError(t, base.Fs.Update(ctx, got))

	files, err := base.Fs.GetByWorkspace(ctx, workspace.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "console.log(3+3)", files[0].Content)

	require.NoError(t, base.Fs.Delete(ctx, file.ID))
	_, err = base.Fs.Get(ctx, file.ID)
	require.Error(t, err)
}

func TestRevisionRingKeepsLatestThree(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testutil.CreateBaseDB(ctx, t)
	defer db.Close()
	base := db.GetBaseServices()

	workspace, owner := base.SeedWorkspace(ctx, t, "revisions")
	file := seedFile(ctx, t, base, workspace.ID, owner)

	contents := []string{"v1", "v2", "v3", "v4", "v5"}
	for _, c := range contents {
		rev := mfile.Revision{
			ID:      idwrap.NewNow(),
			FileID:  file.ID,
			Content: c,
			SavedBy: owner,
			SavedAt: time.Now().UTC(),
		}
		require.NoError(t, base.Fs.CreateRevision(ctx, &rev))
	}

	revs, err := base.Fs.GetRevisions(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, revs, mfile.RevisionKeep)
	// Newest first.
	require.Equal(t, "v5", revs[0].Content)
	require.Equal(t, "v4", revs[1].Content)
	require.Equal(t, "v3", revs[2].Content)
}
