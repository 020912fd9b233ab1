package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"pairbench/server/internal/db"
	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/logger/mocklogger"
	"pairbench/server/pkg/model/mmember"
	"pairbench/server/pkg/model/muser"
	"pairbench/server/pkg/model/mworkspace"
	"pairbench/server/pkg/service/sexec"
	"pairbench/server/pkg/service/sfile"
	"pairbench/server/pkg/service/smember"
	"pairbench/server/pkg/service/suser"
	"pairbench/server/pkg/service/sworkspace"
)

type BaseDB struct {
	DB  *sql.DB
	t   *testing.T
	ctx context.Context
}

type BaseTestServices struct {
	DB *sql.DB
	Us suser.UserService
	Ws sworkspace.WorkspaceService
	Ms smember.MemberService
	Fs sfile.FileService
	Es sexec.ExecService
}

// CreateBaseDB opens a unique in-memory database with the schema applied.
// Each test gets its own namespace so parallel tests never share state.
func CreateBaseDB(ctx context.Context, t *testing.T) *BaseDB {
	t.Helper()
	connStr := fmt.Sprintf("file:testdb_%s?mode=memory&cache=shared", ulid.Make().String())
	conn, err := db.Open(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.CreateLocalTables(ctx, conn); err != nil {
		t.Fatal(err)
	}
	return &BaseDB{DB: conn, t: t, ctx: ctx}
}

func (b *BaseDB) GetBaseServices() BaseTestServices {
	return BaseTestServices{
		DB: b.DB,
		Us: suser.New(b.DB),
		Ws: sworkspace.New(b.DB),
		Ms: smember.New(b.DB),
		Fs: sfile.New(b.DB),
		Es: sexec.New(b.DB),
	}
}

func (b *BaseDB) Close() {
	if err := b.DB.Close(); err != nil {
		b.t.Error(err)
	}
}

func (b *BaseDB) Logger() *slog.Logger {
	return mocklogger.NewMockLogger()
}

// SeedMember creates a user and makes them a member of the workspace with
// the given role.
func (s BaseTestServices) SeedMember(ctx context.Context, t *testing.T,
	workspaceID idwrap.IDWrap, username string, role mmember.Role,
) idwrap.IDWrap {
	t.Helper()
	user := muser.User{ID: idwrap.NewNow(), Username: username}
	if err := s.Us.CreateUser(ctx, &user); err != nil {
		t.Fatal(err)
	}
	member := mmember.Member{
		ID:          idwrap.NewNow(),
		WorkspaceID: workspaceID,
		UserID:      user.ID,
		Role:        role,
		JoinedAt:    time.Now().UTC(),
	}
	if err := s.Ms.Create(ctx, &member); err != nil {
		t.Fatal(err)
	}
	return user.ID
}

// SeedWorkspace creates a workspace plus its owner user and owner
// membership, returning the workspace and the owner's user ID.
func (s BaseTestServices) SeedWorkspace(ctx context.Context, t *testing.T, name string) (mworkspace.Workspace, idwrap.IDWrap) {
	t.Helper()
	owner := muser.User{ID: idwrap.NewNow(), Username: "owner-" + name}
	if err := s.Us.CreateUser(ctx, &owner); err != nil {
		t.Fatal(err)
	}
	workspace := mworkspace.Workspace{
		ID:          idwrap.NewNow(),
		Name:        name,
		OwnerID:     owner.ID,
		InviteToken: "invite-" + name,
		Exec:        mworkspace.ExecSettings{Enabled: true},
		Updated:     time.Now().UTC(),
	}
	if err := s.Ws.Create(ctx, &workspace); err != nil {
		t.Fatal(err)
	}
	member := mmember.Member{
		ID:          idwrap.NewNow(),
		WorkspaceID: workspace.ID,
		UserID:      owner.ID,
		Role:        mmember.RoleOwner,
		JoinedAt:    time.Now().UTC(),
	}
	if err := s.Ms.Create(ctx, &member); err != nil {
		t.Fatal(err)
	}
	return workspace, owner.ID
}

func AssertFatal[c comparable](t *testing.T, expected, got c) {
	t.Helper()
	if got != expected {
		t.Fatalf("got %v, expected %v", got, expected)
	}
}

func Assert[c comparable](t *testing.T, expected, got c) {
	t.Helper()
	if got != expected {
		t.Errorf("got %v, expected %v", got, expected)
	}
}

func AssertNot[c comparable](t *testing.T, not, got c) {
	t.Helper()
	if got == not {
		t.Errorf("got %v, expected not %v", got, not)
	}
}
