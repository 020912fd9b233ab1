package rfile_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"pairbench/server/internal/api"
	"pairbench/server/internal/api/middleware/mwauth"
	"pairbench/server/internal/api/rfile"
	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/logger/mocklogger"
	"pairbench/server/pkg/model/mmember"
	"pairbench/server/pkg/room"
	"pairbench/server/pkg/testutil"
)

const identityHeader = "X-Test-User"

func testIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := idwrap.NewText(r.Header.Get(identityHeader))
		if err != nil {
			http.Error(w, "bad test identity", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(mwauth.CreateAuthedContext(r.Context(), userID)))
	})
}

type env struct {
	base  testutil.BaseTestServices
	hub   *room.Hub
	srv   *httptest.Server
	wsID  idwrap.IDWrap
	owner idwrap.IDWrap
}

func newEnv(t *testing.T, lockTTL time.Duration) *env {
	t.Helper()
	ctx := context.Background()
	db := testutil.CreateBaseDB(ctx, t)
	t.Cleanup(db.Close)
	base := db.GetBaseServices()

	hub := room.New(mocklogger.NewMockLogger())
	t.Cleanup(hub.Shutdown)

	workspace, owner := base.SeedWorkspace(ctx, t, "files")

	handler := rfile.New(base.DB, base.Fs, base.Ms, base.Us, hub, lockTTL)
	var services []api.Service
	for _, svc := range rfile.CreateServices(handler) {
		svc.Handler = testIdentity(svc.Handler)
		services = append(services, svc)
	}
	srv := httptest.NewServer(api.NewMux(services))
	t.Cleanup(srv.Close)

	return &env{base: base, hub: hub, srv: srv, wsID: workspace.ID, owner: owner}
}

func (e *env) do(t *testing.T, method, path string, as idwrap.IDWrap, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set(identityHeader, as.String())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (e *env) filesPath() string {
	return "/api/workspaces/" + e.wsID.String() + "/files"
}

func (e *env) createFile(t *testing.T, as idwrap.IDWrap, name string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, e.filesPath(), as,
		map[string]any{"name": name, "content": "console.log(2+2)", "language": "javascript"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["id"].(string)
}

func TestFileLifecycleWithEvents(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := e.hub.Attach(ctx, e.wsID)
	require.NoError(t, err)

	fileID := e.createFile(t, e.owner, "main.js")

	resp, body := e.do(t, http.MethodGet, e.filesPath()+"/"+fileID, e.owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "main.js", body["name"])
	require.Equal(t, "console.log(2+2)", body["content"])

	resp, _ = e.do(t, http.MethodPut, e.filesPath()+"/"+fileID, e.owner,
		map[string]any{"content": "console.log(3+3)"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, http.MethodDelete, e.filesPath()+"/"+fileID, e.owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	wantEvents := []string{room.EventFileCreated, room.EventFileUpdated, room.EventFileDeleted}
	for _, want := range wantEvents {
		select {
		case evt := <-events:
			require.Equal(t, want, evt.Payload.Event)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing %s event", want)
		}
	}
}

func TestLockConflictEndToEnd(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)
	alice := e.base.SeedMember(context.Background(), t, e.wsID, "alice", mmember.RoleMember)
	bob := e.base.SeedMember(context.Background(), t, e.wsID, "bob", mmember.RoleMember)

	fileID := e.createFile(t, alice, "shared.js")
	lockPath := e.filesPath() + "/" + fileID + "/lock"

	resp, _ := e.do(t, http.MethodPost, lockPath, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Second acquirer is told who-has-it-is-not-you with 423.
	resp, body := e.do(t, http.MethodPost, lockPath, bob, nil)
	require.Equal(t, http.StatusLocked, resp.StatusCode)
	require.Equal(t, "lock_conflict", body["code"])

	// Holder re-acquire refreshes, not conflicts.
	resp, _ = e.do(t, http.MethodPost, lockPath, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnlockAuthorizationEndToEnd(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)
	alice := e.base.SeedMember(context.Background(), t, e.wsID, "alice", mmember.RoleMember)
	bob := e.base.SeedMember(context.Background(), t, e.wsID, "bob", mmember.RoleMember)

	fileID := e.createFile(t, alice, "guarded.js")
	lockPath := e.filesPath() + "/" + fileID + "/lock"

	resp, _ := e.do(t, http.MethodPost, lockPath, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A non-holder cannot release someone else's lock.
	resp, body := e.do(t, http.MethodDelete, lockPath, bob, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation_error", body["code"])

	// The workspace owner can force-release a stale lock.
	resp, _ = e.do(t, http.MethodDelete, lockPath, e.owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Now bob can take it.
	resp, _ = e.do(t, http.MethodPost, lockPath, bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpdateWhileLockedByOther(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)
	alice := e.base.SeedMember(context.Background(), t, e.wsID, "alice", mmember.RoleMember)
	bob := e.base.SeedMember(context.Background(), t, e.wsID, "bob", mmember.RoleMember)

	fileID := e.createFile(t, alice, "edit.js")
	e.do(t, http.MethodPost, e.filesPath()+"/"+fileID+"/lock", alice, nil)

	resp, body := e.do(t, http.MethodPut, e.filesPath()+"/"+fileID, bob,
		map[string]any{"content": "stolen edit"})
	require.Equal(t, http.StatusLocked, resp.StatusCode)
	require.Equal(t, "lock_conflict", body["code"])

	resp, _ = e.do(t, http.MethodPut, e.filesPath()+"/"+fileID, alice,
		map[string]any{"content": "holder edit"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpdateRecordsRevisions(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)

	fileID := e.createFile(t, e.owner, "hist.js")
	for _, content := range []string{"v2", "v3"} {
		resp, _ := e.do(t, http.MethodPut, e.filesPath()+"/"+fileID, e.owner,
			map[string]any{"content": content})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := e.do(t, http.MethodGet, e.filesPath()+"/"+fileID+"/revisions", e.owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	revisions := body["revisions"].([]any)
	require.Len(t, revisions, 2)
	// Newest first: the content each save displaced.
	require.Equal(t, "v2", revisions[0].(map[string]any)["content"])
	require.Equal(t, "console.log(2+2)", revisions[1].(map[string]any)["content"])
}

func TestFuzzySearch(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)

	e.createFile(t, e.owner, "server_main.go")
	e.createFile(t, e.owner, "README.md")
	e.createFile(t, e.owner, "servo.txt")

	resp, body := e.do(t, http.MethodGet, e.filesPath()+"?q=srvmain", e.owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	files := body["files"].([]any)
	require.Len(t, files, 1)
	require.Equal(t, "server_main.go", files[0].(map[string]any)["name"])
}

func TestExpiredLockFallsToNextAcquirer(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 500*time.Millisecond)
	alice := e.base.SeedMember(context.Background(), t, e.wsID, "alice", mmember.RoleMember)
	bob := e.base.SeedMember(context.Background(), t, e.wsID, "bob", mmember.RoleMember)

	fileID := e.createFile(t, alice, "stale.js")
	lockPath := e.filesPath() + "/" + fileID + "/lock"

	resp, _ := e.do(t, http.MethodPost, lockPath, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, lockPath, bob, nil)
	require.Equal(t, http.StatusLocked, resp.StatusCode)

	time.Sleep(1100 * time.Millisecond)

	resp, _ = e.do(t, http.MethodPost, lockPath, bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "an expired lock is free to the next acquirer")
}
