// Package serverrun wires configuration, storage, services, the room hub,
// and the execution queue into a running server process.
package serverrun

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"pairbench/server/internal/api"
	"pairbench/server/internal/api/middleware/mwauth"
	"pairbench/server/internal/api/middleware/mwcompress"
	"pairbench/server/internal/api/rexec"
	"pairbench/server/internal/api/rfile"
	"pairbench/server/internal/api/rhealth"
	"pairbench/server/internal/api/rstream"
	"pairbench/server/internal/api/rworkspace"
	"pairbench/server/internal/db"
	"pairbench/server/pkg/config"
	"pairbench/server/pkg/execqueue"
	"pairbench/server/pkg/model/muser"
	"pairbench/server/pkg/room"
	"pairbench/server/pkg/runner"
	"pairbench/server/pkg/service/sexec"
	"pairbench/server/pkg/service/sfile"
	"pairbench/server/pkg/service/smember"
	"pairbench/server/pkg/service/suser"
	"pairbench/server/pkg/service/sworkspace"
)

func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	database, err := db.Open(ctx, cfg.DB.Path)
	if err != nil {
		return err
	}
	defer database.Close() //nolint:errcheck // process exit path
	if err := db.CreateLocalTables(ctx, database); err != nil {
		return err
	}

	us := suser.New(database)
	ws := sworkspace.New(database)
	ms := smember.New(database)
	fs := sfile.New(database)
	es := sexec.New(database)

	if cfg.Auth.Local {
		if err := seedLocalUser(ctx, us); err != nil {
			return err
		}
	}

	hub := room.New(logger)
	defer hub.Shutdown()

	jobRunner, cleanup, err := newRunner(cfg.Exec, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	queue := execqueue.New(cfg.Exec, jobRunner, es, hub, logger)

	var services []api.Service
	services = append(services, rhealth.CreateService(rhealth.New()))

	authted := assembleAuthed(database, cfg, us, ws, ms, fs, es, queue, hub, logger)
	authed := authMiddleware(cfg.Auth)
	for _, svc := range authted {
		svc.Handler = authed(svc.Handler)
		// Buffered compression would break the websocket upgrade, so the
		// stream path stays uncompressed.
		if svc.Path != rstream.Path {
			svc.Handler = mwcompress.New(svc.Handler)
		}
		services = append(services, svc)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return queue.Start(gctx)
	})
	g.Go(func() error {
		return api.ListenServices(gctx, services, cfg.Server)
	})

	logger.Info("server started", "mode", cfg.Server.Mode)
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func assembleAuthed(database *sql.DB, cfg config.Config,
	us suser.UserService, ws sworkspace.WorkspaceService, ms smember.MemberService,
	fs sfile.FileService, es sexec.ExecService,
	queue *execqueue.Queue, hub *room.Hub, logger *slog.Logger,
) []api.Service {
	var services []api.Service
	services = append(services, rworkspace.CreateServices(
		rworkspace.New(database, ws, us, ms, fs, es, hub))...)
	services = append(services, rfile.CreateServices(
		rfile.New(database, fs, ms, us, hub, cfg.Lock.TTL()))...)
	services = append(services, rexec.CreateServices(
		rexec.New(ws, fs, ms, es, queue, hub))...)
	services = append(services, rstream.CreateService(
		rstream.New(ms, hub, logger)))
	return services
}

func authMiddleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	if cfg.Local {
		return mwauth.NewLocal()
	}
	return mwauth.New([]byte(cfg.Secret))
}

func newRunner(cfg config.ExecConfig, logger *slog.Logger) (runner.Runner, func(), error) {
	switch cfg.Runner {
	case "docker":
		dr, err := runner.NewDockerRunner(cfg.Docker, logger)
		if err != nil {
			return nil, nil, err
		}
		return dr, func() { _ = dr.Close() }, nil
	default:
		return runner.NewLocalRunner(), func() {}, nil
	}
}

// seedLocalUser guarantees the single-user identity exists so that
// workspace and membership foreign keys hold in local mode.
func seedLocalUser(ctx context.Context, us suser.UserService) error {
	if _, err := us.GetUser(ctx, mwauth.LocalDummyID); err == nil {
		return nil
	} else if !errors.Is(err, suser.ErrUserNotFound) {
		return err
	}
	user := muser.User{ID: mwauth.LocalDummyID, Username: "local"}
	return us.CreateUser(ctx, &user)
}
