package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"pairbench/server/pkg/config"
)

// DockerRunner executes jobs with `docker exec` inside a long-lived worker
// container, giving submitted code a wall it cannot see past: no network,
// capped memory and CPU, and a filesystem that is thrown away when the
// container is recycled. A timed-out run restarts the container so the
// killed process cannot leave a runaway child behind.
type DockerRunner struct {
	cli    *client.Client
	image  string
	logger *slog.Logger

	mu          sync.Mutex
	containerID string
}

func NewDockerRunner(cfg config.DockerConfig, logger *slog.Logger) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("runner: docker client: %w", err)
	}
	return &DockerRunner{cli: cli, image: cfg.Image, logger: logger}, nil
}

// ensureContainer starts (or reuses) the worker container.
func (r *DockerRunner) ensureContainer(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.containerID != "" {
		inspect, err := r.cli.ContainerInspect(ctx, r.containerID)
		if err == nil && inspect.State != nil && inspect.State.Running {
			return r.containerID, nil
		}
		r.containerID = ""
	}

	containers, err := r.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return "", fmt.Errorf("runner: list containers: %w", err)
	}
	for _, c := range containers {
		if c.Image == r.image && c.State == "running" {
			r.containerID = c.ID
			return c.ID, nil
		}
	}

	created, err := r.cli.ContainerCreate(ctx,
		&container.Config{Image: r.image, Tty: true},
		&container.HostConfig{
			Resources: container.Resources{
				Memory:   200 * 1024 * 1024,
				NanoCPUs: 1_000_000_000,
			},
			NetworkMode: "none",
		}, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("runner: create container: %w", err)
	}
	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = r.cli.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("runner: start container: %w", err)
	}
	r.logger.Info("started execution container", "id", created.ID[:12], "image", r.image)
	r.containerID = created.ID
	return created.ID, nil
}

func (r *DockerRunner) Run(ctx context.Context, cmd Command, code string, timeout time.Duration) (Result, error) {
	containerID, err := r.ensureContainer(ctx)
	if err != nil {
		return Result{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{cmd.Cmd}, cmd.Args...), code)
	execResp, err := r.cli.ContainerExecCreate(runCtx, containerID, container.ExecOptions{
		Cmd:          args,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("runner: exec create: %w", err)
	}

	attach, err := r.cli.ContainerExecAttach(runCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("runner: exec attach: %w", err)
	}
	defer attach.Close()

	start := time.Now()
	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copyDone <- copyErr
	}()

	timedOut := false
	select {
	case err = <-copyDone:
		if err != nil {
			return Result{}, fmt.Errorf("runner: exec read: %w", err)
		}
	case <-runCtx.Done():
		timedOut = true
		// docker exec cannot be killed directly: recycle the container so
		// the process (and any children) die with it.
		r.recycle(containerID)
		<-copyDone
	}
	elapsed := time.Since(start)

	res := Result{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Elapsed: elapsed,
	}

	if timedOut {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}

	inspect, err := r.cli.ContainerExecInspect(context.WithoutCancel(ctx), execResp.ID)
	if err != nil {
		return res, fmt.Errorf("runner: exec inspect: %w", err)
	}
	res.ExitCode = inspect.ExitCode
	return res, nil
}

func (r *DockerRunner) recycle(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	zero := 0
	if err := r.cli.ContainerRestart(ctx, containerID, container.StopOptions{Timeout: &zero}); err != nil {
		r.logger.Error("failed to restart execution container", "id", containerID[:12], "error", err)
		r.mu.Lock()
		r.containerID = ""
		r.mu.Unlock()
	}
}

// Close releases the docker client. The worker container is left running for
// the next server start.
func (r *DockerRunner) Close() error {
	return r.cli.Close()
}
