// Package execqueue serializes run requests: a bounded FIFO buffer drained
// by a fixed set of workers. Submit never blocks; once the buffer is full,
// new jobs are rejected outright rather than growing the queue without
// bound. With the default single worker, terminal results land in strict
// submission order across all workspaces.
package execqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pairbench/server/pkg/config"
	"pairbench/server/pkg/dbtime"
	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/model/mexec"
	"pairbench/server/pkg/room"
	"pairbench/server/pkg/runner"
	"pairbench/server/pkg/service/sexec"
)

// ErrQueueFull is the backpressure signal: the caller maps it to a 503 and
// the client retries later.
var ErrQueueFull = errors.New("execqueue: queue is full")

type Queue struct {
	jobs      chan mexec.Job
	workers   int
	timeout   time.Duration
	languages runner.Languages
	runner    runner.Runner
	es        sexec.ExecService
	hub       *room.Hub
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func New(cfg config.ExecConfig, r runner.Runner, es sexec.ExecService, hub *room.Hub, logger *slog.Logger) *Queue {
	return &Queue{
		jobs:      make(chan mexec.Job, cfg.QueueSize),
		workers:   cfg.Workers,
		timeout:   cfg.Timeout(),
		languages: runner.NewLanguages(cfg.Languages),
		runner:    r,
		es:        es,
		hub:       hub,
		logger:    logger,
	}
}

// Languages exposes the resolved allow-list so the submit path can
// short-circuit unsupported languages before a queue slot is consumed.
func (q *Queue) Languages() runner.Languages {
	return q.languages
}

// Submit enqueues a job, or fails fast with ErrQueueFull. The caller gets
// no other signal: outcomes are observable only via the room broadcast or a
// later store read.
func (q *Queue) Submit(job mexec.Job) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the worker set and blocks until ctx is cancelled and the
// in-flight jobs have finished. Buffered jobs that were never dequeued are
// dropped at shutdown; their result rows were not created yet, so nothing
// dangles.
func (q *Queue) Start(ctx context.Context) error {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i+1)
	}
	q.wg.Wait()
	return ctx.Err()
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	q.logger.Info("execution worker started", "worker", id)
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("execution worker stopped", "worker", id)
			return
		case job := <-q.jobs:
			q.process(ctx, job)
		}
	}
}

// process runs one job start to finish. A panic while handling a job is
// contained here so the worker loop keeps draining subsequent jobs.
func (q *Queue) process(ctx context.Context, job mexec.Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("execution job panicked", "result", job.ResultID.String(), "panic", fmt.Sprint(r))
			q.finalize(ctx, job, mexec.Result{
				Status: mexec.StatusError,
				Stderr: fmt.Sprintf("internal execution failure: %v", r),
			})
		}
	}()

	result := mexec.Result{
		ID:          job.ResultID,
		WorkspaceID: job.WorkspaceID,
		FileID:      job.FileID,
		ExecutedBy:  job.RequestedBy,
		Status:      mexec.StatusRunning,
		CreatedAt:   dbtime.DBNow(),
	}
	if err := q.es.Create(ctx, &result); err != nil {
		q.logger.Error("failed to create execution result", "result", job.ResultID.String(), "error", err)
		return
	}

	cmd, ok := q.languages.Resolve(job.Language)
	if !ok {
		// The submit path already rejects unlisted languages; this guards a
		// config reload shrinking the table while jobs are buffered.
		q.finalize(ctx, job, mexec.Result{
			Status: mexec.StatusError,
			Stderr: fmt.Sprintf("unsupported language: %s", job.Language),
		})
		return
	}

	run, err := q.runner.Run(ctx, cmd, job.Code, q.timeout)
	outcome := mexec.Result{
		Stdout:        run.Stdout,
		Stderr:        run.Stderr,
		ExecutionTime: run.Elapsed.Milliseconds(),
	}
	switch {
	case err != nil:
		outcome.Status = mexec.StatusError
		if outcome.Stderr == "" {
			outcome.Stderr = err.Error()
		}
	case run.TimedOut:
		outcome.Status = mexec.StatusTimeout
	case run.ExitCode == 0:
		outcome.Status = mexec.StatusCompleted
		outcome.ExitCode = &run.ExitCode
	default:
		outcome.Status = mexec.StatusError
		outcome.ExitCode = &run.ExitCode
	}

	q.finalize(ctx, job, outcome)
}

// finalize writes the terminal update exactly once and emits the room
// event. Subprocess failures never propagate back to the submit caller;
// they live only in the persisted result.
func (q *Queue) finalize(ctx context.Context, job mexec.Job, outcome mexec.Result) {
	// On shutdown the worker ctx is already cancelled while the killed job's
	// outcome still has to be persisted; detach so the row never stays Running.
	ctx = context.WithoutCancel(ctx)
	result := mexec.Result{
		ID:            job.ResultID,
		WorkspaceID:   job.WorkspaceID,
		FileID:        job.FileID,
		ExecutedBy:    job.RequestedBy,
		Stdout:        outcome.Stdout,
		Stderr:        outcome.Stderr,
		ExitCode:      outcome.ExitCode,
		ExecutionTime: outcome.ExecutionTime,
		Status:        outcome.Status,
		CreatedAt:     dbtime.DBNow(),
	}
	if err := q.es.Finalize(ctx, &result); err != nil {
		if errors.Is(err, sexec.ErrResultFinal) {
			return
		}
		q.logger.Error("failed to finalize execution result", "result", job.ResultID.String(), "error", err)
		return
	}

	stored, err := q.es.Get(ctx, job.ResultID)
	if err != nil {
		q.logger.Error("failed to re-read execution result", "result", job.ResultID.String(), "error", err)
		return
	}
	PublishResult(q.hub, *stored)
}

// PublishResult emits the terminal execution-result event for a persisted
// row. Exported because the submit path reuses it for the
// unsupported-language short circuit, which never passes through a worker.
func PublishResult(hub *room.Hub, r mexec.Result) {
	hub.Publish(r.WorkspaceID, room.Event{
		Event: room.EventExecutionResult,
		Data: room.ExecutionResultPayload{
			FileID: r.FileID,
			Result: room.NewResultPayload(r),
		},
	})
}

// SubmitUnsupported records the short-circuit result for a language that is
// not on the allow-list: the row is created already terminal, the broadcast
// fires, and no process is ever spawned.
func SubmitUnsupported(ctx context.Context, es sexec.ExecService, hub *room.Hub, job mexec.Job) (idwrap.IDWrap, error) {
	result := mexec.Result{
		ID:          job.ResultID,
		WorkspaceID: job.WorkspaceID,
		FileID:      job.FileID,
		ExecutedBy:  job.RequestedBy,
		Stderr:      fmt.Sprintf("unsupported language: %s", job.Language),
		Status:      mexec.StatusError,
		CreatedAt:   dbtime.DBNow(),
	}
	if err := es.Create(ctx, &result); err != nil {
		return idwrap.IDWrap{}, err
	}
	PublishResult(hub, result)
	return result.ID, nil
}
