package testutil

import (
	"context"
	"sync"
	"testing"
	"time"
)

// ConcurrencyTestConfig holds parameters for concurrency tests.
type ConcurrencyTestConfig struct {
	// NumGoroutines is the number of concurrent operations. Default: 20.
	NumGoroutines int

	// Timeout is the per-operation limit; anything slower counts as a
	// timeout (potential deadlock). Default: 3 seconds.
	Timeout time.Duration
}

// ConcurrencyTestResult captures the outcome of concurrency tests.
type ConcurrencyTestResult struct {
	SuccessCount int
	ErrorCount   int
	TimeoutCount int
}

// RunConcurrent fires the same operation from many goroutines at once and
// tallies outcomes. Used to verify that contended store operations (lock
// acquisition in particular) neither deadlock nor over-admit.
func RunConcurrent[T any](
	ctx context.Context,
	t *testing.T,
	config ConcurrencyTestConfig,
	setup func(i int) T,
	execute func(ctx context.Context, data T) error,
) ConcurrencyTestResult {
	t.Helper()

	if config.NumGoroutines == 0 {
		config.NumGoroutines = 20
	}
	if config.Timeout == 0 {
		config.Timeout = 3 * time.Second
	}

	type opResult struct {
		success bool
		timeout bool
	}

	resultChan := make(chan opResult, config.NumGoroutines)
	var wg sync.WaitGroup
	var start sync.WaitGroup
	start.Add(1)

	for i := 0; i < config.NumGoroutines; i++ {
		wg.Add(1)
		data := setup(i)
		go func() {
			defer wg.Done()
			start.Wait()

			opCtx, cancel := context.WithTimeout(ctx, config.Timeout)
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- execute(opCtx, data) }()

			select {
			case err := <-done:
				resultChan <- opResult{success: err == nil}
			case <-opCtx.Done():
				resultChan <- opResult{timeout: true}
			}
		}()
	}

	start.Done()
	wg.Wait()
	close(resultChan)

	var result ConcurrencyTestResult
	for r := range resultChan {
		switch {
		case r.timeout:
			result.TimeoutCount++
		case r.success:
			result.SuccessCount++
		default:
			result.ErrorCount++
		}
	}
	return result
}
