package scenario

import (
	"context"
	"time"
)

// Task is one zero-argument unit of on-chain work producing named
// output fields. Tasks perform their own network calls and signing;
// the executor adds nothing beyond timing and error capture.
type Task func(ctx context.Context) (map[string]any, error)

// Run executes task once, measuring wall-clock duration in
// milliseconds and reducing any failure to its message. There are no
// retries; a failure terminates only this scenario, never its
// siblings.
func Run(ctx context.Context, id ID, task Task) Result {
	start := time.Now()
	out, err := task(ctx)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			ID:         id,
			DurationMs: elapsed,
			Output:     map[string]any{},
			Error:      err.Error(),
		}
	}

	if out == nil {
		out = map[string]any{}
	}

	return Result{
		ID:         id,
		Success:    true,
		DurationMs: elapsed,
		Output:     out,
	}
}
