package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

type (
	runtimeCtxKey struct{}
	runtimeCtx    struct {
		lock    sync.Mutex
		running map[string]bool
	}
)

func getRuntimeCtx(ctx context.Context) *runtimeCtx {
	rctx, ok := ctx.Value(runtimeCtxKey{}).(*runtimeCtx)
	if !ok {
		return nil
	}
	return rctx
}

// Execute runs node and everything below it. Series groups stop at the first failure; parallel
// groups wait for every member and then report the first failure.
func Execute(ctx context.Context, node Node, r *Run) error {
	if r == nil {
		r = NewRun()
	}

	if getRuntimeCtx(ctx) == nil {
		ctx = context.WithValue(ctx, runtimeCtxKey{}, &runtimeCtx{
			running: make(map[string]bool),
		})
	}

	return runNode(ctx, node, r)
}

func runNode(ctx context.Context, node Node, r *Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch n := node.(type) {
	case *Task:
		return runTask(ctx, n, r)
	case *Group:
		if n.Parallel {
			return runParallel(ctx, n, r)
		}
		return runSeries(ctx, n, r)
	}

	return eris.Errorf("unexpected node type %T", node)
}

func runSeries(ctx context.Context, g *Group, r *Run) error {
	for _, step := range g.Steps {
		err := runNode(ctx, step, r)
		if err != nil {
			return eris.Wrapf(err, "%s failed at step %s", g.Short, step.Name())
		}
	}
	return nil
}

func runParallel(ctx context.Context, g *Group, r *Run) error {
	// errgroup.Group without a context: members are not cancelled when a sibling fails
	var eg errgroup.Group
	for _, step := range g.Steps {
		step := step
		eg.Go(func() error {
			return runNode(ctx, step, r)
		})
	}

	if err := eg.Wait(); err != nil {
		return eris.Wrapf(err, "%s failed", g.Short)
	}
	return nil
}

func runTask(ctx context.Context, task *Task, r *Run) error {
	rctx := getRuntimeCtx(ctx)
	if rctx != nil {
		rctx.lock.Lock()
		if rctx.running[task.Short] {
			rctx.lock.Unlock()
			return eris.Errorf("Task %s is already running", task.Short)
		}
		rctx.running[task.Short] = true
		rctx.lock.Unlock()

		defer func() {
			rctx.lock.Lock()
			delete(rctx.running, task.Short)
			rctx.lock.Unlock()
		}()
	}

	logger := Log(ctx).With().Str("task", task.Short).Logger()
	ctx = WithLogger(ctx, &logger)

	mode := r.Mode()
	logger.Debug().Str("mode", mode.String()).Msg("starting")

	start := time.Now()
	err := task.Fn(ctx, r)
	elapsed := time.Since(start)

	r.metrics.observe(task.Short, mode, elapsed.Seconds(), err != nil)
	if err != nil {
		return eris.Wrapf(err, "task %s failed", task.Short)
	}

	if !task.Hidden {
		logger.Info().Msgf("finished after %s", elapsed.Round(time.Millisecond))
	}
	return nil
}

// RunTask executes a single task outside of any composition.
func RunTask(ctx context.Context, task *Task, r *Run) error {
	return Execute(ctx, task, r)
}
