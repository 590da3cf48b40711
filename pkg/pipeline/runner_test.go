package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type recorder struct {
	lock  sync.Mutex
	order []string
}

func (r *recorder) task(name string, err error) *Task {
	return NewTask(name, "", func(context.Context, *Run) error {
		r.lock.Lock()
		r.order = append(r.order, name)
		r.lock.Unlock()
		return err
	})
}

func TestSeriesRunsInOrder(t *testing.T) {
	rec := &recorder{}
	node := Series("all", rec.task("a", nil), rec.task("b", nil), rec.task("c", nil))

	require.NoError(t, Execute(context.Background(), node, nil))
	assert.Equal(t, []string{"a", "b", "c"}, rec.order)
}

func TestSeriesStopsAtFirstFailure(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	node := Series("all", rec.task("a", nil), rec.task("b", boom), rec.task("c", nil))

	err := Execute(context.Background(), node, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step b")
	assert.Equal(t, []string{"a", "b"}, rec.order)
}

func TestParallelWaitsForAllMembers(t *testing.T) {
	var finished atomic.Int32
	boom := errors.New("boom")

	slow := NewTask("slow", "", func(context.Context, *Run) error {
		time.Sleep(50 * time.Millisecond)
		finished.Add(1)
		return nil
	}, Files("dist/img", "webp"))
	failing := NewTask("failing", "", func(context.Context, *Run) error {
		finished.Add(1)
		return boom
	}, Files("dist/img", "avif"))

	err := Execute(context.Background(), Parallel("images", slow, failing), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 2, finished.Load())
}

func TestParallelCompletesBeforeNextStep(t *testing.T) {
	var done atomic.Int32
	member := func(name string) *Task {
		return NewTask(name, "", func(context.Context, *Run) error {
			time.Sleep(10 * time.Millisecond)
			done.Add(1)
			return nil
		})
	}

	var seen int32
	after := NewTask("after", "", func(context.Context, *Run) error {
		seen = done.Load()
		return nil
	})

	node := Series("all", Parallel("group", member("x"), member("y"), member("z")), after)
	require.NoError(t, Execute(context.Background(), node, nil))
	assert.EqualValues(t, 3, seen)
}

func TestModeIsReadAtExecution(t *testing.T) {
	var observed Mode
	// the task is built before the flip happens
	styles := NewTask("styles", "", func(_ context.Context, r *Run) error {
		observed = r.Mode()
		return nil
	})

	build := Series("build", ToProd(), styles)
	r := NewRun()
	assert.Equal(t, Development, r.Mode())

	require.NoError(t, Execute(context.Background(), build, r))
	assert.Equal(t, Production, observed)
	assert.True(t, r.IsProd())

	// a later invocation on the same run (e.g. from the watcher) still sees production
	require.NoError(t, RunTask(context.Background(), styles, r))
	assert.Equal(t, Production, observed)
}

func TestCancelledContextSkipsRemainingSteps(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	first := NewTask("first", "", func(context.Context, *Run) error {
		cancel()
		return nil
	})

	err := Execute(ctx, Series("all", first, rec.task("second", nil)), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.order)
}

func TestMetricsRecordRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	rec := &recorder{}

	err := Execute(context.Background(), Series("all", rec.task("ok", nil), rec.task("bad", errors.New("x"))), NewRun(WithMetrics(m)))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("bad")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.failures.WithLabelValues("ok")))
}

type publishRecorder struct {
	paths []string
}

func (p *publishRecorder) Publish(_ ReloadKind, path string) {
	p.paths = append(p.paths, path)
}

func TestPublishReachesReloader(t *testing.T) {
	pub := &publishRecorder{}
	r := NewRun(WithReloader(pub))
	r.Publish(ReloadCSS, "css/main.css")
	NewRun().Publish(ReloadPage, "ignored.html")

	assert.Equal(t, []string{"css/main.css"}, pub.paths)
}

func TestSeriesOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(1, 12).Draw(t, "count")
		failAt := rapid.IntRange(-1, count-1).Draw(t, "failAt")

		rec := &recorder{}
		steps := make([]Node, count)
		for i := range steps {
			var err error
			if i == failAt {
				err = errors.New("fail")
			}
			steps[i] = rec.task(fmt.Sprintf("t%d", i), err)
		}

		err := Execute(context.Background(), Series("all", steps...), nil)

		expected := count
		if failAt >= 0 {
			expected = failAt + 1
			if err == nil {
				t.Fatalf("expected failure at step %d", failAt)
			}
		} else if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(rec.order) != expected {
			t.Fatalf("ran %d steps, want %d", len(rec.order), expected)
		}
		for i, name := range rec.order {
			if name != fmt.Sprintf("t%d", i) {
				t.Fatalf("step %d was %s", i, name)
			}
		}
	})
}
