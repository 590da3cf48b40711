package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/assetpipe/pkg/pipeline"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, title+": "+message)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func TestHandleMatchesPatterns(t *testing.T) {
	c := NewController(pipeline.NewRun(), Options{})
	styles := pipeline.NewTask("styles", "", func(context.Context, *pipeline.Run) error { return nil })
	html := pipeline.NewTask("html", "", func(context.Context, *pipeline.Run) error { return nil })
	require.NoError(t, c.Add(styles, "src/scss/**/*.scss"))
	require.NoError(t, c.Add(html, "src/*.html", "src/partials/*.html"))

	assert.True(t, c.Handle("src/scss/base/_vars.scss"))
	assert.True(t, c.Handle("src/partials/header.html"))
	assert.False(t, c.Handle("src/js/main.js"))

	assert.Len(t, c.bindings[0].trigger, 1)
	assert.Len(t, c.bindings[1].trigger, 1)
}

func TestAddRequiresPatterns(t *testing.T) {
	c := NewController(pipeline.NewRun(), Options{})
	task := pipeline.NewTask("styles", "", func(context.Context, *pipeline.Run) error { return nil })
	assert.Error(t, c.Add(task))
}

func TestRerunsAreCoalesced(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{}, 10)
	release := make(chan struct{})

	var active, maxActive atomic.Int32
	task := pipeline.NewTask("styles", "", func(context.Context, *pipeline.Run) error {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		defer active.Add(-1)

		runs.Add(1)
		started <- struct{}{}
		<-release
		return nil
	})

	c := NewController(pipeline.NewRun(), Options{})
	require.NoError(t, c.Add(task, "src/**/*.scss"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.worker(ctx, c.bindings[0])

	c.Handle("src/a.scss")
	<-started

	for i := 0; i < 5; i++ {
		c.Handle("src/a.scss")
	}
	release <- struct{}{}
	<-started
	release <- struct{}{}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), runs.Load())
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestFailuresAreReportedAndWatchContinues(t *testing.T) {
	var runs atomic.Int32
	task := pipeline.NewTask("styles", "", func(context.Context, *pipeline.Run) error {
		runs.Add(1)
		return eris.New("syntax error in main.scss")
	})

	notifier := &recordingNotifier{}
	c := NewController(pipeline.NewRun(), Options{Notifier: notifier})
	require.NoError(t, c.Add(task, "src/**/*.scss"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.worker(ctx, c.bindings[0])

	c.Handle("src/a.scss")
	require.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 5*time.Millisecond)

	c.Handle("src/a.scss")
	require.Eventually(t, func() bool { return notifier.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), runs.Load())
	assert.Contains(t, notifier.messages[0], "syntax error in main.scss")
}

func TestRunReactsToFileChanges(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "scss")
	require.NoError(t, os.MkdirAll(src, 0o755))

	var runs atomic.Int32
	task := pipeline.NewTask("styles", "", func(context.Context, *pipeline.Run) error {
		runs.Add(1)
		return nil
	})

	c := NewController(pipeline.NewRun(), Options{Lull: 20 * time.Millisecond})
	require.NoError(t, c.Add(task, filepath.Join(src, "**", "*.scss")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()

	// Give the watcher time to register the directories.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "main.scss"), []byte("a{}"), 0o644))
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	current := runs.Load()

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, current, runs.Load())
}

func TestRunWaitsForMissingSourceFolders(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "scss")

	var runs atomic.Int32
	task := pipeline.NewTask("styles", "", func(context.Context, *pipeline.Run) error {
		runs.Add(1)
		return nil
	})

	c := NewController(pipeline.NewRun(), Options{Lull: 20 * time.Millisecond})
	require.NoError(t, c.Add(task, filepath.Join(src, "**", "*.scss")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	assert.NoDirExists(t, filepath.Join(dir, "src"))

	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "main.scss"), []byte("a{}"), 0o644))
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestWithin(t *testing.T) {
	assert.True(t, within("src", filepath.Join("src", "scss")))
	assert.False(t, within("src", "src"))
	assert.False(t, within("src", "srcx"))
	assert.False(t, within(filepath.Join("src", "scss"), "src"))
}

func TestDesktopNotifierShowsMessage(t *testing.T) {
	var got []string
	orig := notify
	notify = func(title, message, icon string) error {
		got = append(got, title, message, icon)
		return nil
	}
	t.Cleanup(func() { notify = orig })

	var n Notifier = DesktopNotifier{Icon: "icon.png"}
	require.NoError(t, n.Notify(context.Background(), "styles", "failed"))
	assert.Equal(t, []string{"styles", "failed", "icon.png"}, got)

	notify = func(string, string, string) error { return eris.New("no dbus") }
	err := n.Notify(context.Background(), "styles", "failed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no dbus")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Notify(ctx, "styles", "failed"), context.Canceled)
}
