package devserver

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/assetpipe/pkg/pipeline"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html><body><h1>Hi</h1></body></html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "css", "main.css"), []byte("body{}"), 0o644))

	s := New(Options{Root: root})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Close()
		ts.Close()
	})
	return s, ts
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestInjectScript(t *testing.T) {
	assert.Equal(t,
		`<html><body><p>x</p><script src="/__livereload.js"></script></BODY></html>`,
		string(InjectScript([]byte("<html><body><p>x</p></BODY></html>"))))
	assert.Equal(t, `<p>x</p><script src="/__livereload.js"></script>`, string(InjectScript([]byte("<p>x</p>"))))
}

func TestServesHTMLWithReloadScript(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `<script src="/__livereload.js"></script></body>`)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestServesAssetsUnchanged(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/css/main.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "body{}", body)

	resp, _ = get(t, ts.URL+"/missing.css")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServesReloadScriptAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/__livereload.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "EventSource")

	_, body = get(t, ts.URL+"/__metrics")
	assert.Contains(t, body, "assetpipe_livereload_clients")
}

func TestLiveReloadStream(t *testing.T) {
	s, ts := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/__livereload", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return s.Hub().Clients() == 1 }, time.Second, 10*time.Millisecond)

	s.Hub().Publish(pipeline.ReloadCSS, "css/main.css")
	s.Hub().Publish(pipeline.ReloadPage, "index.html")

	reader := bufio.NewReader(resp.Body)
	lines := make([]string, 0)
	for len(lines) < 4 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "retry:") {
			lines = append(lines, line)
		}
	}

	assert.Equal(t, []string{"event: css", "data: css/main.css", "event: reload", "data: index.html"}, lines)

	cancel()
	require.Eventually(t, func() bool { return s.Hub().Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestServeStopsOnCancel(t *testing.T) {
	s := New(Options{Root: t.TempDir()})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, l)
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
