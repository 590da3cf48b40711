package devserver

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
)

const (
	reloadPath       = "/__livereload"
	reloadScriptPath = "/__livereload.js"
	metricsPath      = "/__metrics"
)

var reloadTag = []byte(`<script src="` + reloadScriptPath + `"></script>`)

const reloadScript = `(function () {
  if (!window.EventSource) return;
  var source = new EventSource('` + reloadPath + `');
  source.addEventListener('reload', function () {
    window.location.reload();
  });
  source.addEventListener('css', function (e) {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    var found = false;
    for (var i = 0; i < links.length; i++) {
      var href = links[i].getAttribute('href').split('?')[0];
      if (href.replace(/^\.?\//, '') === e.data) {
        links[i].setAttribute('href', href + '?v=' + Date.now());
        found = true;
      }
    }
    if (!found) window.location.reload();
  });
})();
`

func serveReloadScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(reloadScript))
}

// bufferedResponse holds a response until the handler is done so the body can be modified.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header {
	return b.header
}

func (b *bufferedResponse) WriteHeader(status int) {
	b.status = status
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	return b.body.Write(p)
}

// InjectScript returns body with the live-reload script tag inserted before the last </body>.
// Documents without a body tag get the script appended.
func InjectScript(body []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(body), []byte("</body>"))
	if idx < 0 {
		return append(append([]byte{}, body...), reloadTag...)
	}

	out := make([]byte, 0, len(body)+len(reloadTag))
	out = append(out, body[:idx]...)
	out = append(out, reloadTag...)
	return append(out, body[idx:]...)
}

// injectMiddleware adds the live-reload client to every HTML document served by next.
func injectMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Range and conditional requests would not match the modified body.
		r.Header.Del("Range")
		r.Header.Del("If-Modified-Since")
		r.Header.Del("If-None-Match")

		buf := &bufferedResponse{header: make(http.Header), status: http.StatusOK}
		next.ServeHTTP(buf, r)

		body := buf.body.Bytes()
		if buf.status == http.StatusOK && strings.HasPrefix(buf.header.Get("Content-Type"), "text/html") {
			body = InjectScript(body)
			buf.header.Set("Content-Length", strconv.Itoa(len(body)))
			buf.header.Del("Last-Modified")
		}

		for key, values := range buf.header {
			w.Header()[key] = values
		}
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(buf.status)
		if r.Method != http.MethodHead {
			_, _ = w.Write(body)
		}
	})
}
