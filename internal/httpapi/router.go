// Package httpapi exposes the cloning workflow over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/loqalabs/loqa-clone/internal/clone"
	"github.com/loqalabs/loqa-clone/internal/config"
)

// CloneService runs clone jobs.
type CloneService interface {
	Clone(ctx context.Context, in clone.Input) (clone.Output, error)
}

// Files resolves generated output names to paths on disk.
type Files interface {
	Path(name string) (string, error)
}

// Options configures the router.
type Options struct {
	HTTP     config.HTTPConfig
	LogLevel string
	Service  CloneService
	Files    Files
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	// Ready reports whether the node can accept clone jobs.
	Ready  func(ctx context.Context) error
	Logger *slog.Logger
}

type handlers struct {
	opts      Options
	log       *slog.Logger
	maxUpload int64
}

// New builds the gin engine with logging, recovery, CORS and tracing middleware.
func New(opts Options) *gin.Engine {
	if opts.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	log := opts.Logger.With(slog.String("component", "http"))
	h := &handlers{
		opts:      opts,
		log:       log,
		maxUpload: int64(opts.HTTP.MaxUploadMB) << 20,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggingMiddleware(log))
	engine.Use(tracingMiddleware())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	}))

	staticDir := opts.HTTP.StaticDir
	if staticDir == "" {
		staticDir = "./web"
	}
	engine.Use(static.Serve("/static", static.LocalFile(filepath.Join(staticDir, "static"), false)))

	engine.GET("/", h.index(filepath.Join(staticDir, "index.html")))
	engine.GET("/output/:filename", h.output)
	engine.POST("/clone", h.clone)
	engine.GET("/api/languages", h.languages)
	engine.GET("/healthz", h.health)
	engine.GET("/readyz", h.ready)
	if opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	return engine
}

func (h *handlers) index(path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			c.File(path)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fallbackIndex))
	}
}

const fallbackIndex = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Voice Clone</title>
</head>
<body>
<h1>Voice Clone</h1>
<p>Upload a short reference recording, enter text and pick a language.</p>
<form id="clone_form">
  <input type="file" id="audio_upload" name="reference_audio" accept="audio/*">
  <textarea id="text_input" name="text" rows="4"></textarea>
  <select id="language_select" name="language"></select>
  <button type="button" id="generate_btn">Generate</button>
</form>
<div id="status_area"></div>
<script>
const select = document.getElementById('language_select');
fetch('/api/languages').then(r => r.json()).then(langs => {
  langs.forEach(l => select.add(new Option(l.name, l.name)));
});
document.getElementById('generate_btn').onclick = async () => {
  const status = document.getElementById('status_area');
  const data = new FormData(document.getElementById('clone_form'));
  status.textContent = 'Generating voice...';
  const res = await fetch('/clone', {method: 'POST', body: data});
  const body = await res.json();
  if (!res.ok) { status.textContent = body.error; return; }
  status.innerHTML = '<audio controls src="' + body.audio_url + '"></audio>';
};
</script>
</body>
</html>
`
