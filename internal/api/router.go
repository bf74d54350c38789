package api

import (
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"procsim/internal/handlers"
	"procsim/internal/metrics"
	"procsim/internal/middleware"
	"procsim/internal/models"
	"procsim/internal/sampler"
	"procsim/internal/service"
)

type Router struct {
	*mux.Router
}

type Options struct {
	Host         handlers.HostSource
	SystemInfo   func() (models.SystemInfo, error)
	Metrics      *metrics.Metrics
	PollInterval time.Duration
	Log          *zap.Logger
}

func NewRouter(pm *service.ProcessManager, templatesFS, staticFS fs.FS, opts Options) (*Router, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Host == nil {
		opts.Host = sampler.NewHostSampler(clockwork.NewRealClock())
	}
	if opts.SystemInfo == nil {
		opts.SystemInfo = sampler.SystemInfo
	}
	r := mux.NewRouter()

	tmplHandler, err := handlers.NewTemplateHandler(templatesFS, pm, opts.Host, opts.PollInterval, opts.Log)
	if err != nil {
		return nil, err
	}

	procHandler := handlers.NewProcessHandler(pm, opts.Log)
	sysHandler := handlers.NewSystemHandler(opts.Host, opts.SystemInfo, opts.Log)
	streamHandler := handlers.NewStreamHandler(pm, opts.Log)

	// Health check endpoints
	r.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/ready", handlers.ReadyCheck(pm)).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	// Web UI
	r.HandleFunc("/", tmplHandler.ServeTemplate("dashboard")).Methods(http.MethodGet)
	r.HandleFunc("/processes", tmplHandler.CreateFromForm).Methods(http.MethodPost)

	staticHandler := http.FileServer(http.FS(staticFS))
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", staticHandler))

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/processes", procHandler.GetProcesses).Methods(http.MethodGet)
	api.HandleFunc("/processes", procHandler.CreateProcess).Methods(http.MethodPost)
	api.HandleFunc("/processes/{pid:[0-9]+}", procHandler.GetProcess).Methods(http.MethodGet)
	api.HandleFunc("/processes/{pid:[0-9]+}", procHandler.DismissProcess).Methods(http.MethodDelete)
	api.HandleFunc("/processes/{pid:[0-9]+}/pause", procHandler.PauseProcess).Methods(http.MethodPost)
	api.HandleFunc("/processes/{pid:[0-9]+}/resume", procHandler.ResumeProcess).Methods(http.MethodPost)
	api.HandleFunc("/processes/{pid:[0-9]+}/toggle", procHandler.ToggleProcess).Methods(http.MethodPost)
	api.HandleFunc("/processes/{pid:[0-9]+}/terminate", procHandler.TerminateProcess).Methods(http.MethodPost)
	api.HandleFunc("/processes/{pid:[0-9]+}/logs", procHandler.GetProcessLogs).Methods(http.MethodGet)
	api.HandleFunc("/logs", procHandler.GetLogs).Methods(http.MethodGet)
	api.HandleFunc("/host", sysHandler.HostMetrics).Methods(http.MethodGet)
	api.HandleFunc("/system", sysHandler.SystemInfo).Methods(http.MethodGet)
	api.HandleFunc("/stream", streamHandler.Stream).Methods(http.MethodGet)

	r.Use(middleware.Recovery(opts.Log))
	r.Use(middleware.Logging(opts.Log))

	return &Router{Router: r}, nil
}
