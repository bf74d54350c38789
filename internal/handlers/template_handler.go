package handlers

import (
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"procsim/internal/models"
	"procsim/internal/service"
	"procsim/internal/sim"
)

type PageData struct {
	Title                  string
	ActiveProcesses        int
	TotalProcesses         int
	ActiveProcessesPercent int
	Host                   models.HostMetrics
	HostAvailable          bool
	Processes              []models.Process
	Logs                   []models.LogEntry
	Priorities             []string
	MaxThreads             int
	DefaultMemoryMB        int
	RefreshSeconds         int
	Error                  string
}

type TemplateHandler struct {
	templates *template.Template
	pm        *service.ProcessManager
	host      HostSource
	refresh   time.Duration
	log       *zap.Logger
}

func NewTemplateHandler(templatesFS fs.FS, pm *service.ProcessManager, host HostSource, refresh time.Duration, log *zap.Logger) (*TemplateHandler, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"lower": strings.ToLower,
	}).ParseFS(templatesFS, "*.html")
	if err != nil {
		return nil, errors.Wrap(err, "parsing templates")
	}

	return &TemplateHandler{
		templates: tmpl,
		pm:        pm,
		host:      host,
		refresh:   refresh,
		log:       log,
	}, nil
}

func (th *TemplateHandler) buildPageData(r *http.Request) PageData {
	activeProcesses, totalProcesses := th.pm.GetStats()

	activePercent := 0
	if totalProcesses > 0 {
		activePercent = (activeProcesses * 100) / totalProcesses
	}

	refresh := int(th.refresh / time.Second)
	if refresh < 1 {
		refresh = 1
	}

	data := PageData{
		Title:                  "procsim - Dashboard",
		ActiveProcesses:        activeProcesses,
		TotalProcesses:         totalProcesses,
		ActiveProcessesPercent: activePercent,
		Processes:              th.pm.GetProcesses(),
		Logs:                   th.pm.GetLogs(10),
		Priorities:             []string{"Low", "Medium", "High"},
		MaxThreads:             sim.MaxThreads,
		DefaultMemoryMB:        sim.DefaultMemoryMB,
		RefreshSeconds:         refresh,
		Error:                  r.URL.Query().Get("error"),
	}

	if th.host != nil {
		if m, err := th.host.Sample(); err == nil {
			data.Host = m
			data.HostAvailable = true
		} else {
			th.log.Debug("sampling host for dashboard", zap.Error(err))
		}
	}
	return data
}

func (th *TemplateHandler) ServeTemplate(templateName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := th.buildPageData(r)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		if err := th.templates.ExecuteTemplate(w, templateName+".html", data); err != nil {
			th.log.Error("executing template", zap.String("template", templateName), zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}

// CreateFromForm handles the dashboard's create form and redirects back to
// the dashboard, carrying any validation error in the query string.
func (th *TemplateHandler) CreateFromForm(w http.ResponseWriter, r *http.Request) {
	req, err := parseCreateForm(r)
	if err == nil {
		_, err = th.pm.CreateProcess(req)
	}
	if err != nil {
		th.log.Info("create from form rejected", zap.Error(err))
		http.Redirect(w, r, "/?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func parseCreateForm(r *http.Request) (service.CreateRequest, error) {
	if err := r.ParseForm(); err != nil {
		return service.CreateRequest{}, errors.Wrap(sim.ErrInvalidSpec, err.Error())
	}

	mb, err := sim.ParseMemoryMB(r.PostFormValue("memory"))
	if err != nil {
		return service.CreateRequest{}, err
	}

	threads := sim.MinThreads
	if s := strings.TrimSpace(r.PostFormValue("threads")); s != "" {
		threads, err = strconv.Atoi(s)
		if err != nil {
			return service.CreateRequest{}, errors.Wrapf(sim.ErrInvalidSpec, "threads %q is not a number", s)
		}
		if threads < sim.MinThreads {
			return service.CreateRequest{}, errors.Wrapf(sim.ErrInvalidSpec, "threads %d out of range", threads)
		}
	}

	cpu := r.PostFormValue("cpu") != ""
	return service.CreateRequest{
		Name:         strings.TrimSpace(r.PostFormValue("name")),
		MemoryMB:     &mb,
		Threads:      threads,
		CPUConsuming: &cpu,
		Priority:     r.PostFormValue("priority"),
	}, nil
}
