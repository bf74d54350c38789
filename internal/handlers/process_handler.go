package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"procsim/internal/service"
	"procsim/internal/sim"
)

type ProcessHandler struct {
	pm  *service.ProcessManager
	log *zap.Logger
}

func NewProcessHandler(pm *service.ProcessManager, log *zap.Logger) *ProcessHandler {
	return &ProcessHandler{pm: pm, log: log}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn("encoding JSON response", zap.Error(err))
	}
}

func (h *ProcessHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, h.log, status, data)
}

func (h *ProcessHandler) writeError(w http.ResponseWriter, status int, err error, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Message: message,
	})
}

func (h *ProcessHandler) writeProcessError(w http.ResponseWriter, err error, pid int) {
	switch {
	case errors.Is(err, service.ErrProcessNotFound):
		h.writeError(w, http.StatusNotFound, err, "Process not found: "+strconv.Itoa(pid))
	case errors.Is(err, service.ErrProcessAlive):
		h.writeError(w, http.StatusConflict, err, "Process still alive: "+strconv.Itoa(pid))
	default:
		h.writeError(w, http.StatusInternalServerError, err, "Process operation failed")
	}
}

func pidVar(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["pid"])
}

func (h *ProcessHandler) GetProcesses(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.pm.GetProcesses())
}

func (h *ProcessHandler) CreateProcess(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	p, err := h.pm.CreateProcess(req)
	if err != nil {
		if errors.Is(err, sim.ErrInvalidSpec) {
			h.writeError(w, http.StatusBadRequest, err, "Invalid process configuration")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err, "Failed to start process")
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

func (h *ProcessHandler) GetProcess(w http.ResponseWriter, r *http.Request) {
	pid, err := pidVar(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err, "Invalid pid")
		return
	}
	p, ok := h.pm.GetProcess(pid)
	if !ok {
		h.writeProcessError(w, service.ErrProcessNotFound, pid)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *ProcessHandler) control(op func(int) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid, err := pidVar(r)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err, "Invalid pid")
			return
		}
		p, err := op(pid)
		if err != nil {
			h.writeProcessError(w, err, pid)
			return
		}
		h.writeJSON(w, http.StatusOK, p)
	}
}

func (h *ProcessHandler) PauseProcess(w http.ResponseWriter, r *http.Request) {
	h.control(func(pid int) (interface{}, error) { return h.pm.PauseProcess(pid) })(w, r)
}

func (h *ProcessHandler) ResumeProcess(w http.ResponseWriter, r *http.Request) {
	h.control(func(pid int) (interface{}, error) { return h.pm.ResumeProcess(pid) })(w, r)
}

func (h *ProcessHandler) ToggleProcess(w http.ResponseWriter, r *http.Request) {
	h.control(func(pid int) (interface{}, error) { return h.pm.ToggleProcess(pid) })(w, r)
}

func (h *ProcessHandler) TerminateProcess(w http.ResponseWriter, r *http.Request) {
	h.control(func(pid int) (interface{}, error) { return h.pm.TerminateProcess(pid) })(w, r)
}

func (h *ProcessHandler) DismissProcess(w http.ResponseWriter, r *http.Request) {
	h.control(func(pid int) (interface{}, error) {
		if err := h.pm.DismissProcess(pid); err != nil {
			return nil, err
		}
		return SuccessResponse{Status: "dismissed", Message: "Process " + strconv.Itoa(pid) + " removed"}, nil
	})(w, r)
}

func (h *ProcessHandler) GetProcessLogs(w http.ResponseWriter, r *http.Request) {
	h.control(func(pid int) (interface{}, error) { return h.pm.GetProcessLogs(pid) })(w, r)
}

func (h *ProcessHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	h.writeJSON(w, http.StatusOK, h.pm.GetLogs(limit))
}
