package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"procsim/internal/models"
)

type HostSource interface {
	Sample() (models.HostMetrics, error)
}

// SystemHandler serves host-wide gauges and static machine information.
type SystemHandler struct {
	host       HostSource
	systemInfo func() (models.SystemInfo, error)
	log        *zap.Logger
}

func NewSystemHandler(host HostSource, systemInfo func() (models.SystemInfo, error), log *zap.Logger) *SystemHandler {
	return &SystemHandler{host: host, systemInfo: systemInfo, log: log}
}

func (h *SystemHandler) HostMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.host.Sample()
	if err != nil {
		h.log.Warn("sampling host", zap.Error(err))
		writeJSON(w, h.log, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Message: "Failed to read host metrics"})
		return
	}
	writeJSON(w, h.log, http.StatusOK, m)
}

func (h *SystemHandler) SystemInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.systemInfo()
	if err != nil {
		h.log.Warn("reading system info", zap.Error(err))
		writeJSON(w, h.log, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Message: "Failed to read system info"})
		return
	}
	writeJSON(w, h.log, http.StatusOK, info)
}
