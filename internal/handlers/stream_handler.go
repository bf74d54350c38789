package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"procsim/internal/service"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// StreamHandler pushes the process list to websocket clients after every
// poll tick.
type StreamHandler struct {
	pm  *service.ProcessManager
	log *zap.Logger
}

func NewStreamHandler(pm *service.ProcessManager, log *zap.Logger) *StreamHandler {
	return &StreamHandler{pm: pm, log: log}
}

func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrading websocket", zap.Error(err))
		return
	}
	defer conn.Close()

	snapshots, unsubscribe := h.pm.Subscribe()
	defer unsubscribe()

	// Drain control messages; a read error means the client went away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := h.send(conn, h.pm.GetProcesses()); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case procs, ok := <-snapshots:
			if !ok {
				return
			}
			if err := h.send(conn, procs); err != nil {
				h.log.Debug("sending snapshot", zap.Error(err))
				return
			}
		}
	}
}

func (h *StreamHandler) send(conn *websocket.Conn, v interface{}) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
