package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rstamps01/rag-app-sub001/internal/monitor"
	"github.com/rstamps01/rag-app-sub001/internal/pkg/response"
	"github.com/rstamps01/rag-app-sub001/internal/repo"
)

type MonitorHandler struct {
	mon    *monitor.Monitor
	events *repo.EventRepo
}

func NewMonitorHandler(mon *monitor.Monitor, events *repo.EventRepo) *MonitorHandler {
	return &MonitorHandler{mon: mon, events: events}
}

func (h *MonitorHandler) Stats(c *gin.Context) {
	window := time.Duration(queryInt(c, "window_minutes", 60)) * time.Minute
	response.Success(c, h.mon.Stats(window))
}

// Stream pushes pipeline events to the client as server-sent events until
// the client disconnects.
func (h *MonitorHandler) Stream(c *gin.Context) {
	id, events := h.mon.Subscribe()
	defer h.mon.Unsubscribe(id)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("pipeline", ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// History returns the persisted events for one document or query.
func (h *MonitorHandler) History(c *gin.Context) {
	events, err := h.events.ListBySubject(c.Request.Context(), c.Param("id"), queryInt(c, "limit", 200))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"events": events})
}
