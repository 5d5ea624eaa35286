package handlers

import (
	"io"
	"net/http"

	"github.com/glmanhtu/PapyrusViz-sub000/internal/api/middleware"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/server/sse"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// GetJob returns a snapshot of one job.
func (h *APIHandler) GetJob(c *gin.Context) {
	t := middleware.T(c)
	job := h.runner.Get(c.Param("id"))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": t("errors.job_not_found")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job.Snapshot()})
}

// StreamJobEvents streams a job's progress messages over Server-Sent
// Events until the client disconnects.
func (h *APIHandler) StreamJobEvents(c *gin.Context) {
	jobID := c.Param("id")

	// SSE headers
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	client := make(sse.Client, 10)
	h.hub.Register(client, jobID)
	defer h.hub.Unregister(client)
	log.Debugf("SSE client registered for job %s", jobID)

	// Replay the latest known state first so late subscribers of a
	// finished job still see its terminal message.
	if job := h.runner.Get(jobID); job != nil {
		c.SSEvent("snapshot", job.Snapshot())
		c.Writer.Flush()
	}

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case msg, ok := <-client:
			if !ok {
				return false
			}
			c.SSEvent("message", string(msg))
			return true
		}
	})
}

// GetSystemStatus reports process statistics and active job count.
func (h *APIHandler) GetSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, utils.GetSystemStats(h.runner.ActiveCount()))
}
