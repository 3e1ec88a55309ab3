package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"llmstxt-crawler/internal/jobs"
	"llmstxt-crawler/internal/synth"
	"llmstxt-crawler/pkg/types"
)

func (s *Server) createCrawl(c *gin.Context) {
	var req types.CrawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Sprintf("invalid json payload: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		msg := err.Error()
		if errors.Is(err, types.ErrInvalidURL) {
			msg = "Invalid URL provided"
		}
		writeError(c, http.StatusBadRequest, msg)
		return
	}
	id, err := s.jobs.Submit(c.Request.Context(), req, clientIP(c.Request))
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrPoolClosed):
			writeError(c, http.StatusServiceUnavailable, err.Error())
		default:
			s.logger.Error("starting crawl failed", zap.String("url", req.URL), zap.Error(err))
			writeError(c, http.StatusInternalServerError, "Failed to start crawling", err.Error())
		}
		return
	}
	c.JSON(http.StatusOK, CrawlResponse{JobID: id})
}

// lookupJob resolves the :jobId parameter, writing the 400/404 response itself on failure.
func (s *Server) lookupJob(c *gin.Context) (*jobs.Job, bool) {
	id := c.Param("jobId")
	if !jobs.ValidID(id) {
		writeError(c, http.StatusBadRequest, "Invalid job ID")
		return nil, false
	}
	job, err := s.jobs.Get(c.Request.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(c, http.StatusNotFound, "Job not found or expired")
		return nil, false
	}
	if err != nil {
		s.logger.Error("reading job failed", zap.String("job_id", id), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to get crawl progress")
		return nil, false
	}
	return job, true
}

func (s *Server) getCrawl(c *gin.Context) {
	job, ok := s.lookupJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) cancelCrawl(c *gin.Context) {
	id := c.Param("jobId")
	if !jobs.ValidID(id) {
		writeError(c, http.StatusBadRequest, "Invalid job ID")
		return
	}
	err := s.jobs.Cancel(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, CancelResponse{JobID: id, Status: "cancelling"})
	case errors.Is(err, jobs.ErrNotFound):
		writeError(c, http.StatusNotFound, "Job not found or expired")
	case errors.Is(err, jobs.ErrNotRunning):
		writeError(c, http.StatusConflict, err.Error())
	default:
		s.logger.Error("cancelling job failed", zap.String("job_id", id), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to cancel crawl")
	}
}

func (s *Server) downloadSummary(c *gin.Context) {
	s.download(c, "llms.txt", synth.Summary)
}

func (s *Server) downloadFull(c *gin.Context) {
	s.download(c, "llms-full.txt", synth.Full)
}

func (s *Server) download(c *gin.Context, name string, render func(*types.LlmsTxtContent) string) {
	job, ok := s.lookupJob(c)
	if !ok {
		return
	}
	if job.Status != jobs.StatusCompleted || job.GeneratedContent == nil {
		writeError(c, http.StatusConflict, fmt.Sprintf("job is %s, documents are available once it completes", job.Status))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(render(job.GeneratedContent)))
}

// streamCrawlEvents sends a snapshot, then every change until the job ends or the client leaves.
func (s *Server) streamCrawlEvents(c *gin.Context) {
	id := c.Param("jobId")
	if !jobs.ValidID(id) {
		writeError(c, http.StatusBadRequest, "Invalid job ID")
		return
	}
	events, unsubscribe := s.jobs.Subscribe(id)
	defer unsubscribe()

	job, ok := s.lookupJob(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	snapshot := jobs.Event{Type: jobs.EventSnapshot, Timestamp: job.Timestamp, Job: job}
	if !writeEvent(c, snapshot) || job.Status.Terminal() {
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case evt, open := <-events:
			if !open {
				return
			}
			if !writeEvent(c, evt) || evt.Terminal() {
				return
			}
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, "event: heartbeat\ndata: {}\n\n")
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(c *gin.Context, evt jobs.Event) bool {
	payload, err := json.Marshal(evt)
	if err != nil {
		return true
	}
	if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", evt.Type, payload); err != nil {
		return false
	}
	c.Writer.Flush()
	return true
}
