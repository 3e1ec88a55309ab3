package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"llmstxt-crawler/internal/jobs"
	"llmstxt-crawler/internal/liveness"
	"llmstxt-crawler/internal/logging"
	"llmstxt-crawler/internal/storage"
	"llmstxt-crawler/pkg/types"
)

const (
	defaultHeartbeat  = 15 * time.Second
	defaultStaleAfter = time.Hour
)

// JobService runs and tracks crawl jobs. *jobs.Manager satisfies it.
type JobService interface {
	Submit(ctx context.Context, req types.CrawlRequest, clientIP string) (string, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
	Cancel(ctx context.Context, id string) error
	Subscribe(id string) (<-chan jobs.Event, func())
}

// ResultStore reads persisted results and domain liveness. *storage.Store satisfies it.
type ResultStore interface {
	ListResults(ctx context.Context, limit int) ([]types.CrawlResult, error)
	DomainReport(ctx context.Context, staleAfter time.Duration) (storage.DomainReport, error)
}

// DomainChecker probes crawled domains for llms.txt. *liveness.Checker satisfies it.
type DomainChecker interface {
	CheckAll(ctx context.Context) (liveness.Report, error)
}

// Options wires a Server. Results and Checker may be nil when no database is configured.
type Options struct {
	Jobs       JobService
	Results    ResultStore
	Checker    DomainChecker
	Metrics    http.Handler
	Logger     *zap.Logger
	StaleAfter time.Duration
	Heartbeat  time.Duration
}

// Server exposes the HTTP API for crawl jobs and their results.
type Server struct {
	engine     *gin.Engine
	jobs       JobService
	results    ResultStore
	checker    DomainChecker
	metrics    http.Handler
	logger     *zap.Logger
	staleAfter time.Duration
	heartbeat  time.Duration
	now        func() time.Time
}

// NewServer wires handlers onto a gin engine.
func NewServer(opts Options) *Server {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	s := &Server{
		engine:     gin.New(),
		jobs:       opts.Jobs,
		results:    opts.Results,
		checker:    opts.Checker,
		metrics:    opts.Metrics,
		logger:     logging.OrNop(opts.Logger).With(zap.String("component", "api")),
		staleAfter: opts.StaleAfter,
		heartbeat:  opts.Heartbeat,
		now:        time.Now,
	}
	s.engine.Use(requestID(), recovery(s.logger), requestLogger(s.logger))
	s.routes()
	return s
}

// ServeHTTP satisfies the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/openapi.yaml", s.handleOpenAPI)
	s.engine.GET("/docs", s.handleDocs)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := s.engine.Group("/api")
	api.POST("/crawl", s.createCrawl)
	api.GET("/crawl/:jobId", s.getCrawl)
	api.GET("/crawl/:jobId/events", s.streamCrawlEvents)
	api.POST("/crawl/:jobId/cancel", s.cancelCrawl)
	api.GET("/crawl/:jobId/llms.txt", s.downloadSummary)
	api.GET("/crawl/:jobId/llms-full.txt", s.downloadFull)

	api.GET("/domain-status", s.domainStatus)
	api.POST("/check-domains", s.checkDomains)
	api.GET("/admin/crawl-results", s.crawlResults)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": s.now().UTC(),
	})
}

func writeError(c *gin.Context, status int, msg string, details ...string) {
	body := ErrorResponse{Error: msg}
	if len(details) > 0 {
		body.Details = details[0]
	}
	c.AbortWithStatusJSON(status, body)
}
