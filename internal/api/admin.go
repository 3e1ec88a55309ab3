package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"llmstxt-crawler/internal/storage"
)

const errNoDatabase = "result database is not configured"

func (s *Server) domainStatus(c *gin.Context) {
	if s.results == nil {
		writeError(c, http.StatusServiceUnavailable, errNoDatabase)
		return
	}
	report, err := s.results.DomainReport(c.Request.Context(), s.staleAfter)
	if err != nil {
		s.logger.Error("reading domain status failed", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to fetch domain status")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) checkDomains(c *gin.Context) {
	if s.checker == nil {
		writeError(c, http.StatusServiceUnavailable, errNoDatabase)
		return
	}
	report, err := s.checker.CheckAll(c.Request.Context())
	if err != nil {
		s.logger.Error("checking domains failed", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to check domains")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) crawlResults(c *gin.Context) {
	if s.results == nil {
		writeError(c, http.StatusServiceUnavailable, errNoDatabase)
		return
	}
	results, err := s.results.ListResults(c.Request.Context(), storage.DefaultResultLimit)
	if err != nil {
		s.logger.Error("listing crawl results failed", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to fetch crawl results")
		return
	}
	c.JSON(http.StatusOK, CrawlResultsResponse{
		Results: results,
		Stats:   storage.ComputeStats(results, s.now()),
	})
}
