package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/logdex/internal/ingest"
	"github.com/tinytelemetry/logdex/internal/model"
)

// writeError maps core errors onto status codes.
func writeError(c *gin.Context, err error) {
	var pe *model.PersistenceError
	switch {
	case model.IsClientError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &pe):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "message": pe.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "message": err.Error()})
	}
}

func (s *Server) handleIngest(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	rec, err := ingest.ParsePayload(body)
	if err != nil {
		writeError(c, err)
		return
	}
	idx, err := s.store.Ingest(rec)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"index": idx, "message": createdMessage})
}

// handleFetch returns the legacy envelope, or a bare record list when a
// level filter is given.
func (s *Server) handleFetch(c *gin.Context) {
	if level, ok := c.GetQuery("level"); ok {
		recs, err := s.store.FetchByLevel(level)
		respondRecords(c, recs, err)
		return
	}
	env, err := s.store.Envelope()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, env)
}

func (s *Server) handleSearch(c *gin.Context) {
	recs, err := s.store.SearchByWord(c.Query("word"))
	respondRecords(c, recs, err)
}

func (s *Server) handleGet(c *gin.Context) {
	idx, err := strconv.ParseUint(c.Param("index"), 10, 64)
	if err != nil || idx == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be a positive integer"})
		return
	}
	rec, ok, err := s.store.Get(idx)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "log not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleReindex(c *gin.Context) {
	stats, err := s.store.Rebuild()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": stats.Records, "words": stats.Words})
}

func (s *Server) handleHealth(c *gin.Context) {
	stats, err := s.store.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).String(),
		"log_count": stats.Records,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.Stats()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// respondRecords writes bare records in index order; indices stay internal
// to the HTTP surface.
func respondRecords(c *gin.Context, in []model.IndexedRecord, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]model.LogRecord, len(in))
	for i, r := range in {
		out[i] = r.Record
	}
	c.JSON(http.StatusOK, out)
}
