package orchestrator

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zilinissleepin/crypto-news-trading/pkg/replay"
)

// maxTasksLimit and maxMetricsLimit are the query-param bounds spec.md §6
// pins for the replay listing endpoints; replayWindowRequest's own
// max_scan/max_publish bounds are enforced via binding tags below,
// matching the original's pydantic Field(ge=1, le=...) constraints.
const (
	maxTasksLimit   = 200
	maxMetricsLimit = 1000
)

type replayWindowRequest struct {
	Start        time.Time `json:"start" binding:"required"`
	End          time.Time `json:"end" binding:"required"`
	SourceStream string    `json:"source_stream"`
	TargetStream string    `json:"target_stream"`
	MaxScan      int       `json:"max_scan" binding:"omitempty,gte=1,lte=50000"`
	MaxPublish   int       `json:"max_publish" binding:"omitempty,gte=1,lte=10000"`
	DryRun       bool      `json:"dry_run"`
	AsyncMode    *bool     `json:"async_mode"`
}

func (r replayWindowRequest) async() bool {
	if r.AsyncMode == nil {
		return true
	}
	return *r.AsyncMode
}

func (s *Server) replayNewsWindow(c *gin.Context) {
	var req replayWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := s.replay.Submit(c.Request.Context(), replay.WindowRequest{
		Start:        req.Start,
		End:          req.End,
		SourceStream: req.SourceStream,
		TargetStream: req.TargetStream,
		MaxScan:      req.MaxScan,
		MaxPublish:   req.MaxPublish,
		DryRun:       req.DryRun,
	}, req.async())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.async() {
		c.JSON(http.StatusOK, gin.H{
			"accepted":   true,
			"async_mode": true,
			"task_id":    task.TaskID,
			"replay_id":  task.ReplayID,
			"status":     task.Status,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true, "async_mode": false, "task": task})
}

func (s *Server) getReplayTask(c *gin.Context) {
	task, err := s.replay.Get(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) listReplayTasks(c *gin.Context) {
	limit := 20
	if v, ok := c.GetQuery("limit"); ok {
		parsed, err := parseIntInRange(v, 1, maxTasksLimit)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		limit = parsed
	}
	tasks, err := s.replay.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) cancelReplayTask(c *gin.Context) {
	task, err := s.replay.Cancel(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		status := http.StatusConflict
		if task == nil {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"canceled": true, "task": task})
}

type replayRetryRequest struct {
	AsyncMode *bool `json:"async_mode"`
}

func (r replayRetryRequest) async() bool {
	if r.AsyncMode == nil {
		return true
	}
	return *r.AsyncMode
}

func (s *Server) retryReplayTask(c *gin.Context) {
	var req replayRetryRequest
	_ = c.ShouldBindJSON(&req) // body is optional; defaults to async retry

	taskID := c.Param("task_id")
	task, err := s.replay.Retry(c.Request.Context(), taskID, req.async())
	if err != nil {
		status := http.StatusConflict
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	if req.async() {
		c.JSON(http.StatusOK, gin.H{
			"accepted":   true,
			"async_mode": true,
			"task_id":    task.TaskID,
			"replay_id":  task.ReplayID,
			"status":     task.Status,
			"retry_of":   taskID,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true, "async_mode": false, "retry_of": taskID, "task": task})
}

func (s *Server) replayMetrics(c *gin.Context) {
	limit := 200
	if v, ok := c.GetQuery("limit"); ok {
		parsed, err := parseIntInRange(v, 1, maxMetricsLimit)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		limit = parsed
	}
	metrics, err := s.replay.Metrics(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func parseIntInRange(s string, min, max int) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("orchestrator: invalid limit %q", s)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("orchestrator: limit must be in [%d, %d]", min, max)
	}
	return n, nil
}
