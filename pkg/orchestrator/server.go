// Package orchestrator exposes the HTTP control surface for the trading
// pipeline: strategy start/stop, runtime config overrides, per-stream
// metrics, and the full replay-task lifecycle. It wraps pkg/replay and a
// Redis client used for the small set of control flags the orchestrator
// itself owns (strategy:active, runtime:config).
package orchestrator

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
	"github.com/zilinissleepin/crypto-news-trading/pkg/replay"
)

// streams lists every stream /metrics/summary reports a length for.
var streams = []string{
	models.StreamNewsRaw,
	models.StreamNewsEntity,
	models.StreamSignalRaw,
	models.StreamSignalTradeable,
	models.StreamSignalUniverse,
	models.StreamOrderIntent,
	models.StreamOrderApproved,
	models.StreamOrderRejected,
	models.StreamExecutionReport,
	models.StreamPnLSnapshot,
}

// Server is the orchestrator's HTTP handler set.
type Server struct {
	router *gin.Engine
	redis  *redis.Client
	replay *replay.Engine
	env    string
}

// New builds a Server wired to redisClient (for control flags and stream
// length metrics) and a replay engine. env is surfaced on /health.
func New(redisClient *redis.Client, replayEngine *replay.Engine, env string) *Server {
	s := &Server{router: gin.Default(), redis: redisClient, replay: replayEngine, env: env}
	s.routes()
	return s
}

// Handler returns the underlying http.Handler, for use with http.Server
// or httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Run blocks serving on addr (e.g. ":8080").
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func (s *Server) routes() {
	s.router.GET("/health", s.health)
	s.router.POST("/strategy/start", s.strategyStart)
	s.router.POST("/strategy/stop", s.strategyStop)
	s.router.POST("/config/update", s.configUpdate)
	s.router.GET("/metrics/summary", s.metricsSummary)
	s.router.POST("/replay/news-window", s.replayNewsWindow)
	s.router.GET("/replay/tasks/:task_id", s.getReplayTask)
	s.router.GET("/replay/tasks", s.listReplayTasks)
	s.router.POST("/replay/tasks/:task_id/cancel", s.cancelReplayTask)
	s.router.POST("/replay/tasks/:task_id/retry", s.retryReplayTask)
	s.router.GET("/replay/metrics", s.replayMetrics)
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	pong, err := s.redis.Ping(ctx).Result()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "redis": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "redis": pong == "PONG", "env": s.env})
}

func (s *Server) strategyStart(c *gin.Context) {
	if err := s.redis.Set(c.Request.Context(), "strategy:active", "1", 0).Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": true})
}

func (s *Server) strategyStop(c *gin.Context) {
	if err := s.redis.Set(c.Request.Context(), "strategy:active", "0", 0).Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": false})
}

type configUpdateRequest struct {
	Values map[string]string `json:"values"`
}

func (s *Server) configUpdate(c *gin.Context) {
	var req configUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if len(req.Values) > 0 {
		fields := make(map[string]any, len(req.Values))
		for k, v := range req.Values {
			fields[k] = v
		}
		if err := s.redis.HSet(ctx, "runtime:config", fields).Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	values, err := s.redis.HGetAll(ctx, "runtime:config").Result()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true, "values": values})
}

func (s *Server) metricsSummary(c *gin.Context) {
	ctx := c.Request.Context()
	lengths := make(map[string]int64, len(streams))
	for _, stream := range streams {
		length, err := s.redis.XLen(ctx, stream).Result()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		lengths[stream] = length
	}
	active, _ := s.redis.Get(ctx, "strategy:active").Result()
	c.JSON(http.StatusOK, gin.H{"stream_lengths": lengths, "strategy_active": active == "1"})
}
