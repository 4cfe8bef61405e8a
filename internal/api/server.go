// Package api serves the read-only state endpoint and the programmatic
// command entry point.
package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kc2rpt/annunciator/internal/app/state"
)

// Submitter queues a raw command token as if it arrived on the serial port.
type Submitter interface {
	SubmitFrom(raw, source string) bool
}

// Server is the HTTP control surface.
type Server struct {
	collector *state.Collector
	submitter Submitter
	router    *gin.Engine
}

// New creates a Server.
func New(collector *state.Collector, submitter Submitter, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		collector: collector,
		submitter: submitter,
		router:    gin.New(),
	}
	s.router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	s.router.Use(cors.New(corsConfig))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "annunciator"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api")
	{
		v1.GET("/state", s.getState)
		v1.POST("/command", s.postCommand)
	}
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.collector.Current())
}

type commandRequest struct {
	Command string `json:"command" binding:"required"`
}

// postCommand feeds a token into the same queue the serial port uses; it is
// accepted, not executed, by the time the response returns.
func (s *Server) postCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}
	if !s.submitter.SubmitFrom(req.Command, "api") {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "command queue full"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": req.Command})
}

// Handler exposes the router for serving and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server on addr.
func (s *Server) Start(addr string) error {
	return s.router.Run(addr)
}
