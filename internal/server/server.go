// Package server exposes the orchestrator over HTTP. Every request passes
// the gateway filter before any handler logic runs; a DENY verdict is an
// unconditional rejection.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"omega/internal/audit"
	"omega/internal/devices"
	"omega/internal/gatefilter"
	"omega/internal/governor"
	"omega/internal/sandbox"
	"omega/internal/scheduler"
)

// maxFilterExcerpt bounds how much request body the gateway filter sees.
const maxFilterExcerpt = 2048

// Server wires the core subsystems to HTTP handlers.
type Server struct {
	orchestrator *scheduler.Orchestrator
	registry     *devices.Registry
	skills       *sandbox.Engine
	governor     *governor.Governor
	logger       *zap.Logger
	audit        *audit.Log
}

// Option customizes a Server.
type Option func(*Server)

// WithAudit records policy denials and device commands to the given trail.
func WithAudit(a *audit.Log) Option {
	return func(s *Server) { s.audit = a }
}

// New creates a Server over the given subsystems.
func New(o *scheduler.Orchestrator, r *devices.Registry, sk *sandbox.Engine, g *governor.Governor, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{orchestrator: o, registry: r, skills: sk, governor: g, logger: logger, audit: audit.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with the gateway filter and CORS applied.
func (s *Server) Router(allowedOrigins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsCfg.AllowOrigins = allowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	router.Use(cors.New(corsCfg))
	router.Use(s.gatewayFilter())

	router.GET("/health", s.health)
	api := router.Group("/api")
	{
		api.POST("/chat", s.postChat)
		api.GET("/devices", s.getDevices)
		api.POST("/devices/:id/command", s.postDeviceCommand)
		api.GET("/skills", s.getSkills)
		api.POST("/skills/:name/execute", s.postSkillExecute)
	}
	return router
}

// gatewayFilter runs the pre-request policy over a summary of the request.
// It executes before all handler logic, per the filter's contract.
func (s *Server) gatewayFilter() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary := c.Request.Method + " " + c.Request.URL.Path
		if c.Request.Body != nil {
			excerpt, err := io.ReadAll(io.LimitReader(c.Request.Body, maxFilterExcerpt))
			if err == nil {
				rest, _ := io.ReadAll(c.Request.Body)
				c.Request.Body = io.NopCloser(bytes.NewReader(append(excerpt, rest...)))
				summary += " " + string(excerpt)
			}
		}

		verdict := s.skills.GatewayVerdict(c.Request.Context(), summary)
		if gatefilter.Denied(verdict) {
			s.logger.Warn("request rejected by gateway filter",
				zap.String("path", c.Request.URL.Path),
				zap.String("reason", gatefilter.Reason(verdict)))
			s.audit.Record(audit.Event{
				Kind:   audit.GatewayDenied,
				Action: c.Request.Method + " " + c.Request.URL.Path,
				Detail: gatefilter.Reason(verdict),
			})
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gatefilter.Reason(verdict),
			})
			return
		}
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
}

func (s *Server) postChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := s.orchestrator.ExecuteMission(c.Request.Context(), req.Message, nil)
	if err != nil {
		var denied *scheduler.PolicyDeniedError
		var decomp *scheduler.DecompositionError
		var stalled *scheduler.GraphStalledError
		switch {
		case errors.As(err, &denied):
			s.audit.Record(audit.Event{
				Kind:   audit.MissionDenied,
				Target: denied.TaskID,
				Action: denied.Description,
				Detail: "blocked by policy",
			})
			c.JSON(http.StatusForbidden, gin.H{"error": denied.Error()})
			return
		case errors.As(err, &decomp):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": decomp.Error()})
			return
		case errors.As(err, &stalled):
			c.JSON(http.StatusOK, gin.H{
				"mission_id": report.MissionID,
				"response":   report.Final,
				"stalled":    true,
				"pending":    stalled.PendingIDs,
			})
			return
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"mission_id": report.MissionID,
		"response":   report.Final,
		"elapsed_ms": report.Elapsed.Milliseconds(),
	})
}

func (s *Server) getDevices(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.All())
}

type commandRequest struct {
	Command string `json:"command" binding:"required"`
}

func (s *Server) postDeviceCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.governor.AssessRisk(req.Command) {
		s.audit.Record(audit.Event{
			Kind:   audit.CommandDenied,
			Target: c.Param("id"),
			Action: req.Command,
			Detail: "blocked by policy",
		})
		c.JSON(http.StatusForbidden, gin.H{"error": "blocked by policy"})
		return
	}

	msg, err := s.registry.ExecuteCommand(c.Param("id"), req.Command)
	s.audit.Record(audit.Event{
		Kind:    audit.CommandExecuted,
		Target:  c.Param("id"),
		Action:  req.Command,
		Success: err == nil,
	})
	if err != nil {
		if errors.Is(err, devices.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": msg})
}

func (s *Server) getSkills(c *gin.Context) {
	names, err := s.skills.ListSkills()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"skills": names})
}

type skillRequest struct {
	Input string `json:"input"`
}

func (s *Server) postSkillExecute(c *gin.Context) {
	var req skillRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	output, err := s.skills.RunSkill(c.Request.Context(), c.Param("name"), req.Input)
	if err != nil {
		s.audit.Record(audit.Event{Kind: audit.SkillFailed, Target: c.Param("name"), Detail: err.Error()})
		var loadErr *sandbox.LoadError
		var abiErr *sandbox.ABIError
		var trapErr *sandbox.TrapError
		switch {
		case errors.Is(err, sandbox.ErrSkillNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.As(err, &loadErr), errors.As(err, &abiErr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.As(err, &trapErr):
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	s.audit.Record(audit.Event{Kind: audit.SkillExecuted, Target: c.Param("name"), Success: true})
	c.JSON(http.StatusOK, gin.H{"output": output})
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context, listen string, allowedOrigins []string) error {
	srv := &http.Server{Addr: listen, Handler: s.Router(allowedOrigins)}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("gateway listening", zap.String("addr", listen))

	select {
	case <-ctx.Done():
		shutdownCtx := context.WithoutCancel(ctx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
