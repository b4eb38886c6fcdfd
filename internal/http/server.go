// Package http exposes the ingestion, retrieval, and deletion pipelines
// over a JSON HTTP API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/rag"
)

// Server provides the HTTP endpoints for ragd.
type Server struct {
	echo    *echo.Echo
	service *rag.Service
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(service *rag.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("rag service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		service: service,
		logger:  logger,
		config:  cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/ingest", s.handleIngest)
	v1.POST("/retrieve", s.handleRetrieve)
	v1.DELETE("/tenants/:id/documents/:docId", s.handleDeleteDocument)
	v1.DELETE("/tenants/:id", s.handleDeleteTenant)
}

// IngestRequest is the request body for POST /v1/ingest.
type IngestRequest struct {
	TenantID    string `json:"tenantId"`
	DocID       string `json:"docId"`
	Text        string `json:"text"`
	Filename    string `json:"filename"`
	UploadedAt  string `json:"uploadedAt,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// RetrieveRequest is the request body for POST /v1/retrieve.
type RetrieveRequest struct {
	TenantID string `json:"tenantId"`
	Query    string `json:"query"`
	Limit    int    `json:"limit,omitempty"`
}

// RetrieveResponse is the response body for POST /v1/retrieve.
type RetrieveResponse struct {
	Results []rag.Snippet `json:"results"`
	Context string        `json:"context"`
}

// ErrorResponse carries the failure message plus the pipeline step it
// occurred in, so callers can persist an accurate per-document state.
type ErrorResponse struct {
	Error string `json:"error"`
	Step  string `json:"step"`
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleIngest chunks, embeds, and stores a document for a tenant.
func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ingest request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Step: rag.StepValidate})
	}

	doc := rag.Document{
		ID:          req.DocID,
		Text:        req.Text,
		Filename:    req.Filename,
		ContentType: req.ContentType,
	}
	if req.UploadedAt != "" {
		uploadedAt, err := time.Parse(time.RFC3339, req.UploadedAt)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "uploadedAt must be RFC 3339", Step: rag.StepValidate})
		}
		doc.UploadedAt = uploadedAt
	}

	result, err := s.service.Ingest(c.Request().Context(), req.TenantID, doc)
	if err != nil {
		return s.pipelineError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// handleRetrieve searches a tenant's collection for the query.
func (s *Server) handleRetrieve(c echo.Context) error {
	var req RetrieveRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid retrieve request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Step: rag.StepValidate})
	}

	snippets, err := s.service.Retrieve(c.Request().Context(), req.TenantID, req.Query, req.Limit)
	if err != nil {
		return s.pipelineError(c, err)
	}

	return c.JSON(http.StatusOK, RetrieveResponse{
		Results: snippets,
		Context: assembleContext(snippets),
	})
}

// handleDeleteDocument removes a document's points from all of the tenant's
// collections.
func (s *Server) handleDeleteDocument(c echo.Context) error {
	result, err := s.service.DeleteDocument(c.Request().Context(), c.Param("id"), c.Param("docId"))
	if err != nil {
		return s.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// handleDeleteTenant removes every collection the tenant owns.
func (s *Server) handleDeleteTenant(c echo.Context) error {
	if err := s.service.DeleteTenant(c.Request().Context(), c.Param("id")); err != nil {
		return s.pipelineError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// pipelineError maps a pipeline failure to an HTTP status. Input problems
// are the caller's fault; everything downstream is an upstream dependency
// failure.
func (s *Server) pipelineError(c echo.Context, err error) error {
	step := rag.Step(err)

	status := http.StatusBadGateway
	switch step {
	case rag.StepValidate, rag.StepParse:
		status = http.StatusBadRequest
	}

	s.logger.Error("pipeline request failed",
		zap.String("step", step),
		zap.Int("status", status),
		zap.Error(err),
	)

	return c.JSON(status, ErrorResponse{Error: err.Error(), Step: step})
}

func assembleContext(snippets []rag.Snippet) string {
	out := ""
	for i, snippet := range snippets {
		if i > 0 {
			out += "\n\n---\n\n"
		}
		out += snippet.Content
	}
	return out
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
