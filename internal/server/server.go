// Package server exposes validation over HTTP.
package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rezonia/peppol-validator/internal/model"
	"github.com/rezonia/peppol-validator/internal/precheck"
	"github.com/rezonia/peppol-validator/internal/validator"
)

// Config holds server configuration
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Debug        bool
	PrecheckURL  string
}

// Server represents the HTTP API server
type Server struct {
	config    *Config
	router    *gin.Engine
	validator *validator.Validator
}

// NewServer creates a new API server
func NewServer(config *Config) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if config.Debug {
		router.Use(gin.Logger())
	}

	var opts []validator.Option
	if config.PrecheckURL != "" {
		opts = append(opts, validator.WithPrechecker(precheck.NewClient(config.PrecheckURL)))
	}

	s := &Server{
		config:    config,
		router:    router,
		validator: validator.New(opts...),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/validate", s.handleValidate)
		v1.POST("/reconcile", s.handleReconcile)
		v1.GET("/stats", s.handleStats)
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return srv.ListenAndServe()
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleValidate expects a multipart form with one "document" file and
// any number of "schematron" files.
func (s *Server) handleValidate(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "expected a multipart form"})
		return
	}

	docFiles := form.File["document"]
	if len(docFiles) != 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "exactly one document file is required"})
		return
	}
	docData, err := readPart(docFiles[0])
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read document", Details: err.Error()})
		return
	}

	var schematrons [][]byte
	for _, fh := range form.File["schematron"] {
		data, err := readPart(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read schematron", Details: err.Error()})
			return
		}
		schematrons = append(schematrons, data)
	}

	result, err := s.validator.Validate(c.Request.Context(), docData, schematrons)
	if err != nil {
		status := http.StatusUnprocessableEntity
		var inputErr *model.InputError
		if !errors.As(err, &inputErr) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, ValidateResponse{
		Valid:      result.Report.ValidationSuccess,
		Kind:       string(result.Kind),
		RulesFired: result.Report.RulesFired,
		Severity:   result.Report.Severity,
		Violations: result.Report.Violations,
		DurationMS: result.Duration.Milliseconds(),
	})
}

// handleReconcile takes the raw document as the request body and runs
// only the monetary pass.
func (s *Server) handleReconcile(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty request body"})
		return
	}

	result, err := s.validator.Reconcile(c.Request.Context(), body)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, ReconcileResponse{
		Valid:             result.Report.ValidationSuccess,
		Kind:              string(result.Kind),
		LineCount:         result.Reconciliation.LineCount,
		ComputedLineTotal: result.Reconciliation.ComputedLineTotal.StringFixed(2),
		PrecheckDelegated: result.Reconciliation.PrecheckDelegated,
		Violations:        result.Report.Violations,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats := s.validator.Stats()
	c.JSON(http.StatusOK, StatsResponse{
		Validations:     stats.Validations,
		TotalDurationMS: stats.TotalDuration.Milliseconds(),
		LargestDocument: stats.LargestDocument,
		CacheHits:       stats.CacheHits,
	})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
