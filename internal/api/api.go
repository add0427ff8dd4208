package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"dtree"
	"dtree/internal/treedb"
	"dtree/proto/tree"
)

// This file holds the handler type, its dependencies and the route table.
// - handler.go:    HTTP handlers
// - middleware.go: request id, logging, metrics, CORS
// - metrics.go:    prometheus collectors
// - validator.go:  request validation

const (
	DefaultTimeoutTicks = 20
	DefaultMaxBatch     = 4096
	DefaultTimeout      = 30 * time.Second
	ServiceVersion      = "1.0.0"
	ServiceName         = "dtree"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
)

// TreeLibrary stores named trees.
type TreeLibrary interface {
	Save(ctx context.Context, name string, nodes []tree.Node) error
	Load(ctx context.Context, name string) ([]tree.Node, error)
	List(ctx context.Context) ([]treedb.Info, error)
	Delete(ctx context.Context, name string) error
}

// Options configures an APIHandler.
type Options struct {
	TimeoutTicks int                  // Sequential classification bound
	MaxBatch     int                  // Largest /classify/batch request
	Logger       *zap.Logger          // Nil means no logging
	Registry     *prometheus.Registry // Nil means a fresh registry
}

// APIHandler serves one core over HTTP. The core is a clocked model with no
// internal locking; every request that ticks it holds mu for its whole run.
type APIHandler struct {
	mu     sync.Mutex
	core   *dtree.Core
	active string // Library name of the programmed tree, "" if programmed directly

	library      TreeLibrary
	validator    *Validator
	timeoutTicks int
	logger       *zap.Logger
	registry     *prometheus.Registry
	metrics      *Metrics
}

// NewAPIHandler creates a handler for core. library may be nil, in which case
// the /trees routes answer 503.
func NewAPIHandler(core *dtree.Core, library TreeLibrary, opts Options) *APIHandler {
	if opts.TimeoutTicks <= 0 {
		opts.TimeoutTicks = DefaultTimeoutTicks
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = DefaultMaxBatch
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	return &APIHandler{
		core:         core,
		library:      library,
		validator:    NewValidator(opts.MaxBatch),
		timeoutTicks: opts.TimeoutTicks,
		logger:       opts.Logger,
		registry:     opts.Registry,
		metrics:      NewMetrics(opts.Registry),
	}
}

// NewServer returns an http.Server for the routes, ready for ListenAndServe.
func (h *APIHandler) NewServer(addr string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h.SetupRoutes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}

// SetupRoutes configures all API routes.
func (h *APIHandler) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(requestIDMiddleware())
	router.Use(h.loggerMiddleware())
	router.Use(h.metricsMiddleware())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", h.MetricsHandler())

	router.GET("/tree", h.GetTree)
	router.PUT("/tree", h.PutTree)

	router.POST("/classify", h.Classify)
	router.POST("/classify/batch", h.ClassifyBatch)
	router.POST("/verify", h.Verify)

	router.GET("/trees", h.ListTrees)
	router.GET("/trees/:name", h.GetLibraryTree)
	router.PUT("/trees/:name", h.SaveTree)
	router.DELETE("/trees/:name", h.DeleteTree)
	router.POST("/trees/:name/activate", h.ActivateTree)

	return router
}
