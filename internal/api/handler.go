package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dtree/internal/treedb"
	"dtree/internal/treefile"
	"dtree/proto/golden"
	"dtree/proto/pipeline"
	"dtree/proto/tree"
	"dtree/proto/verify"
)

// ErrNoLibrary is returned by /trees routes when no library is configured.
var ErrNoLibrary = errors.New("tree library not configured")

// ClassifyResponse is the body returned by POST /classify.
type ClassifyResponse struct {
	Input        uint8       `json:"input"`
	Engine       string      `json:"engine"`
	Action       tree.Action `json:"action"`
	Valid        bool        `json:"valid"`
	LatencyTicks int         `json:"latency_ticks"`
}

// BatchResult is one entry of a POST /classify/batch response.
type BatchResult struct {
	Input  uint8       `json:"input"`
	Action tree.Action `json:"action"`
	Valid  bool        `json:"valid"`
	Tick   int         `json:"tick"`
}

// TreeResponse describes a tree.
type TreeResponse struct {
	Name       string           `json:"name,omitempty"`
	Nodes      []treefile.Entry `json:"nodes"`
	MaxDepth   int              `json:"max_depth"`
	WellFormed bool             `json:"well_formed"`
}

func newTreeResponse(name string, nodes []tree.Node) TreeResponse {
	depth, ok := golden.MaxDepth(nodes)
	return TreeResponse{
		Name:       name,
		Nodes:      treefile.ToEntries(nodes),
		MaxDepth:   depth,
		WellFormed: ok,
	}
}

// HealthCheck handles GET /health requests
func (h *APIHandler) HealthCheck(c *gin.Context) {
	h.mu.Lock()
	nodes := len(h.core.Tree())
	active := h.active
	ticks := h.core.Ticks()
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"status":      "OK",
		"service":     ServiceName,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"version":     ServiceVersion,
		"tree_nodes":  nodes,
		"active_tree": active,
		"ticks":       ticks,
	})
}

// GetTree handles GET /tree requests
func (h *APIHandler) GetTree(c *gin.Context) {
	h.mu.Lock()
	nodes := h.core.Tree()
	active := h.active
	h.mu.Unlock()

	c.JSON(http.StatusOK, newTreeResponse(active, nodes))
}

// PutTree handles PUT /tree requests
func (h *APIHandler) PutTree(c *gin.Context) {
	var req TreeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, invalid("%v", err))
		return
	}
	nodes, err := h.validator.ValidateTree(req)
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	h.program("", nodes)
	c.JSON(http.StatusOK, newTreeResponse("", nodes))
}

// program loads nodes into the core and records where they came from.
func (h *APIHandler) program(name string, nodes []tree.Node) {
	h.mu.Lock()
	h.core.LoadTree(nodes)
	h.active = name
	h.mu.Unlock()

	h.metrics.treeLoads.Inc()
	h.logger.Info("tree programmed", zap.String("name", name), zap.Int("nodes", len(nodes)))
}

// Classify handles POST /classify requests
func (h *APIHandler) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, invalid("%v", err))
		return
	}
	input, engine, err := h.validator.ValidateClassify(req)
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	resp := ClassifyResponse{Input: input, Engine: engine}

	h.mu.Lock()
	if engine == verify.Pipelined {
		r := h.core.ClassifyPipelined([]uint8{input})[0]
		resp.Action, resp.Valid, resp.LatencyTicks = r.Action, r.Valid, pipeline.Depth
	} else {
		resp.Action, resp.LatencyTicks, resp.Valid = h.core.ClassifySequential(input, h.timeoutTicks)
	}
	h.mu.Unlock()

	h.observe(engine, resp.Action, resp.Valid, resp.LatencyTicks)
	c.JSON(http.StatusOK, resp)
}

// ClassifyBatch handles POST /classify/batch requests. Inputs go through the
// pipelined engine on consecutive ticks.
func (h *APIHandler) ClassifyBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, invalid("%v", err))
		return
	}
	inputs, err := h.validator.ValidateBatch(req)
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	h.mu.Lock()
	results := h.core.ClassifyPipelined(inputs)
	h.mu.Unlock()

	out := make([]BatchResult, len(results))
	for i, r := range results {
		out[i] = BatchResult{Input: r.Input, Action: r.Action, Valid: r.Valid, Tick: r.Tick}
		h.observe(verify.Pipelined, r.Action, r.Valid, pipeline.Depth)
	}

	c.JSON(http.StatusOK, gin.H{
		"results": out,
		"ticks":   len(inputs) + pipeline.Depth,
	})
}

func (h *APIHandler) observe(engine string, action tree.Action, valid bool, latency int) {
	label := "none"
	if valid {
		label = strings.ToLower(action.String())
		h.metrics.latencyTicks.WithLabelValues(engine).Observe(float64(latency))
	}
	h.metrics.classifications.WithLabelValues(engine, label).Inc()
}

// Verify handles POST /verify requests. The programmed tree is verified on
// separate engine instances; the served core is not ticked. ?format=text
// returns the plain-text report.
func (h *APIHandler) Verify(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	h.mu.Lock()
	nodes := h.core.Tree()
	h.mu.Unlock()

	report, err := verify.Run(ctx, nodes, verify.Options{
		TimeoutTicks: h.timeoutTicks,
		Logger:       h.logger.With(zap.String("request_id", c.GetString(RequestIDContextKey))),
	})
	switch {
	case errors.Is(err, verify.ErrEmptyTree):
		h.metrics.verifyRuns.WithLabelValues("error").Inc()
		h.handleValidationError(c, invalid("no tree programmed"))
		return
	case errors.Is(err, verify.ErrBadChild):
		h.metrics.verifyRuns.WithLabelValues("error").Inc()
		h.handleValidationError(c, invalid("%v", err))
		return
	case report == nil:
		h.metrics.verifyRuns.WithLabelValues("error").Inc()
		h.handleError(c, err, http.StatusInternalServerError, "Verification failed")
		return
	case err != nil:
		h.metrics.verifyRuns.WithLabelValues("mismatch").Inc()
	default:
		h.metrics.verifyRuns.WithLabelValues("pass").Inc()
	}

	if c.Query("format") == "text" {
		var b strings.Builder
		if ferr := report.Format(&b); ferr != nil {
			h.handleError(c, ferr, http.StatusInternalServerError, "Internal server error")
			return
		}
		c.String(http.StatusOK, b.String())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":     report.OK(),
		"report": report,
	})
}

// ListTrees handles GET /trees requests
func (h *APIHandler) ListTrees(c *gin.Context) {
	if h.library == nil {
		h.handleError(c, ErrNoLibrary, http.StatusServiceUnavailable, ErrNoLibrary.Error())
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	infos, err := h.library.List(ctx)
	if err != nil {
		h.handleLibraryError(c, err)
		return
	}
	if infos == nil {
		infos = []treedb.Info{}
	}

	h.mu.Lock()
	active := h.active
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"trees": infos, "active": active})
}

// GetLibraryTree handles GET /trees/:name requests
func (h *APIHandler) GetLibraryTree(c *gin.Context) {
	name, nodes, ok := h.loadNamed(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newTreeResponse(name, nodes))
}

// SaveTree handles PUT /trees/:name requests
func (h *APIHandler) SaveTree(c *gin.Context) {
	if h.library == nil {
		h.handleError(c, ErrNoLibrary, http.StatusServiceUnavailable, ErrNoLibrary.Error())
		return
	}
	name, err := h.validator.ValidateName(c.Param("name"))
	if err != nil {
		h.handleValidationError(c, err)
		return
	}
	var req TreeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, invalid("%v", err))
		return
	}
	nodes, err := h.validator.ValidateTree(req)
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()
	if err := h.library.Save(ctx, name, nodes); err != nil {
		h.handleLibraryError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTreeResponse(name, nodes))
}

// DeleteTree handles DELETE /trees/:name requests
func (h *APIHandler) DeleteTree(c *gin.Context) {
	if h.library == nil {
		h.handleError(c, ErrNoLibrary, http.StatusServiceUnavailable, ErrNoLibrary.Error())
		return
	}
	name, err := h.validator.ValidateName(c.Param("name"))
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()
	if err := h.library.Delete(ctx, name); err != nil {
		h.handleLibraryError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ActivateTree handles POST /trees/:name/activate requests
func (h *APIHandler) ActivateTree(c *gin.Context) {
	name, nodes, ok := h.loadNamed(c)
	if !ok {
		return
	}

	h.program(name, nodes)
	c.JSON(http.StatusOK, newTreeResponse(name, nodes))
}

func (h *APIHandler) loadNamed(c *gin.Context) (string, []tree.Node, bool) {
	if h.library == nil {
		h.handleError(c, ErrNoLibrary, http.StatusServiceUnavailable, ErrNoLibrary.Error())
		return "", nil, false
	}
	name, err := h.validator.ValidateName(c.Param("name"))
	if err != nil {
		h.handleValidationError(c, err)
		return "", nil, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()
	nodes, err := h.library.Load(ctx, name)
	if err != nil {
		h.handleLibraryError(c, err)
		return "", nil, false
	}
	return name, nodes, true
}

// handleLibraryError maps tree library errors to status codes.
func (h *APIHandler) handleLibraryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, treedb.ErrNotFound):
		h.handleError(c, err, http.StatusNotFound, err.Error())
	case errors.Is(err, treedb.ErrInvalidName):
		h.handleError(c, err, http.StatusBadRequest, err.Error())
	default:
		h.handleError(c, err, http.StatusInternalServerError, "Internal server error")
	}
}

// handleError logs the error and sends appropriate HTTP response
func (h *APIHandler) handleError(c *gin.Context, err error, statusCode int, userMessage string) {
	requestID := c.GetString(RequestIDContextKey)
	if requestID == "" {
		requestID = "unknown"
	}

	log := h.logger.Warn
	if statusCode >= http.StatusInternalServerError {
		log = h.logger.Error
	}
	log("API error",
		zap.String("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
		zap.Int("status_code", statusCode),
	)

	c.JSON(statusCode, gin.H{
		"error":      userMessage,
		"request_id": requestID,
	})
}

// handleValidationError handles validation errors specifically
func (h *APIHandler) handleValidationError(c *gin.Context, err error) {
	h.handleError(c, err, http.StatusBadRequest, err.Error())
}
