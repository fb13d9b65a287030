package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/offlinequeue/pkg/config"
	"github.com/nimburion/offlinequeue/pkg/health"
	"github.com/nimburion/offlinequeue/pkg/mutation"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/observability/metrics"
	"github.com/nimburion/offlinequeue/pkg/queue"
	"github.com/nimburion/offlinequeue/pkg/reachability"
)

// Queue is the part of the queue engine exposed over the management API.
type Queue interface {
	Add(ctx context.Context, req mutation.Request) (string, error)
	Remove(ctx context.Context, id string) bool
	Clear(ctx context.Context)
	Status() mutation.QueueStatus
	PendingRequests() []mutation.QueuedRequest
	ProcessQueue(ctx context.Context) queue.DrainReport
	DeadLetterItems() []mutation.DeadLetterItem
	RetryDeadLetterItem(ctx context.Context, id string) bool
	RemoveDeadLetterItem(ctx context.Context, id string) bool
	ClearDeadLetterQueue(ctx context.Context)
}

// Dependencies are the components served by the management API.
type Dependencies struct {
	Queue   Queue
	Health  *health.Registry
	Metrics *metrics.Registry
	// Connectivity, when set, lets operators flip the manual observer.
	Connectivity *reachability.Manual
}

// ManagementServer serves health, metrics and queue administration on a
// separate port from any application traffic.
type ManagementServer struct {
	*Server
	engine *gin.Engine
	deps   Dependencies
	logger logger.Logger
}

// NewManagementServer builds the gin engine, the middleware stack and the
// management routes.
//
// The middleware stack is, outermost first: request ID, metrics, access
// logging and panic recovery.
func NewManagementServer(cfg config.ManagementConfig, deps Dependencies, log logger.Logger) (*ManagementServer, error) {
	if deps.Queue == nil {
		return nil, errors.New("management server requires a queue")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	if deps.Health == nil {
		deps.Health = health.NewRegistry()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistry()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(requestID(), recordMetrics(), accessLog(log), recovery(log))

	s := &ManagementServer{
		Server: NewServer(Config{
			Host:            cfg.Host,
			Port:            cfg.Port,
			ReadTimeout:     cfg.ReadTimeout,
			WriteTimeout:    cfg.WriteTimeout,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: cfg.ShutdownTimeout,
		}, engine, log),
		engine: engine,
		deps:   deps,
		logger: log,
	}
	s.registerEndpoints()
	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *ManagementServer) Handler() http.Handler {
	return s.engine
}

func (s *ManagementServer) registerEndpoints() {
	r := s.engine

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))

	r.GET("/status", s.handleStatus)
	r.POST("/drain", s.handleDrain)

	requests := r.Group("/requests")
	requests.GET("", s.handleListRequests)
	requests.POST("", s.handleEnqueue)
	requests.DELETE("", s.handleClearRequests)
	requests.DELETE("/:id", s.handleRemoveRequest)

	dlq := r.Group("/dead-letter")
	dlq.GET("", s.handleListDeadLetter)
	dlq.DELETE("", s.handleClearDeadLetter)
	dlq.POST("/:id/retry", s.handleRetryDeadLetter)
	dlq.DELETE("/:id", s.handleRemoveDeadLetter)

	if s.deps.Connectivity != nil {
		r.GET("/connectivity", s.handleGetConnectivity)
		r.PUT("/connectivity", s.handleSetConnectivity)
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{
		Error:     code,
		Message:   message,
		RequestID: c.GetString(requestIDKey),
	})
}

// handleHealth is a liveness check and never inspects dependencies.
func (s *ManagementServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// handleReady answers 503 when any registered check is unhealthy.
func (s *ManagementServer) handleReady(c *gin.Context) {
	result := s.deps.Health.Check(c.Request.Context())
	if !result.IsHealthy() {
		c.JSON(http.StatusServiceUnavailable, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *ManagementServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Queue.Status())
}

func (s *ManagementServer) handleDrain(c *gin.Context) {
	report := s.deps.Queue.ProcessQueue(c.Request.Context())
	c.JSON(http.StatusOK, report)
}

// RequestView is the JSON form of a queued request.
type RequestView struct {
	ID        string               `json:"id"`
	Type      mutation.RequestType `json:"type"`
	Endpoint  string               `json:"endpoint"`
	Data      json.RawMessage      `json:"data,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	Retries   int                  `json:"retries"`
	Metadata  map[string]any       `json:"metadata,omitempty"`
}

// DeadLetterView is the JSON form of a dead-lettered request.
type DeadLetterView struct {
	Request   RequestView `json:"request"`
	FailedAt  time.Time   `json:"failedAt"`
	LastError string      `json:"lastError,omitempty"`
}

// EnqueueRequest is the body accepted by POST /requests.
type EnqueueRequest struct {
	Type     string          `json:"type" binding:"required"`
	Endpoint string          `json:"endpoint" binding:"required"`
	Data     json.RawMessage `json:"data"`
	Metadata map[string]any  `json:"metadata"`
}

// EnqueueResponse is returned by POST /requests.
type EnqueueResponse struct {
	ID string `json:"id"`
}

// ConnectivityView is the body of GET and PUT /connectivity.
type ConnectivityView struct {
	Connected         bool `json:"connected"`
	InternetReachable bool `json:"internetReachable"`
	Online            bool `json:"online"`
}

// NewRequestView converts a queued request to its JSON form.
func NewRequestView(req mutation.QueuedRequest) RequestView {
	return RequestView{
		ID:        req.ID,
		Type:      req.Type,
		Endpoint:  req.Endpoint,
		Data:      req.Data,
		Timestamp: req.Timestamp,
		Retries:   req.Retries,
		Metadata:  req.Metadata,
	}
}

// NewDeadLetterView converts a dead-letter item to its JSON form.
func NewDeadLetterView(item mutation.DeadLetterItem) DeadLetterView {
	return DeadLetterView{
		Request:   NewRequestView(item.Request),
		FailedAt:  item.FailedAt,
		LastError: item.LastError,
	}
}

func (s *ManagementServer) handleListRequests(c *gin.Context) {
	pending := s.deps.Queue.PendingRequests()
	views := make([]RequestView, 0, len(pending))
	for _, req := range pending {
		views = append(views, NewRequestView(req))
	}
	c.JSON(http.StatusOK, views)
}

func (s *ManagementServer) handleEnqueue(c *gin.Context) {
	var body EnqueueRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	reqType, err := mutation.ParseRequestType(body.Type)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	id, err := s.deps.Queue.Add(c.Request.Context(), mutation.Request{
		Type:     reqType,
		Endpoint: body.Endpoint,
		Data:     body.Data,
		Metadata: body.Metadata,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, EnqueueResponse{ID: id})
	case errors.Is(err, mutation.ErrValidation):
		abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, mutation.ErrNotInitialized), errors.Is(err, mutation.ErrClosed):
		abortWithError(c, http.StatusServiceUnavailable, "queue_unavailable", err.Error())
	default:
		_ = c.Error(err)
		abortWithError(c, http.StatusInternalServerError, "internal_server_error", err.Error())
	}
}

func (s *ManagementServer) handleClearRequests(c *gin.Context) {
	s.deps.Queue.Clear(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (s *ManagementServer) handleRemoveRequest(c *gin.Context) {
	if !s.deps.Queue.Remove(c.Request.Context(), c.Param("id")) {
		abortWithError(c, http.StatusNotFound, "not_found", "no pending request with id "+c.Param("id"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *ManagementServer) handleListDeadLetter(c *gin.Context) {
	items := s.deps.Queue.DeadLetterItems()
	views := make([]DeadLetterView, 0, len(items))
	for _, item := range items {
		views = append(views, NewDeadLetterView(item))
	}
	c.JSON(http.StatusOK, views)
}

func (s *ManagementServer) handleClearDeadLetter(c *gin.Context) {
	s.deps.Queue.ClearDeadLetterQueue(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (s *ManagementServer) handleRetryDeadLetter(c *gin.Context) {
	if !s.deps.Queue.RetryDeadLetterItem(c.Request.Context(), c.Param("id")) {
		abortWithError(c, http.StatusNotFound, "not_found", "no dead-lettered request with id "+c.Param("id"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *ManagementServer) handleRemoveDeadLetter(c *gin.Context) {
	if !s.deps.Queue.RemoveDeadLetterItem(c.Request.Context(), c.Param("id")) {
		abortWithError(c, http.StatusNotFound, "not_found", "no dead-lettered request with id "+c.Param("id"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *ManagementServer) handleGetConnectivity(c *gin.Context) {
	state, err := s.deps.Connectivity.Current(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusServiceUnavailable, "connectivity_unknown", err.Error())
		return
	}
	c.JSON(http.StatusOK, connectivityView(state))
}

func (s *ManagementServer) handleSetConnectivity(c *gin.Context) {
	var state reachability.State
	if err := c.ShouldBindJSON(&state); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.deps.Connectivity.Set(state)
	s.logger.Info("connectivity set by operator",
		"connected", state.Connected,
		"internet_reachable", state.InternetReachable,
	)
	c.JSON(http.StatusOK, connectivityView(state))
}

func connectivityView(state reachability.State) ConnectivityView {
	return ConnectivityView{
		Connected:         state.Connected,
		InternetReachable: state.InternetReachable,
		Online:            state.Online(),
	}
}
