package collective

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/hallsweep/pkg/observability"
	"github.com/Sumatoshi-tech/hallsweep/pkg/tensor"
)

// HTTP routes served by the coordinator.
const (
	routeHealth = "/healthz"
	routeState  = "/v1/state"
	routeReduce = "/v1/reduce/:rank"

	contentType = "application/octet-stream"
)

// Default timings for the HTTP transport.
const (
	DefaultPollTimeout     = 30 * time.Second
	DefaultRetryTimeout    = 15 * time.Minute
	defaultShutdownTimeout = 5 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

// HTTPConfig tunes the HTTP transport. Zero fields take defaults.
type HTTPConfig struct {
	// PollTimeout bounds one long-poll for the initial state.
	PollTimeout time.Duration
	// RetryTimeout bounds how long a worker keeps retrying the coordinator.
	RetryTimeout time.Duration
	// Client is the HTTP client used by workers.
	Client *http.Client
	// Logger receives transport events.
	Logger *slog.Logger
	// Tracer wraps coordinator requests in server spans when set.
	Tracer trace.Tracer
	// Metrics records request rate, errors and latency on the coordinator when set.
	Metrics *observability.REDMetrics
}

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}

	if c.RetryTimeout <= 0 {
		c.RetryTimeout = DefaultRetryTimeout
	}

	if c.Client == nil {
		c.Client = &http.Client{Timeout: c.PollTimeout + readHeaderTimeout}
	}

	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	return c
}

// HTTPCoordinator is rank 0 of a group whose workers run as separate
// processes. It serves the initial state and collects reductions over HTTP.
type HTTPCoordinator struct {
	cfg      HTTPConfig
	size     int
	listener net.Listener
	server   *http.Server

	ready chan struct{}
	state []byte

	mu        sync.Mutex
	parts     map[int]*tensor.Tensor
	completed bool
	complete  chan struct{}
	closed    chan struct{}
	once      sync.Once
}

// NewHTTPCoordinator listens on addr and starts serving a group of size workers.
func NewHTTPCoordinator(addr string, size int, cfg HTTPConfig) (*HTTPCoordinator, error) {
	err := validateGroup(Coordinator, size)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	c := &HTTPCoordinator{
		cfg:      cfg.withDefaults(),
		size:     size,
		listener: listener,
		ready:    make(chan struct{}),
		parts:    make(map[int]*tensor.Tensor, size-1),
		complete: make(chan struct{}),
		closed:   make(chan struct{}),
	}

	if size == 1 {
		c.completed = true
		close(c.complete)
	}

	c.server = &http.Server{Handler: c.Handler(), ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		serveErr := c.server.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			c.cfg.Logger.Error("coordinator server stopped", "error", serveErr)
		}
	}()

	c.cfg.Logger.Info("coordinator listening", "addr", c.Addr(), "workers", size)

	return c, nil
}

// Addr returns the address the coordinator listens on.
func (c *HTTPCoordinator) Addr() string {
	return c.listener.Addr().String()
}

// Handler returns the coordinator's routes.
func (c *HTTPCoordinator) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	if c.cfg.Tracer != nil {
		router.Use(observability.GinTracing(c.cfg.Tracer))
	}

	if c.cfg.Metrics != nil {
		router.Use(observability.GinRED(c.cfg.Metrics))
	}

	router.GET(routeHealth, func(ctx *gin.Context) { ctx.String(http.StatusOK, "ok") })
	router.GET(routeState, c.handleState)
	router.POST(routeReduce, c.handleReduce)

	return router
}

// Rank implements Communicator.
func (c *HTTPCoordinator) Rank() int { return Coordinator }

// Size implements Communicator.
func (c *HTTPCoordinator) Size() int { return c.size }

// BroadcastInitialState implements Communicator. The state becomes available
// to every worker poll from now on.
func (c *HTTPCoordinator) BroadcastInitialState(_ context.Context, state *InitialState) (*InitialState, error) {
	if state == nil {
		return nil, ErrNilState
	}

	var buf bytes.Buffer

	err := stateCodec().Encode(&buf, state)
	if err != nil {
		return nil, fmt.Errorf("encode initial state: %w", err)
	}

	select {
	case <-c.ready:
		return nil, fmt.Errorf("%w: initial state already broadcast", ErrInvalidGroup)
	default:
	}

	c.state = buf.Bytes()
	close(c.ready)

	return state.Clone(), nil
}

// ReduceSum implements Communicator. It waits for every worker's tensor.
func (c *HTTPCoordinator) ReduceSum(ctx context.Context, local *tensor.Tensor) (*tensor.Tensor, error) {
	select {
	case <-c.complete:
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	parts := make([]*tensor.Tensor, c.size)
	parts[Coordinator] = local

	for rank, part := range c.parts {
		parts[rank] = part
	}

	return sum(parts)
}

// Close stops the server.
func (c *HTTPCoordinator) Close() error {
	var err error

	c.once.Do(func() {
		close(c.closed)

		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		err = c.server.Shutdown(ctx)
	})

	return err
}

func (c *HTTPCoordinator) handleState(ctx *gin.Context) {
	timer := time.NewTimer(c.cfg.PollTimeout)
	defer timer.Stop()

	select {
	case <-c.ready:
		ctx.Data(http.StatusOK, contentType, c.state)
	case <-timer.C:
		ctx.Status(http.StatusServiceUnavailable)
	case <-c.closed:
		ctx.Status(http.StatusServiceUnavailable)
	case <-ctx.Request.Context().Done():
	}
}

func (c *HTTPCoordinator) handleReduce(ctx *gin.Context) {
	rank, err := strconv.Atoi(ctx.Param("rank"))
	if err != nil || rank <= Coordinator || rank >= c.size {
		ctx.String(http.StatusBadRequest, "rank %q not in [1, %d)", ctx.Param("rank"), c.size)

		return
	}

	var snap tensor.Snapshot

	err = tensorCodec().Decode(ctx.Request.Body, &snap)
	if err != nil {
		ctx.String(http.StatusBadRequest, "decode tensor: %v", err)

		return
	}

	part, err := tensor.FromSnapshot(snap)
	if err != nil {
		ctx.String(http.StatusBadRequest, "%v", err)

		return
	}

	c.mu.Lock()
	c.parts[rank] = part
	arrived := len(c.parts)

	if arrived == c.size-1 && !c.completed {
		c.completed = true
		close(c.complete)
	}
	c.mu.Unlock()

	c.cfg.Logger.Debug("reduction received", "rank", rank, "arrived", arrived, "expected", c.size-1)

	ctx.Status(http.StatusNoContent)
}

// HTTPWorker is a non-coordinator rank talking to an HTTPCoordinator.
type HTTPWorker struct {
	cfg     HTTPConfig
	baseURL string
	rank    int
	size    int
}

// NewHTTPWorker connects rank of a size-worker group to the coordinator at
// baseURL (for example "http://host:7070").
func NewHTTPWorker(baseURL string, rank, size int, cfg HTTPConfig) (*HTTPWorker, error) {
	err := validateGroup(rank, size)
	if err != nil {
		return nil, err
	}

	if rank == Coordinator {
		return nil, fmt.Errorf("%w: rank %d is the coordinator", ErrInvalidGroup, rank)
	}

	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}

	return &HTTPWorker{
		cfg:     cfg.withDefaults(),
		baseURL: strings.TrimRight(baseURL, "/"),
		rank:    rank,
		size:    size,
	}, nil
}

// Rank implements Communicator.
func (w *HTTPWorker) Rank() int { return w.rank }

// Size implements Communicator.
func (w *HTTPWorker) Size() int { return w.size }

// Close implements Communicator.
func (w *HTTPWorker) Close() error { return nil }

// BroadcastInitialState implements Communicator. It polls the coordinator
// until the state is available.
func (w *HTTPWorker) BroadcastInitialState(ctx context.Context, state *InitialState) (*InitialState, error) {
	if state != nil {
		return nil, ErrNotRoot
	}

	return backoff.Retry(ctx, func() (*InitialState, error) {
		body, err := w.do(ctx, http.MethodGet, routeState, nil)
		if err != nil {
			return nil, err
		}

		var got InitialState

		decodeErr := stateCodec().Decode(bytes.NewReader(body), &got)
		if decodeErr != nil {
			return nil, backoff.Permanent(fmt.Errorf("decode initial state: %w", decodeErr))
		}

		return &got, nil
	}, w.retryOptions()...)
}

// ReduceSum implements Communicator. It uploads local and returns nil.
func (w *HTTPWorker) ReduceSum(ctx context.Context, local *tensor.Tensor) (*tensor.Tensor, error) {
	var buf bytes.Buffer

	err := tensorCodec().Encode(&buf, local.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("encode tensor: %w", err)
	}

	payload := buf.Bytes()
	route := strings.Replace(routeReduce, ":rank", strconv.Itoa(w.rank), 1)

	_, err = backoff.Retry(ctx, func() ([]byte, error) {
		return w.do(ctx, http.MethodPost, route, payload)
	}, w.retryOptions()...)
	if err != nil {
		return nil, err
	}

	return nil, nil
}

func (w *HTTPWorker) retryOptions() []backoff.RetryOption {
	return []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(w.cfg.RetryTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			w.cfg.Logger.Debug("coordinator not ready", "rank", w.rank, "error", err, "retry_in", next)
		}),
	}
}

// do performs one request. Transport failures and 5xx responses are
// retryable; 4xx responses are permanent.
func (w *HTTPWorker) do(ctx context.Context, method, route string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+route, body)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}

	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := w.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", route, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%s %s: %s", method, route, resp.Status)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, backoff.Permanent(fmt.Errorf("%w: %s %s: %s: %s", ErrRejected, method, route, resp.Status, bytes.TrimSpace(data)))
	}

	return data, nil
}
