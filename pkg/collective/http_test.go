package collective

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/hallsweep/pkg/observability"
	"github.com/Sumatoshi-tech/hallsweep/pkg/tensor"
)

func testHTTPConfig() HTTPConfig {
	return HTTPConfig{
		PollTimeout:  50 * time.Millisecond,
		RetryTimeout: 5 * time.Second,
		Client: &http.Client{
			Timeout:   time.Second,
			Transport: &http.Transport{DisableKeepAlives: true},
		},
	}
}

func startCoordinator(t *testing.T, size int) *HTTPCoordinator {
	t.Helper()

	c, err := NewHTTPCoordinator("127.0.0.1:0", size, testHTTPConfig())
	require.NoError(t, err)

	t.Cleanup(func() { assert.NoError(t, c.Close()) })

	return c
}

func TestHTTP_BroadcastAndReduce(t *testing.T) {
	t.Parallel()

	const size = 3

	shape := tensor.Shape{Points: 3, Contacts: 2}
	coord := startCoordinator(t, size)
	want := testState(t)

	var wg sync.WaitGroup

	for rank := 1; rank < size; rank++ {
		w, err := NewHTTPWorker(coord.Addr(), rank, size, testHTTPConfig())
		require.NoError(t, err)

		wg.Add(1)

		go func() {
			defer wg.Done()

			st, bErr := w.BroadcastInitialState(context.Background(), nil)
			if assert.NoError(t, bErr) {
				assert.Equal(t, want, st)
			}

			out, rErr := w.ReduceSum(context.Background(), ownedTensor(t, shape, w.Rank(), float64(w.Rank())))
			assert.NoError(t, rErr)
			assert.Nil(t, out)
			assert.NoError(t, w.Close())
		}()
	}

	// Let the workers poll past at least one timeout before the state exists.
	time.Sleep(120 * time.Millisecond)

	root, err := coord.BroadcastInitialState(context.Background(), want)
	require.NoError(t, err)
	assert.Equal(t, want, root)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	total, err := coord.ReduceSum(ctx, ownedTensor(t, shape, 0, 0.5))

	require.NoError(t, err)

	wg.Wait()

	assert.InDelta(t, 0.5, total.At(0, 0, 1), 0)
	assert.InDelta(t, 1.0, total.At(1, 0, 1), 0)
	assert.InDelta(t, 2.0, total.At(2, 0, 1), 0)
	assert.Equal(t, size, coord.Size())
	assert.Equal(t, Coordinator, coord.Rank())
}

func TestHTTP_BroadcastTwice(t *testing.T) {
	t.Parallel()

	coord := startCoordinator(t, 2)

	_, err := coord.BroadcastInitialState(context.Background(), testState(t))
	require.NoError(t, err)

	_, err = coord.BroadcastInitialState(context.Background(), testState(t))
	require.ErrorIs(t, err, ErrInvalidGroup)

	_, err = coord.BroadcastInitialState(context.Background(), nil)
	require.ErrorIs(t, err, ErrNilState)
}

func TestHTTP_RejectsUnknownRank(t *testing.T) {
	t.Parallel()

	coord := startCoordinator(t, 2)

	// The worker believes the group is larger than the coordinator does.
	w, err := NewHTTPWorker("http://"+coord.Addr()+"/", 3, 5, testHTTPConfig())
	require.NoError(t, err)

	_, err = w.ReduceSum(context.Background(), ownedTensor(t, tensor.Shape{Points: 1, Contacts: 1}, 0, 1))

	require.ErrorIs(t, err, ErrRejected)
}

func TestHTTP_ReduceWaitsForContext(t *testing.T) {
	t.Parallel()

	coord := startCoordinator(t, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := coord.ReduceSum(ctx, ownedTensor(t, tensor.Shape{Points: 1, Contacts: 1}, 0, 1))

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTP_WorkerGivesUp(t *testing.T) {
	t.Parallel()

	cfg := testHTTPConfig()
	cfg.RetryTimeout = 200 * time.Millisecond

	// Nothing listens on this port once the listener is closed.
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	w, err := NewHTTPWorker(addr, 1, 2, cfg)
	require.NoError(t, err)

	_, err = w.BroadcastInitialState(context.Background(), nil)

	require.Error(t, err)
}

func TestHTTPWorker_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPWorker("localhost:1", 0, 2, HTTPConfig{})
	require.ErrorIs(t, err, ErrInvalidGroup)

	_, err = NewHTTPWorker("localhost:1", 2, 2, HTTPConfig{})
	require.ErrorIs(t, err, ErrInvalidGroup)

	w, err := NewHTTPWorker("localhost:1", 1, 2, HTTPConfig{})
	require.NoError(t, err)

	_, err = w.BroadcastInitialState(context.Background(), testState(t))
	require.ErrorIs(t, err, ErrNotRoot)
}

func TestHTTPCoordinator_Health(t *testing.T) {
	t.Parallel()

	coord := startCoordinator(t, 1)

	rec := httptest.NewRecorder()
	coord.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, routeHealth, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHTTPCoordinator_SingleWorkerReduce(t *testing.T) {
	t.Parallel()

	coord := startCoordinator(t, 1)
	local := ownedTensor(t, tensor.Shape{Points: 1, Contacts: 2}, 0, 4)

	total, err := coord.ReduceSum(context.Background(), local)

	require.NoError(t, err)
	assert.True(t, local.Equal(total))
}

func TestHTTPCoordinator_RecordsREDMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	cfg := testHTTPConfig()
	cfg.Metrics = red

	coord, err := NewHTTPCoordinator("127.0.0.1:0", 2, cfg)
	require.NoError(t, err)

	t.Cleanup(func() { assert.NoError(t, coord.Close()) })

	handler := coord.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, routeHealth, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/reduce/9", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := make(map[string]bool)

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}

	assert.True(t, names["hallsweep.collective.requests"])
	assert.True(t, names["hallsweep.collective.errors"])
}
