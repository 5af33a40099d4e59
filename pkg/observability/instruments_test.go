package observability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
)

func TestInstrumentSet_Creates(t *testing.T) {
	t.Parallel()

	s := instrumentsOf(noopmetric.NewMeterProvider().Meter("test"))

	assert.NotNil(t, s.count("hallsweep.test.count", "count", "{point}"))
	assert.NotNil(t, s.level("hallsweep.test.level", "level", "{point}"))
	assert.NotNil(t, s.latency("hallsweep.test.latency", "latency"))
	require.NoError(t, s.err())
}

func TestInstrumentSet_JoinsAllFailures(t *testing.T) {
	t.Parallel()

	first := errors.New("bad name")
	second := errors.New("bad unit")

	s := instrumentsOf(noopmetric.NewMeterProvider().Meter("test"))
	s.track("a", first)
	s.track("b", nil)
	s.track("c", second)

	err := s.err()
	require.ErrorIs(t, err, first)
	require.ErrorIs(t, err, second)
	assert.Contains(t, err.Error(), "create instrument a")
	assert.Contains(t, err.Error(), "create instrument c")
	assert.NotContains(t, err.Error(), "instrument b")
}
