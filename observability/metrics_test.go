package observability

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"roundledger/core/events"
)

func TestRoundsMetricsRecordsOperationsAndValue(t *testing.T) {
	m := newRoundsMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.collectors()...)

	m.ObserveOperation("stake", "ok", 3*time.Millisecond)
	m.ObserveOperation("stake", "WrongPhase", time.Millisecond)
	m.ObserveOperation("", "", 0)
	m.AddValue("payout", big.NewInt(2_800))
	m.AddValue("payout", big.NewInt(200))
	m.AddValue("payout", big.NewInt(0))
	m.AddValue("payout", nil)
	m.SetHalted(true)
	m.RecordCustody(big.NewInt(42))

	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("stake", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("stake", "WrongPhase")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("unknown", "unknown")))
	require.Equal(t, 3_000.0, testutil.ToFloat64(m.value.WithLabelValues("payout")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.halted))
	require.Equal(t, 42.0, testutil.ToFloat64(m.custody))

	m.SetHalted(false)
	require.Zero(t, testutil.ToFloat64(m.halted))
}

func TestNilRoundsMetricsIsSafe(t *testing.T) {
	var m *RoundsMetrics
	m.ObserveOperation("claim", "ok", time.Second)
	m.AddValue("payout", big.NewInt(1))
	m.SetHalted(true)
	m.RecordCustody(big.NewInt(1))
}

func TestEventsCountByType(t *testing.T) {
	registry := Events()
	before := testutil.ToFloat64(registry.emitted.WithLabelValues(events.TypeLedgerHalted))
	registry.Emit(events.LedgerHalted{})
	registry.Emit(nil)
	require.Equal(t, before+1, testutil.ToFloat64(registry.emitted.WithLabelValues(events.TypeLedgerHalted)))
}

func TestBigToFloat(t *testing.T) {
	require.Zero(t, bigToFloat(nil))
	require.Equal(t, 1e18, bigToFloat(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))
}
