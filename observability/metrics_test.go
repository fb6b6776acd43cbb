package observability

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"questvault/core/events"
)

// findMetric gathers the default registry and returns the sample of family
// name whose labels match want exactly.
func findMetric(t *testing.T, name string, want map[string]string) *dto.Metric {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			got := make(map[string]string, len(metric.GetLabel()))
			for _, pair := range metric.GetLabel() {
				got[pair.GetName()] = pair.GetValue()
			}
			if len(got) != len(want) {
				continue
			}
			match := true
			for k, v := range want {
				if got[k] != v {
					match = false
					break
				}
			}
			if match {
				return metric
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, want)
	return nil
}

func TestHTTPObserve(t *testing.T) {
	m := HTTP()
	m.Observe("/v1/test/observe", "POST", 200, 10*time.Millisecond)
	m.Observe("/v1/test/observe", "POST", 409, 20*time.Millisecond)
	m.Observe("", "GET", 200, time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/v1/test/observe", "POST", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/v1/test/observe", "POST", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("/v1/test/observe", "409")))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.requests.WithLabelValues("unknown", "GET", "success")), 1.0)

	latency := findMetric(t, "questvault_http_request_duration_seconds", map[string]string{"route": "/v1/test/observe", "method": "POST"})
	require.Equal(t, uint64(2), latency.GetHistogram().GetSampleCount())
	require.InDelta(t, 0.03, latency.GetHistogram().GetSampleSum(), 1e-9)

	m.RecordThrottle("/v1/test/throttle")
	m.RecordThrottle("/v1/test/throttle")
	require.Equal(t, 2.0, testutil.ToFloat64(m.throttle.WithLabelValues("/v1/test/throttle")))
}

func TestQuestObserve(t *testing.T) {
	m := Quest()
	m.Observe("test_create", "success", 5*time.Millisecond)
	m.Observe("test_create", "validation", 5*time.Millisecond)
	m.Observe("  ", "", time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("test_create", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("test_create", "validation")))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.operations.WithLabelValues("unknown", "unknown")), 1.0)

	latency := findMetric(t, "questvault_quest_operation_duration_seconds", map[string]string{"operation": "test_create"})
	require.Equal(t, uint64(2), latency.GetHistogram().GetSampleCount())
}

func TestQuestAmounts(t *testing.T) {
	m := Quest()
	m.RecordClaimed("QV1TESTCLAIM", big.NewInt(250))
	m.RecordClaimed("qv1testclaim", big.NewInt(50))
	m.RecordClaimed("qv1testclaim", big.NewInt(0))
	m.RecordClaimed("qv1testclaim", nil)
	require.Equal(t, 300.0, testutil.ToFloat64(m.claimed.WithLabelValues("qv1testclaim")))

	m.RecordRemaining(42, "qv1testpool", big.NewInt(900))
	m.RecordRemaining(42, "qv1testpool", big.NewInt(750))
	remaining := findMetric(t, "questvault_quest_pool_remaining", map[string]string{"quest": "42", "asset": "qv1testpool"})
	require.Equal(t, 750.0, remaining.GetGauge().GetValue())

	m.RecordRemaining(43, "", nil)
	require.Equal(t, 0.0, testutil.ToFloat64(m.remaining.WithLabelValues("43", "unknown")))
}

func TestBigToFloat(t *testing.T) {
	require.Equal(t, 0.0, bigToFloat(nil))
	require.Equal(t, 12.0, bigToFloat(big.NewInt(12)))
	huge := new(big.Int).Lsh(big.NewInt(1), 2000)
	require.Equal(t, 0.0, bigToFloat(huge))
}

func TestEventsEmitCountsByType(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.emitted.WithLabelValues(events.TypeQuestCreated))
	m.Emit(events.QuestCreated{QuestID: 1})
	m.Emit(events.QuestCreated{QuestID: 2})
	m.Emit(nil)
	require.Equal(t, before+2, testutil.ToFloat64(m.emitted.WithLabelValues(events.TypeQuestCreated)))
}

func TestNilRegistriesAreSafe(t *testing.T) {
	var h *httpMetrics
	var q *QuestMetrics
	var e *eventMetrics
	h.Observe("r", "GET", 200, time.Millisecond)
	h.RecordThrottle("r")
	q.Observe("op", "success", time.Millisecond)
	q.RecordClaimed("a", big.NewInt(1))
	q.RecordRemaining(1, "a", big.NewInt(1))
	e.Emit(events.QuestCreated{})
}
