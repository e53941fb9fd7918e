package trace

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsTracer counts capability calls by result.
type MetricsTracer struct {
	calls *prometheus.CounterVec
}

// NewMetricsTracer registers its collector with reg; a nil reg skips registration.
func NewMetricsTracer(reg prometheus.Registerer) (*MetricsTracer, error) {
	calls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nearbyhal_capability_calls_total",
			Help: "Capability operations by capability, operation and result.",
		},
		[]string{"capability", "op", "result"},
	)
	if reg != nil {
		if err := reg.Register(calls); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				calls = are.ExistingCollector.(*prometheus.CounterVec)
			} else {
				return nil, err
			}
		}
	}
	return &MetricsTracer{calls: calls}, nil
}

// Calls exposes the counter for inspection.
func (t *MetricsTracer) Calls() *prometheus.CounterVec {
	return t.calls
}

func (t *MetricsTracer) Begin(capability, op string) Call {
	return &metricsCall{calls: t.calls, capability: capability, op: op}
}

type metricsCall struct {
	calls      *prometheus.CounterVec
	capability string
	op         string
}

func (c *metricsCall) Return(v any) {
	c.calls.WithLabelValues(c.capability, c.op, resultLabel(v)).Inc()
}

func (c *metricsCall) ReturnVoid() {
	c.calls.WithLabelValues(c.capability, c.op, "void").Inc()
}
