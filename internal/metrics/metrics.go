// Package metrics exports controller activity as Prometheus metrics.
//
// A Collector is an engine.Observer: it derives counters and in-flight
// gauges from committed events, so it sees exactly what the controller
// accepted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/slowforest/internal/ir"
)

const (
	namespace = "slowforest"
	subsystem = "form"
)

// Collector holds the controller metrics.
//
// Thread-safety: safe for concurrent use; one Collector may observe many
// controllers.
type Collector struct {
	// events counts committed events.
	// Labels: kind (ir.EventKind)
	events *prometheus.CounterVec

	// validationErrors counts errors reported by accepted async results.
	// Labels: validation_kind
	validationErrors *prometheus.CounterVec

	// submitErrors counts errors reported by accepted submit results.
	submitErrors prometheus.Counter

	validationsPending  prometheus.Gauge
	validationsInFlight prometheus.Gauge
	submitsInFlight     prometheus.Gauge
}

// New registers the controller metrics with reg. Use
// prometheus.DefaultRegisterer to expose them on the default handler.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_total",
			Help:      "Committed controller events by kind",
		}, []string{"kind"}),

		validationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "validation_errors_total",
			Help:      "Errors reported by accepted async validation results",
		}, []string{"validation_kind"}),

		submitErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "submit_errors_total",
			Help:      "Errors reported by accepted submit results",
		}),

		validationsPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "validations_pending",
			Help:      "Async validation requests waiting to run",
		}),

		validationsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "validations_in_flight",
			Help:      "Async validation runs whose result is still accepted",
		}),

		submitsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "submits_in_flight",
			Help:      "Submit attempts whose result is still accepted",
		}),
	}
}

// Observe updates the metrics for ev.
//
// Discarded results never move a gauge: the run or attempt already left
// the in-flight set when it was superseded or cancelled. Tokens cancelled
// by Controller.Close emit no events and stay counted.
func (c *Collector) Observe(ev ir.Event) {
	c.events.WithLabelValues(string(ev.Kind)).Inc()

	switch ev.Kind {
	case ir.EventValidationRequested:
		c.validationsPending.Inc()
	case ir.EventValidationRequestReplaced:
		c.validationsPending.Dec()
	case ir.EventValidationStarted:
		c.validationsPending.Dec()
		c.validationsInFlight.Inc()
	case ir.EventValidationSuperseded, ir.EventValidationFailed:
		c.validationsInFlight.Dec()
	case ir.EventValidationResolved:
		c.validationsInFlight.Dec()
		c.validationErrors.WithLabelValues(ev.ValidationKind).Add(float64(ev.ErrorCount))
	case ir.EventValidationCanceled:
		// Running requests carry their attempt ID; pending ones do not.
		if ev.AttemptID != "" {
			c.validationsInFlight.Dec()
		} else {
			c.validationsPending.Dec()
		}

	case ir.EventSubmitStarted:
		c.submitsInFlight.Inc()
	case ir.EventSubmitCanceled, ir.EventSubmitFailed:
		c.submitsInFlight.Dec()
	case ir.EventSubmitResolved:
		c.submitsInFlight.Dec()
		c.submitErrors.Add(float64(ev.ErrorCount))
	}
}
