// Package promhooks exports strata's high-signal events as prometheus
// counters. Register the Hooks value with any prometheus.Registerer.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/strata"
)

type Hooks struct {
	selfHeals        *prometheus.CounterVec
	writeRetries     prometheus.Counter
	writeRejected    prometheus.Counter
	lockTimeouts     prometheus.Counter
	resurrections    prometheus.Counter
	loaderPanics     prometheus.Counter
	busGaps          prometheus.Counter
	serializerErrors prometheus.Counter
}

var _ strata.Hooks = (*Hooks)(nil)
var _ prometheus.Collector = (*Hooks)(nil)

// New creates a Hooks set. namespace becomes the prometheus namespace label
// of every metric (use the cache namespace).
func New(namespace string) *Hooks {
	labels := prometheus.Labels{"cache": namespace}
	return &Hooks{
		selfHeals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "strata_self_heals_total",
			Help:        "Stored frames deleted after failing validation on read.",
			ConstLabels: labels,
		}, []string{"reason"}),
		writeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "strata_write_retries_total",
			Help:        "Region write retries under pressure.",
			ConstLabels: labels,
		}),
		writeRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "strata_writes_rejected_total",
			Help:        "Writes lost after the retry budget was exhausted.",
			ConstLabels: labels,
		}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "strata_lock_timeouts_total",
			Help:        "Callers that gave up waiting for the loader lock.",
			ConstLabels: labels,
		}),
		resurrections: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "strata_resurrections_total",
			Help:        "Loader failures answered with a stale previous value.",
			ConstLabels: labels,
		}),
		loaderPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "strata_loader_panics_total",
			Help:        "Panics captured inside caller-supplied loaders.",
			ConstLabels: labels,
		}),
		busGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "strata_bus_gaps_total",
			Help:        "Invalidation cursor fell behind the bus retention window.",
			ConstLabels: labels,
		}),
		serializerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "strata_serializer_errors_total",
			Help:        "Failures of the L2-to-L1 serializer transform.",
			ConstLabels: labels,
		}),
	}
}

func (h *Hooks) Describe(ch chan<- *prometheus.Desc) {
	h.selfHeals.Describe(ch)
	ch <- h.writeRetries.Desc()
	ch <- h.writeRejected.Desc()
	ch <- h.lockTimeouts.Desc()
	ch <- h.resurrections.Desc()
	ch <- h.loaderPanics.Desc()
	ch <- h.busGaps.Desc()
	ch <- h.serializerErrors.Desc()
}

func (h *Hooks) Collect(ch chan<- prometheus.Metric) {
	h.selfHeals.Collect(ch)
	ch <- h.writeRetries
	ch <- h.writeRejected
	ch <- h.lockTimeouts
	ch <- h.resurrections
	ch <- h.loaderPanics
	ch <- h.busGaps
	ch <- h.serializerErrors
}

func (h *Hooks) SelfHeal(_, reason string)         { h.selfHeals.WithLabelValues(reason).Inc() }
func (h *Hooks) WriteRetry(string, int)            { h.writeRetries.Inc() }
func (h *Hooks) WriteRejected(string)              { h.writeRejected.Inc() }
func (h *Hooks) LockTimeout(string)                { h.lockTimeouts.Inc() }
func (h *Hooks) Resurrected(string)                { h.resurrections.Inc() }
func (h *Hooks) LoaderPanic(string)                { h.loaderPanics.Inc() }
func (h *Hooks) BusGap(string)                     { h.busGaps.Inc() }
func (h *Hooks) SerializerFailed(string, error)    { h.serializerErrors.Inc() }
