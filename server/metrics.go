package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uber-go/tally/v4"
	promreporter "github.com/uber-go/tally/v4/prometheus"
)

// Metrics wraps a tally.Scope reporting through a Prometheus registry
// rather than reaching for the Prometheus client directly. The engine
// only needs a handful of counters/timers so the surface here is
// deliberately small.
type Metrics struct {
	scope tally.Scope

	ticksRun        tally.Counter
	roundsRun       tally.Counter
	roundErrors     tally.Counter
	matchesFormed   tally.Counter
	anchorsReinsert tally.Counter
	rollbacks       tally.Counter
	roundDuration   tally.Timer
}

// NewMetrics builds a Metrics instance and returns the Prometheus
// registry it reports through, so a caller can mount it behind an HTTP
// handler (see cmd/matchengine).
func NewMetrics(namespace string) (*Metrics, *prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	reporter := promreporter.NewReporter(promreporter.Options{Registerer: registry})

	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:         namespace,
		CachedReporter: reporter,
		Separator:      promreporter.DefaultSeparator,
	}, time.Second)
	_ = closer // closed implicitly on process exit; engine lifetime == process lifetime

	m := &Metrics{
		scope:           scope,
		ticksRun:        scope.Counter("ticks_run"),
		roundsRun:       scope.Counter("rounds_run"),
		roundErrors:     scope.Counter("round_errors"),
		matchesFormed:   scope.Counter("matches_formed"),
		anchorsReinsert: scope.Counter("anchors_reinserted"),
		rollbacks:       scope.Counter("rollbacks"),
		roundDuration:   scope.Timer("round_duration"),
	}
	return m, registry, nil
}

func (m *Metrics) Tick()             { m.ticksRun.Inc(1) }
func (m *Metrics) Round()            { m.roundsRun.Inc(1) }
func (m *Metrics) RoundError()       { m.roundErrors.Inc(1) }
func (m *Metrics) MatchFormed()      { m.matchesFormed.Inc(1) }
func (m *Metrics) AnchorReinserted() { m.anchorsReinsert.Inc(1) }
func (m *Metrics) Rollback()         { m.rollbacks.Inc(1) }

func (m *Metrics) ObserveRound(d time.Duration) { m.roundDuration.Record(d) }

// NopMetrics is used by tests that do not care about instrumentation.
func NopMetrics() *Metrics {
	scope := tally.NoopScope
	return &Metrics{
		scope:           scope,
		ticksRun:        scope.Counter("ticks_run"),
		roundsRun:       scope.Counter("rounds_run"),
		roundErrors:     scope.Counter("round_errors"),
		matchesFormed:   scope.Counter("matches_formed"),
		anchorsReinsert: scope.Counter("anchors_reinserted"),
		rollbacks:       scope.Counter("rollbacks"),
		roundDuration:   scope.Timer("round_duration"),
	}
}
