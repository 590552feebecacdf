// Package metrics holds the Prometheus counters of one history session.
//
// Each session owns its registry, so several sessions (and tests) never share
// counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "transhist"

// Metrics is a set of session counters on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	MigrationsApplied  *prometheus.CounterVec
	MigrationDuration  *prometheus.HistogramVec
	CandidatesFound    prometheus.Counter
	CandidateScans     *prometheus.CounterVec
	MergesApplied      *prometheus.CounterVec
	BlacklistAdditions prometheus.Counter
	BackupsCreated     *prometheus.CounterVec
	BackupsDeleted     *prometheus.CounterVec
}

// New creates the counters on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		MigrationsApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "migrations_applied_total",
				Help:      "Migrations applied to the record store",
			},
			[]string{"name"},
		),
		MigrationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "migration_duration_seconds",
				Help:      "Time spent applying one migration",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"name"},
		),
		CandidatesFound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_candidates_found_total",
			Help:      "Merge candidates returned by candidate scans",
		}),
		CandidateScans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "merge_candidate_scans_total",
				Help:      "Merge candidate scans by result",
			},
			[]string{"result"},
		),
		MergesApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "merges_total",
				Help:      "Merge requests by outcome",
			},
			[]string{"outcome"},
		),
		BlacklistAdditions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_blacklist_additions_total",
			Help:      "Pairs added to the merge blacklist",
		}),
		BackupsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backups_created_total",
				Help:      "Backups created by series",
			},
			[]string{"type"},
		),
		BackupsDeleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backups_deleted_total",
				Help:      "Backups deleted by series and reason",
			},
			[]string{"type", "reason"},
		),
	}
}

// ObserveMigration records one applied migration.
func (m *Metrics) ObserveMigration(name string, d time.Duration) {
	m.MigrationsApplied.WithLabelValues(name).Inc()
	m.MigrationDuration.WithLabelValues(name).Observe(d.Seconds())
}

// WriteToTextfile writes every metric in the node-exporter textfile format.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
