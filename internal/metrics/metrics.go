package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine instruments. Keep label cardinality low: outcome/status values are
// closed enums, never free-form ids.
var (
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_dispatches_total",
			Help: "Call dispatch attempts by outcome (ok, error)",
		},
		[]string{"outcome"},
	)

	AdmissionDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_admission_denials_total",
			Help: "Admission denials by ceiling (global, client)",
		},
		[]string{"ceiling"},
	)

	CallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_callbacks_total",
			Help: "Provider status callbacks by result (applied, duplicate, error)",
		},
		[]string{"result"},
	)

	OrphansReclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dialer_orphans_reclaimed_total",
			Help: "Running campaigns reclaimed to paused by the orphan sweep",
		},
	)

	ForcedReleasesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dialer_forced_releases_total",
			Help: "Active calls force-released as timed_out by the timeout sweep",
		},
	)

	CampaignsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dialer_campaigns_running",
			Help: "Campaign workers currently owned by this process",
		},
	)
)
