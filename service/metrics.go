package service

import (
	"github.com/BerniceZTT/dialer_end/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	claimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_claims_total",
			Help: "Lead claim attempts by result",
		},
		[]string{"result"},
	)

	renewalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_claim_renewals_total",
			Help: "Lease renewals by result",
		},
		[]string{"result"},
	)

	releasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_claim_releases_total",
			Help: "Lease releases by result",
		},
		[]string{"result"},
	)

	expiredClaimsCleared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dialer_expired_claims_cleared_total",
			Help: "Expired claims cleared by the sweeper",
		},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dialer_active_sessions",
			Help: "Open dialer sessions",
		},
	)

	interactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_interactions_total",
			Help: "Interactions appended to the ledger",
		},
		[]string{"type", "outcome"},
	)

	stageTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_stage_transitions_total",
			Help: "Pipeline stage transitions by target stage",
		},
		[]string{"stage", "result"},
	)
)

// stageLabel 自定义阶段统一归为custom，避免标签基数膨胀
func stageLabel(stage models.Stage) string {
	if stage.IsBuiltin() {
		return string(stage)
	}
	return "custom"
}
