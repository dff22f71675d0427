// Package metrics exposes prometheus counters for both contexts. One
// Registry serves the /metrics endpoint; each context receives a recorder
// that satisfies its own Metrics port.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketdao"

type Registry struct {
	reg *prometheus.Registry

	Voting     *VotingRecorder
	Settlement *SettlementRecorder
}

// NewRegistry builds a private registry with process and Go collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Registry{
		reg:        reg,
		Voting:     newVotingRecorder(factory),
		Settlement: newSettlementRecorder(factory),
	}
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

type VotingRecorder struct {
	votesCast         *prometheus.CounterVec
	autoVoteDecisions *prometheus.CounterVec
	finalized         *prometheus.CounterVec
}

func newVotingRecorder(factory promauto.Factory) *VotingRecorder {
	return &VotingRecorder{
		votesCast: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dao",
			Name:      "votes_cast_total",
			Help:      "votes recorded, split by manual or auto",
		}, []string{"auto"}),
		autoVoteDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dao",
			Name:      "autovote_decisions_total",
			Help:      "auto-vote evaluations by decision source",
		}, []string{"source", "voted"}),
		finalized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dao",
			Name:      "proposals_finalized_total",
			Help:      "proposals finalized by outcome",
		}, []string{"outcome"}),
	}
}

func (v *VotingRecorder) VoteCast(auto bool) {
	v.votesCast.WithLabelValues(strconv.FormatBool(auto)).Inc()
}

func (v *VotingRecorder) AutoVoteDecision(source string, voted bool) {
	v.autoVoteDecisions.WithLabelValues(source, strconv.FormatBool(voted)).Inc()
}

func (v *VotingRecorder) ProposalFinalized(outcome string) {
	v.finalized.WithLabelValues(outcome).Inc()
}

type SettlementRecorder struct {
	settled      *prometheus.CounterVec
	distributed  *prometheus.CounterVec
	manualReview *prometheus.CounterVec
	ledgerRetry  *prometheus.CounterVec
}

func newSettlementRecorder(factory promauto.Factory) *SettlementRecorder {
	return &SettlementRecorder{
		settled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "order_steps_total",
			Help:      "order lifecycle steps completed",
		}, []string{"step"}),
		distributed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "commission_distributions_total",
			Help:      "commission distribution attempts by outcome",
		}, []string{"outcome"}),
		manualReview: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "manual_reviews_total",
			Help:      "orders flagged for manual review by failed step",
		}, []string{"step"}),
		ledgerRetry: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "ledger_retries_total",
			Help:      "ledger transfer retries by leg",
		}, []string{"leg"}),
	}
}

func (s *SettlementRecorder) OrderSettled(step string) {
	s.settled.WithLabelValues(step).Inc()
}

func (s *SettlementRecorder) CommissionDistributed(outcome string) {
	s.distributed.WithLabelValues(outcome).Inc()
}

func (s *SettlementRecorder) ManualReviewFlagged(step string) {
	s.manualReview.WithLabelValues(step).Inc()
}

func (s *SettlementRecorder) LedgerRetry(leg string) {
	s.ledgerRetry.WithLabelValues(leg).Inc()
}
