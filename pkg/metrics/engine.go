package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "blendpoint"

// Outcome labels shared by the engine counters.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Engine counts redemption, promotion and cart activity. A nil *Engine is a no-op.
type Engine struct {
	redemptions   *prometheus.CounterVec
	pointsAwarded *prometheus.CounterVec
	promoChecks   *prometheus.CounterVec
	cartMutations *prometheus.CounterVec
}

// NewEngine registers the engine collectors on reg.
func NewEngine(reg prometheus.Registerer) *Engine {
	if reg == nil {
		return &Engine{}
	}
	e := &Engine{
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemptions_total",
			Help:      "Redemption attempts by source and outcome code.",
		}, []string{"source", "outcome"}),
		pointsAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_awarded_total",
			Help:      "Loyalty points credited by source.",
		}, []string{"source"}),
		promoChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotion_checks_total",
			Help:      "Promotion validations by outcome code.",
		}, []string{"outcome"}),
		cartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Cart mutations by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(e.redemptions, e.pointsAwarded, e.promoChecks, e.cartMutations)
	return e
}

// Redemption records one attempt. outcome is "success" or the failing error code.
func (e *Engine) Redemption(source, outcome string, points int64) {
	if e == nil || e.redemptions == nil {
		return
	}
	e.redemptions.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
	if outcome == OutcomeSuccess && points > 0 {
		e.pointsAwarded.WithLabelValues(normalizeLabel(source)).Add(float64(points))
	}
}

func (e *Engine) PromotionCheck(outcome string) {
	if e == nil || e.promoChecks == nil {
		return
	}
	e.promoChecks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (e *Engine) CartMutation(operation, outcome string) {
	if e == nil || e.cartMutations == nil {
		return
	}
	e.cartMutations.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}
