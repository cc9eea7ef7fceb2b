package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics counts order and payment lifecycle outcomes.
type OrderMetrics struct {
	created       *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	sessions      *prometheus.CounterVec
	polls         *prometheus.CounterVec
	confirmations *prometheus.CounterVec
	compensations *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders placed, by payment method.",
		}, []string{"payment_method"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_rejected_total",
			Help: "Order placements rejected, by error code.",
		}, []string{"code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order status transitions applied.",
		}, []string{"from", "to"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_sessions_total",
			Help: "Payment sessions reaching a state, by channel.",
		}, []string{"channel", "state"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_status_polls_total",
			Help: "Provider status queries issued by the reconciler.",
		}, []string{"channel", "outcome"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_confirmations_total",
			Help: "Payment confirmations applied, by source.",
		}, []string{"channel", "source"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_compensations_total",
			Help: "Undo steps run after a failed placement, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.created, m.rejected, m.transitions, m.sessions, m.polls, m.confirmations, m.compensations)
	return m
}

func (m *OrderMetrics) OrderCreated(method string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(normalizeLabel(method)).Inc()
}

func (m *OrderMetrics) OrderRejected(code string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(code)).Inc()
}

func (m *OrderMetrics) Transition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *OrderMetrics) SessionState(channel, state string) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.WithLabelValues(normalizeLabel(channel), normalizeLabel(state)).Inc()
}

// Poll records one reconciler query; outcome is pending, confirmed, failed or error.
func (m *OrderMetrics) Poll(channel, outcome string) {
	if m == nil || m.polls == nil {
		return
	}
	m.polls.WithLabelValues(normalizeLabel(channel), normalizeLabel(outcome)).Inc()
}

// Confirmation records an applied confirmation; source is poll or callback.
func (m *OrderMetrics) Confirmation(channel, source string) {
	if m == nil || m.confirmations == nil {
		return
	}
	m.confirmations.WithLabelValues(normalizeLabel(channel), normalizeLabel(source)).Inc()
}

func (m *OrderMetrics) Compensation(result string) {
	if m == nil || m.compensations == nil {
		return
	}
	m.compensations.WithLabelValues(normalizeLabel(result)).Inc()
}
