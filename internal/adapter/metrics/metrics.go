package metrics

import (
	"strconv"
	"time"

	"savings-lockbox/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for lockbox instructions and ledger transfers.
type Metrics struct {
	// Instruction latency by instruction and outcome
	InstructionLatency *prometheus.HistogramVec

	// Instruction count by instruction and outcome
	InstructionTotal *prometheus.CounterVec

	// Settled transfer volume by movement kind
	TransferAmount *prometheus.CounterVec

	TargetsReached prometheus.Counter

	// HTTP requests by method, route template and status
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// New registers the lockbox metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		InstructionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lockbox_instruction_duration_seconds",
			Help:    "Duration of lockbox instructions including storage round trips",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"instruction", "outcome"}),

		InstructionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lockbox_instructions_total",
			Help: "Total lockbox instructions by outcome",
		}, []string{"instruction", "outcome"}), // outcome: "ok", "replayed" or an error code

		TransferAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lockbox_transfer_amount_total",
			Help: "Total base units moved by lockbox instructions",
		}, []string{"kind"}),

		TargetsReached: factory.NewCounter(prometheus.CounterOpts{
			Name: "lockbox_targets_reached_total",
			Help: "Number of lockboxes whose savings target was reached",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lockbox_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "route", "status"}),

		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lockbox_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveInstruction records one instruction outcome and its latency.
func (m *Metrics) ObserveInstruction(instruction, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.InstructionTotal.WithLabelValues(instruction, outcome).Inc()
	m.InstructionLatency.WithLabelValues(instruction, outcome).Observe(time.Since(start).Seconds())
}

// ObserveTransfer records a settled movement.
func (m *Metrics) ObserveTransfer(kind domain.MovementKind, amount uint64) {
	if m != nil {
		m.TransferAmount.WithLabelValues(string(kind)).Add(float64(amount))
	}
}

func (m *Metrics) IncTargetReached() {
	if m != nil {
		m.TargetsReached.Inc()
	}
}

// ObserveHTTP records one served request. route is the matched template, not the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}
