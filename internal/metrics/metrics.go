package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "governor"

// Metrics holds the governor collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RotationSelections   *prometheus.CounterVec
	ReservationConflicts prometheus.Counter
	DeliveryEvents       *prometheus.CounterVec
	DomainVerifications  *prometheus.CounterVec
	ContentChecks        *prometheus.CounterVec
	AlertsRaised         *prometheus.CounterVec
	AccountsPaused       prometheus.Counter
	HealthQueueDropped   prometheus.Counter
	Sends                *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		RotationSelections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rotation_selections_total",
				Help:      "Account selections by outcome",
			},
			[]string{"outcome"}, // selected, exhausted, error
		),
		ReservationConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotation_reservation_conflicts_total",
			Help:      "Reservations lost to a concurrent caller",
		}),
		DeliveryEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_events_total",
				Help:      "Delivery events by type and outcome",
			},
			[]string{"event_type", "outcome"}, // applied, duplicate, unresolved, error
		),
		DomainVerifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "domain_verifications_total",
				Help:      "Record verification results",
			},
			[]string{"record_type", "status"},
		),
		ContentChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "content_checks_total",
				Help:      "Content analyses by deliverability rating",
			},
			[]string{"rating"},
		),
		AlertsRaised: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_raised_total",
				Help:      "New reputation alerts by type and severity",
			},
			[]string{"alert_type", "severity"},
		),
		AccountsPaused: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accounts_auto_paused_total",
			Help:      "Accounts paused by a hard threshold",
		}),
		HealthQueueDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_queue_dropped_total",
			Help:      "Recompute requests dropped on a full queue",
		}),
		Sends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sends_total",
				Help:      "Send attempts by outcome",
			},
			[]string{"outcome"}, // sent, failed, rejected, exhausted, error
		),
	}
}

func (m *Metrics) ObserveRotation(outcome string) {
	if m == nil {
		return
	}
	m.RotationSelections.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveReservationConflict() {
	if m == nil {
		return
	}
	m.ReservationConflicts.Inc()
}

func (m *Metrics) ObserveDeliveryEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.DeliveryEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) ObserveVerification(recordType, status string) {
	if m == nil {
		return
	}
	m.DomainVerifications.WithLabelValues(recordType, status).Inc()
}

func (m *Metrics) ObserveContentCheck(rating string) {
	if m == nil {
		return
	}
	m.ContentChecks.WithLabelValues(rating).Inc()
}

func (m *Metrics) ObserveAlert(alertType, severity string) {
	if m == nil {
		return
	}
	m.AlertsRaised.WithLabelValues(alertType, severity).Inc()
}

func (m *Metrics) ObserveAccountPaused() {
	if m == nil {
		return
	}
	m.AccountsPaused.Inc()
}

func (m *Metrics) ObserveHealthQueueDrop() {
	if m == nil {
		return
	}
	m.HealthQueueDropped.Inc()
}

func (m *Metrics) ObserveSend(outcome string) {
	if m == nil {
		return
	}
	m.Sends.WithLabelValues(outcome).Inc()
}
