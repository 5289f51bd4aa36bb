package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "arena"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	reservationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_created_total",
			Help:      "Reservations created by facility type.",
		},
		[]string{"facility_type"},
	)

	reservationsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_rejected_total",
			Help:      "Rejected reservation requests by error kind.",
		},
		[]string{"kind"},
	)

	reservationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_transitions_total",
			Help:      "Lifecycle transitions by target status.",
		},
		[]string{"status"},
	)

	outboxDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_delivered_total",
			Help:      "Outbox delivery attempts by result.",
		},
		[]string{"result"},
	)

	backups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Database snapshots by result.",
		},
		[]string{"result"},
	)

	lastBackup = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_backup_timestamp_seconds",
			Help:      "Unix time of the last successful snapshot.",
		},
	)

	activeReservations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_reservations",
			Help:      "Reservations currently held in the conflict index.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			reservationsCreated,
			reservationsRejected,
			reservationTransitions,
			outboxDelivered,
			backups,
			lastBackup,
			activeReservations,
		)
	})
}

// ObserveHTTP records a finished request.
func ObserveHTTP(route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func IncReservationCreated(facilityType string) {
	reservationsCreated.WithLabelValues(facilityType).Inc()
}

func IncReservationRejected(kind string) {
	reservationsRejected.WithLabelValues(kind).Inc()
}

func IncTransition(status string) {
	reservationTransitions.WithLabelValues(status).Inc()
}

// IncOutbox counts delivery results: delivered, retry, failed.
func IncOutbox(result string) {
	outboxDelivered.WithLabelValues(result).Inc()
}

// ObserveBackup counts a snapshot attempt; successes also move the
// last-backup gauge.
func ObserveBackup(at time.Time, err error) {
	if err != nil {
		backups.WithLabelValues("failed").Inc()
		return
	}
	backups.WithLabelValues("ok").Inc()
	lastBackup.Set(float64(at.Unix()))
}

func SetActiveReservations(n int) {
	activeReservations.Set(float64(n))
}
