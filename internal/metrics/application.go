package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ApplicationMetrics tracks domain activity: entity changes, completions, sync replay
type ApplicationMetrics struct {
	EntityChangesTotal   prometheus.CounterVec
	ItemsCompletedTotal  prometheus.Counter
	CheckInsTotal        prometheus.CounterVec
	SyncOperationsTotal  prometheus.CounterVec
	SyncBatchSize        prometheus.Histogram
	SearchRequestsTotal  prometheus.CounterVec
	ExportsTotal         prometheus.CounterVec
	AuthEventsTotal      prometheus.CounterVec
	WebsocketConnections prometheus.Gauge
	CleanupDeletedTotal  prometheus.CounterVec
}

var (
	appInstance *ApplicationMetrics
	appOnce     sync.Once
)

// InitializeApplicationMetrics creates and registers all application metrics
func InitializeApplicationMetrics() *ApplicationMetrics {
	appOnce.Do(func() {
		appInstance = &ApplicationMetrics{
			EntityChangesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "daybook_entity_changes_total",
					Help: "Total number of entity mutations",
				},
				[]string{"entity", "action"},
			),
			ItemsCompletedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "daybook_progress_items_completed_total",
					Help: "Total number of progress items moved to done",
				},
			),
			CheckInsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "daybook_commitment_checkins_total",
					Help: "Total number of commitment check-ins and undos",
				},
				[]string{"action"},
			),
			SyncOperationsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "daybook_sync_operations_total",
					Help: "Total number of replayed offline operations by outcome",
				},
				[]string{"entity", "status"},
			),
			SyncBatchSize: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "daybook_sync_batch_size",
					Help:    "Operations per sync request",
					Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
				},
			),
			SearchRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "daybook_search_requests_total",
					Help: "Total number of search requests by backend",
				},
				[]string{"backend", "status"},
			),
			ExportsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "daybook_exports_total",
					Help: "Total number of data exports by destination",
				},
				[]string{"destination"},
			),
			AuthEventsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "daybook_auth_events_total",
					Help: "Authentication events by type and outcome",
				},
				[]string{"event", "status"},
			),
			WebsocketConnections: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "daybook_websocket_connections",
					Help: "Currently connected websocket clients",
				},
			),
			CleanupDeletedTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "daybook_cleanup_deleted_total",
					Help: "Rows removed by the maintenance worker",
				},
				[]string{"table"},
			),
		}
	})
	return appInstance
}

// App returns the application metrics, registering them on first use
func App() *ApplicationMetrics {
	return InitializeApplicationMetrics()
}

// RecordEntityChange counts a create, update or delete
func RecordEntityChange(entity, action string) {
	App().EntityChangesTotal.WithLabelValues(entity, action).Inc()
}

// RecordItemCompleted counts a progress item reaching done
func RecordItemCompleted() {
	App().ItemsCompletedTotal.Inc()
}

// RecordCheckIn counts a check-in ("checkin") or its undo ("undo")
func RecordCheckIn(action string) {
	App().CheckInsTotal.WithLabelValues(action).Inc()
}

// RecordSyncOperation counts one replayed operation
func RecordSyncOperation(entity, status string) {
	App().SyncOperationsTotal.WithLabelValues(entity, status).Inc()
}

// RecordSearch counts a search against backend ("elasticsearch" or "sql")
func RecordSearch(backend, status string) {
	App().SearchRequestsTotal.WithLabelValues(backend, status).Inc()
}

// RecordAuthEvent counts login, refresh and similar events
func RecordAuthEvent(event, status string) {
	App().AuthEventsTotal.WithLabelValues(event, status).Inc()
}
