package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDatabaseQuery(t *testing.T) {
	m := Initialize()
	m.DatabaseQueriesTotal.Reset()
	m.DatabaseQueryDuration.Reset()

	RecordDatabaseQuery("SELECT", "progress_items", 3*time.Millisecond, nil)
	RecordDatabaseQuery("SELECT", "progress_items", 5*time.Millisecond, nil)
	RecordDatabaseQuery("INSERT", "commitment_logs", time.Millisecond, errors.New("unique violation"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DatabaseQueriesTotal.WithLabelValues("SELECT", "progress_items", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatabaseQueriesTotal.WithLabelValues("INSERT", "commitment_logs", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(&m.DatabaseQueryDuration))
}

func TestRecordCacheLookupAndRejections(t *testing.T) {
	m := Initialize()
	m.CacheHitsTotal.Reset()
	m.CacheMissesTotal.Reset()
	m.RateLimitRejectionsTotal.Reset()

	RecordCacheLookup("dashboard", true)
	RecordCacheLookup("dashboard", false)
	RecordCacheLookup("dashboard", false)
	RecordRateLimitRejection("auth", "POST")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("dashboard")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("dashboard")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitRejectionsTotal.WithLabelValues("auth", "POST")))
}

func TestRecordSyncOperation(t *testing.T) {
	app := App()
	app.SyncOperationsTotal.Reset()

	RecordSyncOperation("progress_item", "applied")
	RecordSyncOperation("progress_item", "conflict")
	RecordSyncOperation("progress_item", "applied")

	assert.Equal(t, 2.0, testutil.ToFloat64(app.SyncOperationsTotal.WithLabelValues("progress_item", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(app.SyncOperationsTotal.WithLabelValues("progress_item", "conflict")))
}
