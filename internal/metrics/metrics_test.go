package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordsOnIsolatedRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordEvent("follow", OutcomeCreated)
	m.RecordEvent("follow", OutcomeCreated)
	m.RecordEvent("like", OutcomeNoop)
	m.RecordConflictRetry()
	m.RecordPublished(3)
	m.RecordPublished(0)
	m.RecordDropped("notifications:u1")
	m.SubscribersChanged(2)
	m.SubscribersChanged(-1)
	m.RecordRead("single")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("follow", OutcomeCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("like", OutcomeNoop)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConflictRetriesTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PublishedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroppedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveSubscribers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReadsTotal.WithLabelValues("single")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordEvent("follow", OutcomeCreated)
		m.RecordConflictRetry()
		m.RecordPublished(1)
		m.RecordDropped("t")
		m.SubscribersChanged(1)
		m.RecordRead("all")
	})
}
