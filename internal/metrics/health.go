package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ObserveProbeDecision counts a health endpoint classification.
func (m *ServerMetrics) ObserveProbeDecision(reason string) {
	m.probeDecisions.WithLabelValues(reason).Inc()
}

// ObserveHealthVerdict counts a verdict served to an authorized caller.
func (m *ServerMetrics) ObserveHealthVerdict(status string) {
	m.healthVerdicts.WithLabelValues(status).Inc()
}

// ObserveHealthCheck records one component check. The "database" check
// also drives datastore_up.
func (m *ServerMetrics) ObserveHealthCheck(name string, d time.Duration, err error) {
	m.checkDuration.WithLabelValues(name).Observe(d.Seconds())
	if err != nil {
		m.checkFailures.WithLabelValues(name).Inc()
	}
	if name == "database" {
		if err != nil {
			m.datastoreUp.Set(0)
		} else {
			m.datastoreUp.Set(1)
		}
	}
}

// RegisterDBStats exports the connection pool stats of db under dbName.
func (m *ServerMetrics) RegisterDBStats(db *sql.DB, dbName string) error {
	return m.reg.Register(collectors.NewDBStatsCollector(db, dbName))
}
