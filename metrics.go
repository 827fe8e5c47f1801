package parseredux

import "github.com/prometheus/client_golang/prometheus"

var ActionCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "parseredux",
	Subsystem: "store",
	Name:      "actions",
}, []string{"kind"})

var TaskQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "parseredux",
	Subsystem: "taskqueue",
	Name:      "depth",
})

var TaskCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "parseredux",
	Subsystem: "taskqueue",
	Name:      "tasks",
}, []string{"result"})

var SessionReadCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "parseredux",
	Subsystem: "session",
	Name:      "reads",
}, []string{"source"})

// Collectors returns the package metrics for registration, plus the
// storage collector when the store owns a pebble backend.
func (st *Store) Collectors() []prometheus.Collector {
	cols := []prometheus.Collector{ActionCount, TaskQueueDepth, TaskCount, SessionReadCount}
	if ps, ok := st.storage.(*PebbleStorage); ok {
		cols = append(cols, NewPebbleCollector(ps.DB()))
	}
	return cols
}
