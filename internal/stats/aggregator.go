package stats

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_created_total",
		Help: "The total number of tickets created",
	})
	ticketsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_resolved_total",
		Help: "The total number of tickets resolved",
	})
	ticketsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickets_open",
		Help: "Tickets created but not yet resolved",
	})
	resolutionMinutes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ticket_resolution_minutes",
		Help:    "Minutes between ticket creation and resolution",
		Buckets: []float64{5, 15, 30, 60, 120, 240, 480, 1440},
	})
)

type TechnicianStats struct {
	Resolved   int64   `json:"resolved"`
	AvgMinutes float64 `json:"avg_minutes"`
}

type Snapshot struct {
	Created      int64                     `json:"created"`
	Resolved     int64                     `json:"resolved"`
	AvgMinutes   float64                   `json:"avg_minutes"`
	ByTechnician map[int64]TechnicianStats `json:"by_technician"`
	ByDispatcher map[int64]int64           `json:"by_dispatcher"`
}

// Aggregator keeps rolling counters and running averages, updated once per
// terminal transition. Averages use the incremental mean formula
// new = (old*(n-1) + x) / n so no sample sum is stored; counters only grow.
type Aggregator struct {
	mu           sync.Mutex
	created      int64
	resolved     int64
	avgMinutes   float64
	byTechnician map[int64]*TechnicianStats
	byDispatcher map[int64]int64
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byTechnician: make(map[int64]*TechnicianStats),
		byDispatcher: make(map[int64]int64),
	}
}

func (a *Aggregator) Created(dispatcherID int64) {
	a.mu.Lock()
	a.created++
	a.byDispatcher[dispatcherID]++
	a.mu.Unlock()

	ticketsCreated.Inc()
	ticketsOpen.Inc()
}

func (a *Aggregator) Resolved(technicianID int64, latency time.Duration) {
	minutes := latency.Minutes()

	a.mu.Lock()
	a.resolved++
	a.avgMinutes += (minutes - a.avgMinutes) / float64(a.resolved)

	ts, ok := a.byTechnician[technicianID]
	if !ok {
		ts = &TechnicianStats{}
		a.byTechnician[technicianID] = ts
	}
	ts.Resolved++
	ts.AvgMinutes += (minutes - ts.AvgMinutes) / float64(ts.Resolved)
	a.mu.Unlock()

	ticketsResolved.Inc()
	ticketsOpen.Dec()
	resolutionMinutes.Observe(minutes)
}

func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := Snapshot{
		Created:      a.created,
		Resolved:     a.resolved,
		AvgMinutes:   a.avgMinutes,
		ByTechnician: make(map[int64]TechnicianStats, len(a.byTechnician)),
		ByDispatcher: make(map[int64]int64, len(a.byDispatcher)),
	}
	for id, ts := range a.byTechnician {
		out.ByTechnician[id] = *ts
	}
	for id, n := range a.byDispatcher {
		out.ByDispatcher[id] = n
	}
	return out
}
