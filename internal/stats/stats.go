package stats

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatty"

// Metric names tracked by the websocket gateway.
const (
	NumActiveConnections = "active_connections"
	NumOnlineUsers       = "online_users"
	NumRoomSubscriptions = "room_subscriptions"
	NumDroppedEvents     = "dropped_events"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
	Stop()
}

var _ StatsProvider = (*StatsUpdater)(nil)

type StatsUpdater struct {
	registry   *prometheus.Registry
	mu         sync.RWMutex
	gauges     map[string]prometheus.Gauge
	updateChan chan *metricsUpdateReq

	// chanMu guards stopped; senders hold it for reading so Stop never
	// closes updateChan under an in-flight send.
	chanMu  sync.RWMutex
	stopped bool
}

type metricsUpdateReq struct {
	name  string
	value float64
}

// NewStatsUpdater creates a new stats updater instance and exposes its
// registry on GET /metrics.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		registry:   prometheus.NewRegistry(),
		gauges:     make(map[string]prometheus.Gauge),
		updateChan: make(chan *metricsUpdateReq, 512),
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(su.registry, promhttp.HandlerOpts{}))
	su.initializeMetrics()

	return su
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the process started.",
		}, func() float64 {
			return time.Since(startTime).Seconds()
		}),
		collectors.NewGoCollector(),
	)
}

func (su *StatsUpdater) updateMetrics() {
	for req := range su.updateChan {
		su.mu.RLock()
		gauge, ok := su.gauges[req.name]
		su.mu.RUnlock()
		if !ok {
			panic("metric not found: " + req.name)
		}

		gauge.Add(req.value)
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.push(name, 1)
}

func (su *StatsUpdater) Decr(name string) {
	su.push(name, -1)
}

// push queues an update. Updates after Stop are dropped.
func (su *StatsUpdater) push(name string, value float64) {
	su.chanMu.RLock()
	defer su.chanMu.RUnlock()
	if su.stopped {
		return
	}
	su.updateChan <- &metricsUpdateReq{name: name, value: value}
}

// RegisterMetric creates a gauge for name. Registering the same name twice
// is a no-op.
func (su *StatsUpdater) RegisterMetric(name string) {
	su.mu.Lock()
	defer su.mu.Unlock()

	if _, ok := su.gauges[name]; ok {
		return
	}

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      "Current value of " + name + ".",
	})
	su.registry.MustRegister(gauge)
	su.gauges[name] = gauge
}

func (su *StatsUpdater) Run() {
	go su.updateMetrics()
}

func (su *StatsUpdater) Stop() {
	su.chanMu.Lock()
	defer su.chanMu.Unlock()
	if su.stopped {
		return
	}
	su.stopped = true
	close(su.updateChan)
}
