package timeline

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "tlplay"
)

var (
	Requests     *prometheus.CounterVec
	Cancelled    *prometheus.CounterVec
	DecodeErrors *prometheus.CounterVec
	Timeouts     *prometheus.CounterVec
	CacheHits    *prometheus.CounterVec
	CacheMisses  *prometheus.CounterVec
	ReadersOpen  prometheus.Gauge
	CacheEntries *prometheus.GaugeVec
	Evictions    *prometheus.CounterVec
)

func init() {
	Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Timeline requests by kind",
	}, []string{"kind"})
	Cancelled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_cancelled_total",
		Help:      "Cancelled timeline requests by kind",
	}, []string{"kind"})
	DecodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decode_errors_total",
		Help:      "Reads substituted by null frames or silence",
	}, []string{"kind"})
	Timeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "timeouts_total",
		Help:      "Reads not ready within the read timeout",
	}, []string{"kind"})
	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Reads served from the frame or audio cache",
	}, []string{"kind"})
	CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Reads sent to a reader",
	}, []string{"kind"})
	ReadersOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "readers_open",
		Help:      "Open readers of the last swept timeline",
	})
	CacheEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_entries",
		Help:      "Entries in the frame and audio cache",
	}, []string{"kind"})
	Evictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_evictions_total",
		Help:      "Entries dropped from the frame and audio cache",
	}, []string{"kind"})
	prometheus.MustRegister(Requests, Cancelled, DecodeErrors, Timeouts, CacheHits, CacheMisses, ReadersOpen, CacheEntries, Evictions)
}
