package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	startsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "process",
		Name:      "starts_total",
		Help:      "Number of successful child launches.",
	}, []string{"name"})
	stopsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "process",
		Name:      "stops_total",
		Help:      "Number of observed child exits.",
	}, []string{"name"})
	restartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "process",
		Name:      "restarts_total",
		Help:      "Number of post-exit relaunches.",
	}, []string{"name"})
	crashesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "process",
		Name:      "crashes_total",
		Help:      "Number of non-zero exits.",
	}, []string{"name"})
	memoryKillsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "process",
		Name:      "memory_kills_total",
		Help:      "Number of terminations due to the memory ceiling.",
	}, []string{"name"})
	cpuPercent = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "warden",
		Subsystem: "process",
		Name:      "cpu_percent",
		Help:      "Last sampled CPU usage percentage.",
	}, []string{"name"})
	memoryRSS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "warden",
		Subsystem: "process",
		Name:      "memory_rss_bytes",
		Help:      "Last sampled resident set size in bytes.",
	}, []string{"name"})
	runningProcesses = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden",
		Subsystem: "daemon",
		Name:      "running_processes",
		Help:      "Records currently in the running state.",
	})
)

// Register registers all collectors with r, tolerating duplicates so an
// embedding application can call it more than once.
func Register(r prometheus.Registerer) error {
	cs := []prometheus.Collector{
		startsTotal, stopsTotal, restartsTotal, crashesTotal,
		memoryKillsTotal, cpuPercent, memoryRSS, runningProcesses,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler exposes the default registry over HTTP.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart(name string)      { startsTotal.WithLabelValues(name).Inc() }
func IncStop(name string)       { stopsTotal.WithLabelValues(name).Inc() }
func IncRestart(name string)    { restartsTotal.WithLabelValues(name).Inc() }
func IncCrash(name string)      { crashesTotal.WithLabelValues(name).Inc() }
func IncMemoryKill(name string) { memoryKillsTotal.WithLabelValues(name).Inc() }

func SetRunning(n int) { runningProcesses.Set(float64(n)) }

func SetUsage(name string, cpu float64, rss uint64) {
	cpuPercent.WithLabelValues(name).Set(cpu)
	memoryRSS.WithLabelValues(name).Set(float64(rss))
}

// Forget drops the per-process series when a record is removed or renamed.
func Forget(name string) {
	startsTotal.DeleteLabelValues(name)
	stopsTotal.DeleteLabelValues(name)
	restartsTotal.DeleteLabelValues(name)
	crashesTotal.DeleteLabelValues(name)
	memoryKillsTotal.DeleteLabelValues(name)
	cpuPercent.DeleteLabelValues(name)
	memoryRSS.DeleteLabelValues(name)
}
