// Package metrics counts install, provisioning and launch activity in a
// private Prometheus registry. The CLI dumps the registry to a node-exporter
// textfile when --metrics-file is set. A nil *Recorder discards everything.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vinestudio"

// Result label values.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
	ResultCached = "cached"
)

// Recorder holds the launcher's collectors.
type Recorder struct {
	registry *prometheus.Registry

	packages       *prometheus.CounterVec
	downloadBytes  prometheus.Counter
	installSeconds *prometheus.HistogramVec
	provisions     *prometheus.CounterVec
	launches       *prometheus.CounterVec
	killed         prometheus.Counter
}

// New registers a fresh set of collectors.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.packages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packages_total",
			Help:      "Studio packages processed by the installer",
		},
		[]string{"result"},
	)
	r.downloadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes downloaded for studio packages and runtime archives",
		},
	)
	r.installSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "install_duration_seconds",
			Help:      "Duration of studio version installs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"result"},
	)
	r.provisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provisions_total",
			Help:      "Runner and DXVK provisioning attempts",
		},
		[]string{"kind", "result"},
	)
	r.launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "Studio launch attempts",
		},
		[]string{"mode", "result"},
	)
	r.killed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processes_killed_total",
			Help:      "Prefix processes signalled by the process registry",
		},
	)

	r.registry.MustRegister(r.packages, r.downloadBytes, r.installSeconds, r.provisions, r.launches, r.killed)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) PackageDone(result string) {
	if r == nil {
		return
	}
	r.packages.WithLabelValues(result).Inc()
}

func (r *Recorder) AddDownloadBytes(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.downloadBytes.Add(float64(n))
}

func (r *Recorder) ObserveInstall(d time.Duration, err error) {
	if r == nil {
		return
	}
	r.installSeconds.WithLabelValues(resultOf(err)).Observe(d.Seconds())
}

func (r *Recorder) Provisioned(kind string, err error) {
	if r == nil {
		return
	}
	r.provisions.WithLabelValues(kind, resultOf(err)).Inc()
}

func (r *Recorder) Launched(mode string, err error) {
	if r == nil {
		return
	}
	r.launches.WithLabelValues(mode, resultOf(err)).Inc()
}

func (r *Recorder) ProcessesKilled(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.killed.Add(float64(n))
}

// WriteTextfile writes the registry in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func resultOf(err error) string {
	if err != nil {
		return ResultFailed
	}
	return ResultOK
}
