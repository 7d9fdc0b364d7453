package mddi

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"time"

	graphite "github.com/cyberdelia/go-metrics-graphite"
	"github.com/mddilink/mddi/config"
	mp "github.com/nbrownus/go-metrics-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

// startStats validates the stats section and returns a function that starts
// the exporter, or nil when stats are disabled.
func startStats(l *logrus.Logger, c *config.C, buildVersion string, configTest bool) (func(), error) {
	mType := c.GetString("stats.type", "")
	if mType == "" || mType == "none" {
		return nil, nil
	}

	interval := c.GetDuration("stats.interval", 0)
	if interval == 0 {
		return nil, fmt.Errorf("stats.interval was an invalid duration: %s", c.GetString("stats.interval", ""))
	}

	var startFn func()
	var err error
	switch mType {
	case "graphite":
		startFn, err = startGraphiteStats(l, interval, c, configTest)
	case "prometheus":
		startFn, err = startPrometheusStats(l, interval, c, buildVersion, configTest)
	default:
		return nil, fmt.Errorf("stats.type was not understood: %s", mType)
	}
	if err != nil {
		return nil, err
	}

	metrics.RegisterDebugGCStats(metrics.DefaultRegistry)
	metrics.RegisterRuntimeMemStats(metrics.DefaultRegistry)

	go metrics.CaptureDebugGCStats(metrics.DefaultRegistry, interval)
	go metrics.CaptureRuntimeMemStats(metrics.DefaultRegistry, interval)

	return startFn, nil
}

func startGraphiteStats(l *logrus.Logger, i time.Duration, c *config.C, configTest bool) (func(), error) {
	proto := c.GetString("stats.protocol", "tcp")
	host := c.GetString("stats.host", "")
	if host == "" {
		return nil, errors.New("stats.host can not be empty")
	}

	prefix := c.GetString("stats.prefix", "mddi")
	addr, err := net.ResolveTCPAddr(proto, host)
	if err != nil {
		return nil, fmt.Errorf("error while setting up graphite sink: %s", err)
	}

	if configTest {
		return nil, nil
	}

	return func() {
		l.Infof("Starting graphite. Interval: %s, prefix: %s, addr: %s", i, prefix, addr)
		graphite.Graphite(metrics.DefaultRegistry, i, prefix, addr)
	}, nil
}

func startPrometheusStats(l *logrus.Logger, i time.Duration, c *config.C, buildVersion string, configTest bool) (func(), error) {
	namespace := c.GetString("stats.namespace", "")
	subsystem := c.GetString("stats.subsystem", "")

	listen := c.GetString("stats.listen", "")
	if listen == "" {
		return nil, fmt.Errorf("stats.listen should not be empty")
	}

	path := c.GetString("stats.path", "")
	if path == "" {
		return nil, fmt.Errorf("stats.path should not be empty")
	}

	pr := prometheus.NewRegistry()
	pClient := mp.NewPrometheusProvider(metrics.DefaultRegistry, namespace, subsystem, pr, i)
	if !configTest {
		go pClient.UpdatePrometheusMetrics()
	}

	// Export our version information as labels on a static gauge
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "info",
		Help:      "Version information for the mddi binary",
		ConstLabels: prometheus.Labels{
			"version":   buildVersion,
			"goversion": runtime.Version(),
		},
	})
	pr.MustRegister(g)
	g.Set(1)

	if configTest {
		return nil, nil
	}

	return func() {
		l.Infof("Prometheus stats listening on %s at %s", listen, path)
		mux := http.NewServeMux()
		mux.Handle(path, promhttp.HandlerFor(pr, promhttp.HandlerOpts{ErrorLog: l}))
		if err := http.ListenAndServe(listen, mux); err != nil {
			l.WithError(err).Error("Prometheus stats listener stopped")
		}
	}, nil
}
