package linotls

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.dedis.ch/lino"
)

// defines prometheus metrics
var (
	promLoads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lino_tls_config_loads_total",
		Help: "total number of configurations applied",
	})

	promRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lino_tls_config_rejections_total",
		Help: "total number of configurations discarded at compile time",
	})

	promAccepts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lino_tls_streams_total",
		Help: "total number of streams accepted",
	})

	promFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lino_tls_failures_total",
		Help: "total number of failed accepts",
	})
)

func init() {
	lino.PromCollectors = append(lino.PromCollectors,
		promLoads, promRejections, promAccepts, promFailures)
}
