package resource

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "sockrest",
	Subsystem: "dispatch",
	Name:      "duration_seconds",
	Help:      "Time spent handling one action, labelled by resource, action and response status.",
	Buckets:   prometheus.DefBuckets,
}, []string{"resource", "action", "status"})

func observeDispatch(resource, action string, status int, elapsed time.Duration) {
	dispatchDuration.WithLabelValues(resource, action, statusLabel(status)).Observe(elapsed.Seconds())
}
