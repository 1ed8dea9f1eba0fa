package udp

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/swarmkeep/swarmkeep/bittorrent"
)

func init() {
	prometheus.MustRegister(promResponseDurationMilliseconds)
}

// promResponseDurationMilliseconds is grounded on the teacher's
// frontend/udp/prometheus.go histogram, renamed to this tracker's metric
// prefix (see storage/prometheus.go for the matching convention).
var promResponseDurationMilliseconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "swarmkeep_udp_response_duration_milliseconds",
		Help:    "Time to parse and respond to a UDP tracker request",
		Buckets: prometheus.ExponentialBuckets(9.375, 2, 10),
	},
	[]string{"action", "error"},
)

func recordResponseDuration(action string, err error, d time.Duration) {
	var errString string
	if err != nil {
		var clientErr bittorrent.ClientError
		if errors.As(err, &clientErr) {
			errString = clientErr.Error()
		} else {
			errString = "internal error"
		}
	}
	promResponseDurationMilliseconds.
		WithLabelValues(action, errString).
		Observe(float64(d.Nanoseconds()) / float64(time.Millisecond))
}
