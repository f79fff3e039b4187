package persist

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remoteFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audio_eval_persist_remote_fallbacks_total",
			Help: "Remote progress calls that failed and fell back to the local store",
		},
		[]string{"tool", "op"},
	)

	localWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_eval_persist_local_write_failures_total",
		Help: "Local store writes that failed",
	})
)
