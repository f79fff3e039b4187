package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	progressSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audio_eval_progress_saves_total",
			Help: "Progress records written, by tool",
		},
		[]string{"tool"},
	)

	progressLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audio_eval_progress_loads_total",
			Help: "Progress reads, by tool and whether a record existed",
		},
		[]string{"tool", "found"},
	)

	usersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_eval_users_created_total",
		Help: "Raters registered through the API",
	})

	archivesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_eval_archives_enqueued_total",
		Help: "Archive jobs handed to the worker queue",
	})
)
