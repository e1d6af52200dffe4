// Package metrics exposes Prometheus counters for the quiz flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsCreated counts completed intakes.
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quiz",
		Name:      "sessions_created_total",
		Help:      "Total number of quiz sessions created by a completed intake.",
	})

	// SessionsRestarted counts explicit restarts.
	SessionsRestarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quiz",
		Name:      "sessions_restarted_total",
		Help:      "Total number of sessions destroyed by restart.",
	})

	// AnswersLocked counts locked answers by outcome ("correct", "wrong").
	AnswersLocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiz",
		Name:      "answers_locked_total",
		Help:      "Total number of locked answers, by outcome.",
	}, []string{"outcome"})

	// ThumbnailCaptures counts capture attempts by outcome.
	ThumbnailCaptures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiz",
		Name:      "thumbnail_captures_total",
		Help:      "Thumbnail capture attempts, by outcome (ok, metadata_timeout, seek_retry, failed, superseded).",
	}, []string{"outcome"})

	// IntakeRejected counts intakes refused as incomplete.
	IntakeRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiz",
		Name:      "intake_rejected_total",
		Help:      "Intake submissions rejected, by reason.",
	}, []string{"reason"})

	// WSConnections tracks open event sockets.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quiz",
		Name:      "ws_connections",
		Help:      "Currently open WebSocket connections.",
	})
)
