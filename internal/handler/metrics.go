package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "videotube_registrations_total",
		Help: "Total number of successful account registrations.",
	})

	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videotube_logins_total",
			Help: "Total number of login attempts by outcome.",
		},
		[]string{"status"},
	)

	refreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videotube_token_refreshes_total",
			Help: "Total number of refresh token exchanges by outcome.",
		},
		[]string{"status"},
	)

	mediaUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videotube_media_uploads_total",
			Help: "Total number of profile image updates by kind and outcome.",
		},
		[]string{"kind", "status"},
	)
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
