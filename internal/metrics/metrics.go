// Package metrics exposes pipeline counters on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SubmissionsTotal counts submissions by completion mode and outcome.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kitchen_submissions_total",
		Help: "Invoice submissions processed, by render mode and outcome.",
	}, []string{"mode", "outcome"})

	// RendersTotal counts PDF render attempts.
	RendersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kitchen_renders_total",
		Help: "PDF render attempts, by outcome.",
	}, []string{"outcome"})

	// EmailsTotal counts invoice emails dispatched.
	EmailsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kitchen_emails_total",
		Help: "Invoice emails dispatched, by outcome.",
	}, []string{"outcome"})
)

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
