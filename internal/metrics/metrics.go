// Package metrics defines the marketplace's Prometheus metrics.  They are
// registered with the default registry on package init through promauto
// and exposed by the router on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "surplus"

// ReservationTransitionsTotal counts committed reservation transitions.
// Label:
//   - status: the status the reservation moved to (active, completed, no-show, cancelled)
var ReservationTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reservation_transitions_total",
		Help:      "Total number of committed reservation status transitions.",
	},
	[]string{"status"},
)

// ReservationConflictsTotal counts reservation attempts lost to a
// concurrent reservation or a bundle that was not available.
var ReservationConflictsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reservation_conflicts_total",
		Help:      "Total number of reservation attempts rejected because the bundle was not available.",
	},
)

// ClaimFailuresTotal counts claim attempts that did not complete.
// Label:
//   - reason: invalid_code, ownership, not_active
var ClaimFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claim_failures_total",
		Help:      "Total number of failed claim code redemptions.",
	},
	[]string{"reason"},
)

// BundlesCreatedTotal counts newly listed bundles.
var BundlesCreatedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bundles_created_total",
		Help:      "Total number of bundles listed by sellers.",
	},
)

// AuthorizationDecisionsTotal counts gate decisions.
// Labels:
//   - permission: the permission title checked
//   - result: allowed, unauthenticated, forbidden, ownership
var AuthorizationDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authorization_decisions_total",
		Help:      "Total number of authorization gate decisions.",
	},
	[]string{"permission", "result"},
)

// EventsPublishedTotal counts reservation events sent to the broker.
// Label:
//   - result: ok or error
var EventsPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total number of reservation events published to RabbitMQ.",
	},
	[]string{"result"},
)
