// Package metrics defines the Prometheus metrics exposed by sessionkit. It
// is the single source of truth for metric names, labels, and help strings.
//
// Metrics register against the default registry via promauto; host
// applications expose them through their own /metrics handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sessionkit"

// RefreshTotal counts credential refresh attempts by outcome.
// Label:
//   - outcome: "success", "rejected" (terminal), "error" (recoverable),
//     "no_refresh_token"
var RefreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_total",
		Help:      "Total number of credential refresh attempts, by outcome.",
	},
	[]string{"outcome"},
)

// RefreshDedupTotal counts callers that joined an already in-flight refresh
// instead of issuing their own network call.
var RefreshDedupTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_dedup_total",
		Help:      "Total number of refresh callers coalesced onto an in-flight attempt.",
	},
)

// StoreFailures counts swallowed durable-store failures.
// Label:
//   - op: the store operation that failed (e.g. "save_login", "update_tokens")
var StoreFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_failures_total",
		Help:      "Total number of swallowed session store failures, by operation.",
	},
	[]string{"op"},
)

// BridgeDropped counts state mutations the sync bridge could not enqueue
// because its buffer was full.
var BridgeDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bridge_dropped_total",
		Help:      "Total number of state mutations dropped by the persistence bridge.",
	},
)

// GuardDecisions counts route guard outcomes.
// Label:
//   - status: "loading", "unauthenticated", "permission_pending",
//     "authorized", "unauthorized"
var GuardDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guard_decisions_total",
		Help:      "Total number of route guard decisions, by resulting status.",
	},
	[]string{"status"},
)
