package prommetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RegistryNamespace is the namespace for all keeper registry metrics
const RegistryNamespace = "keeper_registry"

const (
	LabelSuccess = "success"
	LabelFeed    = "feed"
	LabelCaller  = "caller"
	LabelOutcome = "outcome"
)

const (
	FeedFastGas    = "fast_gas"
	FeedLinkNative = "link_native"

	CallerOwner = "owner"
	CallerAdmin = "admin"

	OutcomeApproved = "approved"
	OutcomePending  = "pending"
	OutcomeRejected = "rejected"
)

// Registry metrics
var (
	RegistryUpkeepsPerformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: RegistryNamespace,
		Name:      "upkeeps_performed",
		Help:      "Count of performs that paid a keeper, labeled by target call success",
	}, []string{LabelSuccess})
	RegistryKeeperPayments = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: RegistryNamespace,
		Name:      "keeper_payments_juels",
		Help:      "Total juels credited to keepers",
	})
	RegistryPriceFeedFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: RegistryNamespace,
		Name:      "price_feed_fallbacks",
		Help:      "Count of price reads that used the configured fallback value",
	}, []string{LabelFeed})
	RegistryUpkeepsRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: RegistryNamespace,
		Name:      "upkeeps_registered",
		Help:      "Count of registered upkeeps",
	})
	RegistryUpkeepsCanceled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: RegistryNamespace,
		Name:      "upkeeps_canceled",
		Help:      "Count of upkeep cancellations labeled by the canceling role",
	}, []string{LabelCaller})
	RegistryActiveKeepers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: RegistryNamespace,
		Name:      "active_keepers",
		Help:      "How many keepers are currently active",
	})
	RegistrarRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: RegistryNamespace,
		Name:      "registration_requests",
		Help:      "Count of registration request outcomes",
	}, []string{LabelOutcome})
)
