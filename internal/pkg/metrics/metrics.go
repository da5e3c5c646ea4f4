package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PurchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdgate_purchases_total",
		Help: "The total number of purchases processed",
	}, []string{"phase", "status"})

	TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crowdgate_tokens_issued_total",
		Help: "Whole tokens issued to purchasers",
	})

	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdgate_rejections_total",
		Help: "Sale operations rejected, by failure kind",
	}, []string{"operation", "reason"})

	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdgate_claims_total",
		Help: "Post-sale allocation claims",
	}, []string{"status"})

	VestingReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crowdgate_vesting_releases_total",
		Help: "Successful vesting releases",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crowdgate_events_dropped_total",
		Help: "Sale events dropped because the event queue was full",
	})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdgate_http_requests_total",
		Help: "HTTP requests served, by route and status class",
	}, []string{"route", "method", "class"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crowdgate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
