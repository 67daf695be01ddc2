package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BipsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bips_ingested_total",
		Help: "Total number of bips created from the webhook",
	})

	WebhookDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bip_webhook_duplicates_total",
		Help: "Webhook deliveries answered from an idempotency key",
	})

	WebhookFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bip_webhook_failed_total",
		Help: "Webhook deliveries that could not be persisted",
	}, []string{"reason"})

	BipsCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bips_cancelled_total",
		Help: "Total number of bips cancelled, cascade included",
	}, []string{"reason"})

	BipsReactivatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bips_reactivated_total",
		Help: "Total number of bips reactivated, by resulting status",
	}, []string{"status"})

	BipsVerifiedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bips_verified_total",
		Help: "Total number of bips matched to a sale",
	})

	BipsUnmatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bips_unmatched_total",
		Help: "Total number of pending bips flagged after the reconcile window",
	})

	SellsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sells_ingested_total",
		Help: "Total number of ERP sales ingested",
	}, []string{"source"})

	ReconcileLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconcile_latency_seconds",
		Help:    "Latency of a single reconciliation attempt",
		Buckets: prometheus.DefBuckets,
	})

	AttachmentUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bip_attachment_uploads_total",
		Help: "Video and image uploads",
	}, []string{"kind"})

	DependencyUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dependency_up",
		Help: "1 when the last connectivity probe succeeded",
	}, []string{"dependency"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
