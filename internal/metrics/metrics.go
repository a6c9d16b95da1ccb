// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes the Prometheus collectors shared by the
// crawler, the API client, and the download manager, plus the /metrics
// handler that serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vkomic_api_requests_total",
		Help: "Total requests issued against the board-comment API, by method.",
	}, []string{"method"})

	APIRequestErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vkomic_api_request_errors_total",
		Help: "Total API request failures, by method and error kind.",
	}, []string{"method", "kind"})

	APIRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vkomic_api_retries_total",
		Help: "Total retry attempts made against the execute batching endpoint.",
	})

	CrawlNodesExpandedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vkomic_crawl_nodes_expanded_total",
		Help: "Total catalogue nodes expanded by the crawler.",
	})

	DownloadsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vkomic_downloads_active",
		Help: "Number of downloads currently in flight.",
	})

	DownloadsQueued = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vkomic_downloads_queued",
		Help: "Number of downloads waiting for a free slot.",
	})

	BytesDownloadedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vkomic_bytes_downloaded_total",
		Help: "Total bytes written to disk across all downloads.",
	})

	DownloadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vkomic_download_duration_seconds",
		Help:    "Wall-clock duration of completed downloads.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		APIRequestsTotal,
		APIRequestErrorsTotal,
		APIRetriesTotal,
		CrawlNodesExpandedTotal,
		DownloadsActive,
		DownloadsQueued,
		BytesDownloadedTotal,
		DownloadDuration,
	)
}

// Handler returns the HTTP handler serving the registered collectors.
func Handler() http.Handler {
	return promhttp.Handler()
}
