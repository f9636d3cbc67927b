package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the daemon-level Prometheus series.
var (
	ArticlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slotpress",
		Name:      "articles_total",
		Help:      "Article runs by terminal outcome.",
	}, []string{"outcome"})

	PublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slotpress",
		Name:      "publish_total",
		Help:      "CMS publish attempts by result.",
	}, []string{"result"})

	DailyCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "slotpress",
		Name:      "daily_articles",
		Help:      "Articles produced since the last midnight reset.",
	})

	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "slotpress",
		Name:      "pipeline_duration_seconds",
		Help:      "Wall time of one article pipeline run.",
		Buckets:   prometheus.ExponentialBuckets(15, 2, 8),
	})
)
