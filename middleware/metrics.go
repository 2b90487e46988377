// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's prometheus collectors.
type Metrics struct {
	operationDurationMS *prometheus.HistogramVec
	operations          *prometheus.CounterVec
	operationErrors     *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline collectors
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := Metrics{
		operationDurationMS: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fhe_operation_duration_ms",
				Help:    "Duration of encrypt/decrypt operations in milliseconds",
				Buckets: prometheus.ExponentialBucketsRange(1, 60000, 10),
			},
			[]string{"op"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhe_operations_total",
				Help: "Number of operations executed",
			},
			[]string{"op"},
		),
		operationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhe_operation_errors_total",
				Help: "Number of operations that returned an error",
			},
			[]string{"op"},
		),
	}
	registerer.MustRegister(m.operationDurationMS)
	registerer.MustRegister(m.operations)
	registerer.MustRegister(m.operationErrors)

	return &m
}

// Observe is a side-effect-only middleware recording operation counts and
// latencies on m.
func Observe(m *Metrics) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, mc *Context) (any, error) {
			start := time.Now()
			result, err := next(ctx, mc)

			op := string(mc.Op)
			m.operations.WithLabelValues(op).Inc()
			m.operationDurationMS.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))
			if err != nil {
				m.operationErrors.WithLabelValues(op).Inc()
			}
			return result, err
		}
	}
}
