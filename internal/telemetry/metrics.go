// Package telemetry exposes Prometheus metrics for stock operations and HTTP traffic
package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nemonet1337/pharmastock/pkg/inventory"
)

const namespace = "pharmastock"

// Metrics holds the collectors registered for the service
// サービスのメトリクス
type Metrics struct {
	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

var _ inventory.Observer = (*Metrics)(nil)

// New creates the collectors and registers them with reg
// メトリクスを生成してレジストリに登録
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "在庫操作の実行回数",
		}, []string{"operation", "result"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "在庫操作の所要時間",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTPリクエスト数",
		}, []string{"method", "route", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTPリクエストの所要時間",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	for _, c := range []prometheus.Collector{m.operations, m.operationLatency, m.httpRequests, m.httpLatency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveOperation records the outcome of a manager operation
func (m *Metrics) ObserveOperation(operation string, err error, elapsed time.Duration) {
	m.operations.WithLabelValues(operation, Result(err)).Inc()
	m.operationLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveHTTP records a served request
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Result maps an operation error to a low-cardinality label
// エラーをメトリクスラベルに変換
func Result(err error) string {
	var validationErr *inventory.ValidationError
	var ruleErr *inventory.BusinessRuleError
	var storageErr *inventory.StorageError

	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &storageErr):
		return "error"
	case errors.Is(err, inventory.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, inventory.ErrDuplicateKey):
		return "duplicate"
	case errors.As(err, &validationErr):
		return "invalid"
	case errors.As(err, &ruleErr), errors.Is(err, inventory.ErrItemAmbiguous):
		return "rejected"
	case inventory.IsDomainError(err):
		return "not_found"
	}
	return "error"
}

// StatusRecorder captures the status code written by a handler
type StatusRecorder struct {
	http.ResponseWriter
	Status int
}

// NewStatusRecorder wraps w with a default status of 200
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
}

// WriteHeader records the status code
func (r *StatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}
