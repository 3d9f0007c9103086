package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejections  prometheus.Counter
	StoreErrors prometheus.Counter
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rejections: f.NewCounter(prometheus.CounterOpts{
			Name: "certify_ratelimit_rejections_total",
			Help: "Public requests rejected by the per-IP rate limit",
		}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "certify_ratelimit_store_errors_total",
			Help: "Rate limit checks that failed and let the request through",
		}),
	}
}

func (m *Metrics) IncrementRejections() {
	m.Rejections.Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	m.StoreErrors.Inc()
}
