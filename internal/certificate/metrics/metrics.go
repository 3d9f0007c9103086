package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for certificate issuance and verification.
type Metrics struct {
	Issued           prometheus.Counter
	IssueFailures    *prometheus.CounterVec
	NumberCollisions prometheus.Counter
	IssueDuration    prometheus.Histogram
	Verifications    *prometheus.CounterVec
	VerifyDuration   prometheus.Histogram
	Downloads        prometheus.Counter
	Stored           prometheus.Gauge
	CacheLookups     *prometheus.CounterVec
}

// New creates the certificate metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers against reg; tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Issued: f.NewCounter(prometheus.CounterOpts{
			Name: "certify_certificates_issued_total",
			Help: "Certificates successfully issued",
		}),
		IssueFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_certificate_issue_failures_total",
			Help: "Failed issuance attempts by error code",
		}, []string{"code"}),
		NumberCollisions: f.NewCounter(prometheus.CounterOpts{
			Name: "certify_certificate_number_collisions_total",
			Help: "Drawn certificate numbers rejected by the store as duplicates",
		}),
		IssueDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "certify_certificate_issue_duration_seconds",
			Help:    "Duration of Issue operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_verifications_total",
			Help: "Public verification lookups by result (found, not_found, error)",
		}, []string{"result"}),
		VerifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "certify_verification_duration_seconds",
			Help:    "Duration of public verification lookups",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		Downloads: f.NewCounter(prometheus.CounterOpts{
			Name: "certify_certificate_downloads_total",
			Help: "Certificate documents rendered for download",
		}),
		Stored: f.NewGauge(prometheus.GaugeOpts{
			Name: "certify_certificates_stored",
			Help: "Certificates currently stored, refreshed periodically",
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_certificate_cache_lookups_total",
			Help: "Verification cache lookups by outcome (hit, miss, error)",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementIssued() {
	m.Issued.Inc()
}

func (m *Metrics) IncrementIssueFailure(code string) {
	m.IssueFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) IncrementCollision() {
	m.NumberCollisions.Inc()
}

// ObserveIssue records an Issue duration. Call with the start time.
func (m *Metrics) ObserveIssue(start time.Time) {
	m.IssueDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementVerification(result string) {
	m.Verifications.WithLabelValues(result).Inc()
}

// ObserveVerify records a verification duration. Call with the start time.
func (m *Metrics) ObserveVerify(start time.Time) {
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementDownload() {
	m.Downloads.Inc()
}

func (m *Metrics) SetStored(n int) {
	m.Stored.Set(float64(n))
}

func (m *Metrics) IncrementCacheLookup(outcome string) {
	m.CacheLookups.WithLabelValues(outcome).Inc()
}
