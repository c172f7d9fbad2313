package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrcheckin/internal/domain"
)

const namespace = "qrcheckin"

// Collector exports scanner, check-in and HTTP metrics. It is a
// usecase.ScanObserver and a ports.CheckInEvents.
type Collector struct {
	gatherer prometheus.Gatherer

	framesSampled     prometheus.Counter
	framesDecoded     prometheus.Counter
	scansEmitted      prometheus.Counter
	scansSuppressed   prometheus.Counter
	acquisitionErrors *prometheus.CounterVec
	cameraActive      prometheus.Gauge
	checkIns          *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector registers the collectors on reg. A nil reg gets a private
// registry so several collectors can coexist in one process.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		gatherer: reg,
		framesSampled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "frames_sampled_total",
			Help: "Frames read from the camera and handed to the decoder",
		}),
		framesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "frames_decoded_total",
			Help: "Frames in which a QR payload was found",
		}),
		scansEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "scans_emitted_total",
			Help: "Scan events emitted after debouncing",
		}),
		scansSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "scans_suppressed_total",
			Help: "Decoded payloads dropped by the debounce window",
		}),
		acquisitionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "acquisition_failures_total",
			Help: "Camera acquisition failures by reason",
		}, []string{"reason"}),
		cameraActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "camera_active",
			Help: "1 while a camera stream is live",
		}),
		checkIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "checkin", Name: "results_total",
			Help: "Check-in attempts by outcome",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"path", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
	}

	reg.MustRegister(
		c.framesSampled, c.framesDecoded, c.scansEmitted, c.scansSuppressed,
		c.acquisitionErrors, c.cameraActive, c.checkIns,
		c.httpRequests, c.httpDuration,
	)
	return c
}

func (c *Collector) FrameSampled()   { c.framesSampled.Inc() }
func (c *Collector) FrameDecoded()   { c.framesDecoded.Inc() }
func (c *Collector) ScanEmitted()    { c.scansEmitted.Inc() }
func (c *Collector) ScanSuppressed() { c.scansSuppressed.Inc() }

func (c *Collector) AcquisitionFailed(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	c.acquisitionErrors.WithLabelValues(reason).Inc()
}

// ObserveStatus tracks whether the camera is live.
func (c *Collector) ObserveStatus(status domain.ScannerStatus) {
	if status.IsCameraActive {
		c.cameraActive.Set(1)
		return
	}
	c.cameraActive.Set(0)
}

func (c *Collector) CheckInSucceeded(domain.CheckInResult) {
	c.checkIns.WithLabelValues(string(domain.ScanOutcomeCheckedIn)).Inc()
}

func (c *Collector) CheckInFailed(code domain.ErrorCode, _ string) {
	c.checkIns.WithLabelValues(string(code)).Inc()
}

// Handler serves this collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if sr.status == http.StatusOK {
		sr.status = http.StatusSwitchingProtocols
	}
	return hj.Hijack()
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// Middleware instruments requests, labelled by chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)

		path := routePatternOrPath(r)
		status := strconv.Itoa(sr.status)
		c.httpRequests.WithLabelValues(path, r.Method, status).Inc()
		c.httpDuration.WithLabelValues(path, r.Method, status).Observe(time.Since(start).Seconds())
	})
}

// routePatternOrPath avoids high-cardinality labels when a chi pattern exists.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
