// Package metrics exposes the simulator's Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "ransim"

type Metrics struct {
	AmfLoad         *prometheus.GaugeVec
	AmfCapacity     *prometheus.GaugeVec
	Registrations   *prometheus.CounterVec
	ServiceRequests *prometheus.CounterVec
	Pagings         *prometheus.CounterVec
	Assigned        *prometheus.GaugeVec
	Forwarded       *prometheus.CounterVec
	Dropped         *prometheus.CounterVec
	Terminals       *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AmfLoad: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "amf",
			Name:      "load",
			Help:      "Registered terminals per AMF.",
		}, []string{"amf"}),
		AmfCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "amf",
			Name:      "capacity",
			Help:      "Admission capacity per AMF.",
		}, []string{"amf"}),
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "amf",
			Name:      "registrations_total",
			Help:      "New registrations accepted per AMF.",
		}, []string{"amf"}),
		ServiceRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "amf",
			Name:      "service_requests_total",
			Help:      "Service requests answered per AMF.",
		}, []string{"amf"}),
		Pagings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "amf",
			Name:      "pagings_total",
			Help:      "Paging notifications sent per AMF.",
		}, []string{"amf"}),
		Assigned: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gnb",
			Name:      "assigned_terminals",
			Help:      "Terminals assigned to each AMF as seen by the gNB.",
		}, []string{"amf"}),
		Forwarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gnb",
			Name:      "forwarded_total",
			Help:      "Messages relayed by the gNB.",
		}, []string{"direction"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Messages dropped, by component and reason.",
		}, []string{"component", "reason"}),
		Terminals: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ue",
			Name:      "terminals",
			Help:      "Terminals per published state.",
		}, []string{"state"}),
	}
}

// NewNop returns collectors bound to a private registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

func AmfLabel(id int) string {
	return strconv.Itoa(id)
}

// Serve exposes g on addr under /metrics until ctx ends.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Named("metrics").Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
