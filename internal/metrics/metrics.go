// Package metrics holds the prometheus collectors of the harvest and serves
// them next to the pprof handlers.
package metrics

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a private registry; tests create as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	Passes          prometheus.Counter
	Profiles        *prometheus.CounterVec // status: done, skipped, failed
	Rows            *prometheus.CounterVec // result: created, updated, skipped, invisible, failed
	PhoneLookups    *prometheus.CounterVec // kind: phone, official, unknown
	Truncations     prometheus.Counter
	PaginationRound prometheus.Counter
	ConvergeSamples prometheus.Histogram
	ProfileDuration prometheus.Histogram
	LastPassUnix    prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Passes: f.NewCounter(prometheus.CounterOpts{
			Name: "harvest_passes_total",
			Help: "Completed harvest passes",
		}),
		Profiles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_profiles_total",
			Help: "Profiles processed, by outcome",
		}, []string{"status"}),
		Rows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_rows_total",
			Help: "Chat-list rows processed, by result",
		}, []string{"result"}),
		PhoneLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_phone_lookups_total",
			Help: "Contact-panel lookups, by classification",
		}, []string{"kind"}),
		Truncations: f.NewCounter(prometheus.CounterOpts{
			Name: "harvest_transcript_truncations_total",
			Help: "Transcripts cut to the configured limit",
		}),
		PaginationRound: f.NewCounter(prometheus.CounterOpts{
			Name: "harvest_pagination_rounds_total",
			Help: "Load-more activations",
		}),
		ConvergeSamples: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvest_converge_samples",
			Help:    "Scroll offset samples per convergence run",
			Buckets: prometheus.ExponentialBuckets(3, 2, 10),
		}),
		ProfileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvest_profile_duration_seconds",
			Help:    "Wall time of one profile harvest",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		LastPassUnix: f.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_last_pass_timestamp_seconds",
			Help: "Unix time the last pass finished",
		}),
	}
}

// Handler serves /metrics and /debug/pprof/*.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry}))

	// pprof
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Serve listens on addr until ctx is done. An empty addr disables the server.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		_ = srv.Serve(ln)
	}()
	return nil
}
