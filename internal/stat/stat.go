// Package stat counts device protocol activity.
// Counters live in private registry, optionally exposed over HTTP for scraping.
// Nil *Stat is valid and counts nothing.
package stat

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/temoto/fridgesim/helpers"
	"github.com/temoto/fridgesim/log2"
)

const namespace = "fridgesim"

type Stat struct {
	Registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	Activations     *prometheus.CounterVec
	Ticks           prometheus.Counter
	Errors          prometheus.Counter
	PersistFailures prometheus.Counter
	NeedsActivation prometheus.Gauge
	BytesSent       prometheus.Counter
	BytesRecv       prometheus.Counter
}

func New() *Stat {
	s := &Stat{
		Registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Platform requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		Activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Activation attempts by outcome.",
		}, []string{"outcome"}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Telemetry loop iterations.",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors logged.",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Credential store save failures.",
		}),
		NeedsActivation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "needs_activation",
			Help:      "1 while device has no valid credential.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_sent_bytes_total",
			Help:      "Bytes written to platform connections.",
		}),
		BytesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_received_bytes_total",
			Help:      "Bytes read from platform connections.",
		}),
	}
	s.Registry.MustRegister(
		s.Requests, s.Activations, s.Ticks, s.Errors, s.PersistFailures,
		s.NeedsActivation, s.BytesSent, s.BytesRecv,
		prometheus.NewGoCollector(),
	)
	return s
}

func (s *Stat) Request(op, outcome string) {
	if s != nil {
		s.Requests.WithLabelValues(op, outcome).Inc()
	}
}

func (s *Stat) Activation(outcome string) {
	if s != nil {
		s.Activations.WithLabelValues(outcome).Inc()
	}
}

func (s *Stat) Tick() {
	if s != nil {
		s.Ticks.Inc()
	}
}

// Error has log2.ErrorFunc signature.
func (s *Stat) Error(error) {
	if s != nil {
		s.Errors.Inc()
	}
}

func (s *Stat) PersistFailure() {
	if s != nil {
		s.PersistFailures.Inc()
	}
}

func (s *Stat) SetNeedsActivation(v bool) {
	if s == nil {
		return
	}
	if v {
		s.NeedsActivation.Set(1)
	} else {
		s.NeedsActivation.Set(0)
	}
}

func (s *Stat) SentAdder() helpers.Adder {
	if s == nil {
		return nil
	}
	return s.BytesSent
}

func (s *Stat) RecvAdder() helpers.Adder {
	if s == nil {
		return nil
	}
	return s.BytesRecv
}

func (s *Stat) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done. Returns listen error immediately.
func (s *Stat) Serve(ctx context.Context, addr string, log *log2.Log) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Annotatef(err, "metrics listen=%s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics serve err=%v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()
	log.Infof("metrics listen=%s", ln.Addr())
	return ln.Addr(), nil
}
