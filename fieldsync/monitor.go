package fieldsync

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/byronwade/Thorbis-sub040/config"
	"github.com/sirupsen/logrus"
)

// Prober answers one question: can the backend be reached right now?
type Prober interface {
	Probe(ctx context.Context) bool
}

// HTTPProber hits the backend health endpoint.
type HTTPProber struct {
	url  string
	http *http.Client
}

func NewHTTPProber() *HTTPProber {
	base := strings.TrimRight(strings.TrimSpace(os.Getenv("SYNC_API_BASE_URL")), "/")
	return &HTTPProber{
		url:  base + "/healthz",
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *HTTPProber) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Monitor polls connectivity and triggers a drain on each offline-to-online
// transition. Triggers go through a single-slot channel so a burst of
// transitions during a network flap coalesces into at most one queued
// drain behind the one in flight.
type Monitor struct {
	engine   *Engine
	prober   Prober
	logger   *logrus.Logger
	interval time.Duration

	online  atomic.Bool
	trigger chan struct{}
}

func NewMonitor(engine *Engine, prober Prober, logger *logrus.Logger) *Monitor {
	interval := time.Duration(config.IntFromEnv("SYNC_PROBE_INTERVAL_SECONDS", 10)) * time.Second
	return &Monitor{
		engine:   engine,
		prober:   prober,
		logger:   logger,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// RequestDrain asks for a drain pass. Collapses into a pending one if the
// slot is already taken.
func (m *Monitor) RequestDrain() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Run polls until the context is cancelled. Blocking call; the caller owns
// the goroutine.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		case <-m.trigger:
			m.drain(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	wasOnline := m.online.Load()
	isOnline := m.prober.Probe(ctx)
	m.online.Store(isOnline)

	if isOnline && !wasOnline {
		m.logger.WithFields(logrus.Fields{
			"module": "fieldsync",
		}).Info("connectivity restored, scheduling drain")
		m.RequestDrain()
	}
}

func (m *Monitor) drain(ctx context.Context) {
	if err := m.engine.Drain(ctx); err != nil {
		m.logger.WithFields(logrus.Fields{
			"module": "fieldsync",
		}).Error("drain pass failed: " + err.Error())
	}
}
