// Package netmon tracks connectivity and connection quality for the sync
// engine. It is the single writer of the process-wide network status;
// everything else observes it, nothing awaits it.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/adorsys-gis/dgat-sync/internal/config"
	"github.com/adorsys-gis/dgat-sync/internal/logging"
	"github.com/adorsys-gis/dgat-sync/internal/models"
)

// Prober checks reachability of the remote service. A nil error means the
// probe succeeded; latency is only meaningful on success.
type Prober interface {
	Probe(ctx context.Context) (latency time.Duration, err error)
}

// HTTPProber probes connectivity with a HEAD request.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context) (time.Duration, error) {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return time.Since(start), nil
}

// Sink receives status snapshots for durable bookkeeping.
type Sink interface {
	SaveNetworkStatus(ctx context.Context, ns *models.NetworkStatus) error
}

// Monitor is the authoritative connectivity signal. State transitions are
// debounced: a candidate state must hold for the configured window before
// the public state flips.
type Monitor struct {
	prober   Prober
	sink     Sink
	interval time.Duration
	debounce time.Duration
	timeout  time.Duration

	mu          sync.RWMutex
	status      models.NetworkStatus
	candidate   bool
	candidateAt time.Time
	subscribers []func(online bool)

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New creates a Monitor. A nil prober leaves only external SetOnline signals;
// a nil sink skips snapshot persistence.
func New(cfg config.NetworkConfig, prober Prober, sink Sink) *Monitor {
	if prober == nil && cfg.HeartbeatURL != "" {
		prober = &HTTPProber{URL: cfg.HeartbeatURL}
	}
	return &Monitor{
		prober:   prober,
		sink:     sink,
		interval: cfg.HeartbeatInterval,
		debounce: cfg.DebounceWindow,
		timeout:  cfg.ProbeTimeout,
		status: models.NetworkStatus{
			Quality: models.QualityOffline,
		},
	}
}

// Start launches the heartbeat loop. A stopped monitor can be started
// again; each start gets a fresh stop channel.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running || m.prober == nil {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stop := m.stopCh
	m.mu.Unlock()

	m.wg.Add(1)
	go m.heartbeatLoop(ctx, stop)

	logging.Info("network monitor started",
		map[string]interface{}{"interval": m.interval.String()})
}

// Stop stops the heartbeat loop gracefully.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop := m.stopCh
	m.mu.Unlock()

	close(stop)
	m.wg.Wait()
}

func (m *Monitor) heartbeatLoop(ctx context.Context, stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	latency, err := m.prober.Probe(probeCtx)
	if err != nil {
		m.observe(false, 0)
		return
	}
	m.observe(true, latency)
}

// SetOnline accepts a platform online/offline signal. The signal goes
// through the same debounce as heartbeat observations.
func (m *Monitor) SetOnline(online bool) {
	m.observe(online, 0)
}

// observe feeds one connectivity observation through the debounce filter.
// The public state flips only after the observed state has been stable for
// the debounce window; flapping observations keep resetting the clock.
func (m *Monitor) observe(online bool, latency time.Duration) {
	now := time.Now()

	m.mu.Lock()
	if latency > 0 {
		m.status.LatencyMs = latency.Milliseconds()
		m.status.Quality = qualityFor(latency)
	}

	if online == m.status.IsOnline {
		// Observation agrees with current state; drop any pending flip.
		m.candidateAt = time.Time{}
		m.mu.Unlock()
		return
	}

	if m.debounce > 0 {
		if m.candidateAt.IsZero() || m.candidate != online {
			m.candidate = online
			m.candidateAt = now
			m.mu.Unlock()
			return
		}
		if now.Sub(m.candidateAt) < m.debounce {
			m.mu.Unlock()
			return
		}
	}

	// Stable long enough; flip.
	m.status.IsOnline = online
	m.candidateAt = time.Time{}
	if online {
		m.status.LastOnline = now.Unix()
	} else {
		m.status.LastOffline = now.Unix()
		m.status.Quality = models.QualityOffline
		m.status.LatencyMs = 0
	}
	snapshot := m.status
	subs := make([]func(bool), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	logging.Info("connectivity changed",
		map[string]interface{}{"is_online": online, "quality": string(snapshot.Quality)})

	if m.sink != nil {
		if err := m.sink.SaveNetworkStatus(context.Background(), &snapshot); err != nil {
			logging.Warn("failed to persist network status",
				map[string]interface{}{"error": err.Error()})
		}
	}

	// Subscribers run outside the lock; they must not block.
	for _, fn := range subs {
		fn(online)
	}
}

// qualityFor grades latency into a connection quality bucket.
func qualityFor(latency time.Duration) models.ConnectionQuality {
	switch {
	case latency < 100*time.Millisecond:
		return models.QualityExcellent
	case latency < 500*time.Millisecond:
		return models.QualityGood
	default:
		return models.QualityPoor
	}
}

// IsOnline returns the current debounced connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.IsOnline
}

// Status returns a copy of the current network status snapshot.
func (m *Monitor) Status() models.NetworkStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Subscribe registers a transition callback, invoked on every debounced
// online/offline flip.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}
