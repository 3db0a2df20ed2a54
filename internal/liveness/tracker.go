// Package liveness polls the backend services' health endpoints.
package liveness

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gugudan/internal/metrics"
	"gugudan/internal/model"
)

// DefaultTimeout bounds each health probe.
const DefaultTimeout = 10 * time.Second

// Service names
const (
	Supervisor = "supervisor"
	Agent1     = "agent1"
	Agent2     = "agent2"
)

// Service is one probed endpoint.
type Service struct {
	Name string
	URL  string
}

// DefaultServices returns the three backend services on localhost.
func DefaultServices() []Service {
	return []Service{
		{Name: Supervisor, URL: "http://localhost:8000/health"},
		{Name: Agent1, URL: "http://localhost:5000/health"},
		{Name: Agent2, URL: "http://localhost:6001/health"},
	}
}

// Tracker records the up/down state of each service.
type Tracker struct {
	services []Service
	client   *http.Client
	timeout  time.Duration
	logger   zerolog.Logger

	mu       sync.RWMutex
	up       map[string]bool
	checking int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithHTTPClient sets the client used for probes.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tracker) { t.client = c }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// New creates a tracker. Every service starts down.
func New(services []Service, opts ...Option) *Tracker {
	t := &Tracker{
		services: services,
		client:   &http.Client{},
		timeout:  DefaultTimeout,
		logger:   zerolog.Nop(),
		up:       make(map[string]bool, len(services)),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With().Str("component", "liveness").Logger()
	return t
}

// CheckStatus probes every service concurrently and returns the resulting
// status. A service is up only if its probe answered 200 within the timeout;
// one probe failing has no effect on the others.
func (t *Tracker) CheckStatus(ctx context.Context) model.ServiceStatus {
	t.mu.Lock()
	t.checking++
	t.mu.Unlock()

	var wg sync.WaitGroup
	for _, svc := range t.services {
		wg.Add(1)
		go func(svc Service) {
			defer wg.Done()
			err := t.probe(ctx, svc)
			t.record(svc.Name, err)
		}(svc)
	}
	wg.Wait()

	t.mu.Lock()
	t.checking--
	t.mu.Unlock()

	return t.Status()
}

func (t *Tracker) probe(ctx context.Context, svc Service) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.ProbeDuration.WithLabelValues(svc.Name).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", svc.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s: status %d", svc.URL, resp.StatusCode)
	}
	return nil
}

func (t *Tracker) record(name string, err error) {
	up := err == nil

	t.mu.Lock()
	prev, seen := t.up[name]
	t.up[name] = up
	t.mu.Unlock()

	if up {
		metrics.ServiceUp.WithLabelValues(name).Set(1)
	} else {
		metrics.ServiceUp.WithLabelValues(name).Set(0)
	}

	switch {
	case err != nil && (!seen || prev):
		t.logger.Warn().Err(err).Str("service", name).Msg("service down")
	case err == nil && (!seen || !prev):
		t.logger.Info().Str("service", name).Msg("service up")
	}
}

// Up reports the last known state of the named service.
func (t *Tracker) Up(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.up[name]
}

// Status returns the last known state of the three backend services.
func (t *Tracker) Status() model.ServiceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return model.ServiceStatus{
		Supervisor: t.up[Supervisor],
		Agent1:     t.up[Agent1],
		Agent2:     t.up[Agent2],
	}
}

// IsChecking reports whether a CheckStatus call is in flight.
func (t *Tracker) IsChecking() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.checking > 0
}

// Run checks immediately and then every interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.CheckStatus(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.CheckStatus(ctx)
		}
	}
}
