package provider

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Checker is anything the poller can probe: the LLM backend, the
// analytics dataset service, or the workflow service, each exposing
// its own lightweight health endpoint.
type Checker interface {
	Name() string
	HealthCheck(ctx context.Context) HealthStatus
}

// HealthPoller continuously monitors a fixed set of backends in the
// background, firing a callback on healthy/unhealthy transitions so
// callers (e.g. the model router's fallback path) can react without
// polling themselves.
type HealthPoller struct {
	checkers []Checker
	logger   zerolog.Logger
	interval time.Duration

	mu             sync.RWMutex
	lastStatus     map[string]bool
	statusChangeCB func(name string, healthy bool, status HealthStatus)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealthPoller creates a poller over checkers at the given interval
// (floor 5 seconds).
func NewHealthPoller(checkers []Checker, logger zerolog.Logger, interval time.Duration) *HealthPoller {
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	return &HealthPoller{
		checkers:   checkers,
		logger:     logger.With().Str("component", "health_poller").Logger(),
		interval:   interval,
		lastStatus: make(map[string]bool),
		done:       make(chan struct{}),
	}
}

// OnStatusChange registers a callback invoked on healthy/unhealthy transitions.
func (hp *HealthPoller) OnStatusChange(cb func(name string, healthy bool, status HealthStatus)) {
	hp.statusChangeCB = cb
}

// Start begins the background polling loop.
func (hp *HealthPoller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	hp.cancel = cancel
	hp.logger.Info().Dur("interval", hp.interval).Int("backends", len(hp.checkers)).Msg("starting backend health poller")
	go hp.pollLoop(ctx)
}

// Stop gracefully shuts down the poller.
func (hp *HealthPoller) Stop() {
	if hp.cancel != nil {
		hp.cancel()
	}
	<-hp.done
	hp.logger.Info().Msg("health poller stopped")
}

func (hp *HealthPoller) pollLoop(ctx context.Context) {
	defer close(hp.done)
	hp.poll(ctx)

	ticker := time.NewTicker(hp.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hp.poll(ctx)
		}
	}
}

func (hp *HealthPoller) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, hp.interval/2)
	defer cancel()

	results := make(map[string]HealthStatus, len(hp.checkers))
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, c := range hp.checkers {
		wg.Add(1)
		go func(chk Checker) {
			defer wg.Done()
			status := chk.HealthCheck(pollCtx)
			mu.Lock()
			results[chk.Name()] = status
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	hp.mu.Lock()
	defer hp.mu.Unlock()

	healthy, unhealthy := 0, 0
	for name, status := range results {
		wasHealthy, known := hp.lastStatus[name]
		if known && wasHealthy != status.Healthy {
			transition := "recovered"
			if !status.Healthy {
				transition = "degraded"
			}
			hp.logger.Warn().Str("backend", name).Str("transition", transition).
				Str("error", status.Error).Dur("latency", status.Latency).Msg("backend status change")
			if hp.statusChangeCB != nil {
				hp.statusChangeCB(name, status.Healthy, status)
			}
		}
		hp.lastStatus[name] = status.Healthy
		if status.Healthy {
			healthy++
		} else {
			unhealthy++
		}
	}
	hp.logger.Debug().Int("healthy", healthy).Int("unhealthy", unhealthy).Msg("health poll complete")
}

// IsHealthy returns whether a named backend was healthy at last check.
func (hp *HealthPoller) IsHealthy(name string) bool {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	healthy, ok := hp.lastStatus[name]
	return ok && healthy
}

// Statuses returns a snapshot of every checker's last-known health, by name.
func (hp *HealthPoller) Statuses() map[string]bool {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	out := make(map[string]bool, len(hp.lastStatus))
	for name, healthy := range hp.lastStatus {
		out[name] = healthy
	}
	return out
}
