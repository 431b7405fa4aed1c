package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/petal-labs/mcpchat/core"
)

const defaultPingTimeout = 10 * time.Second

var healthCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ParseHealthSchedule validates a health-check cron spec. Five-field
// expressions and descriptors such as "@every 1m" are accepted.
func ParseHealthSchedule(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, errors.New("session: health check schedule is required")
	}
	schedule, err := healthCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("session: invalid health check schedule: %w", err)
	}
	return schedule, nil
}

// HealthResult is the outcome of pinging one connection.
type HealthResult struct {
	Server   string
	Duration time.Duration
	Err      error
}

// HealthMonitorConfig controls background health checking.
type HealthMonitorConfig struct {
	Manager     *Manager
	Schedule    string
	PingTimeout time.Duration
	Logger      *slog.Logger
}

// HealthMonitor pings every live connection on a cron schedule.
type HealthMonitor struct {
	manager     *Manager
	schedule    cron.Schedule
	pingTimeout time.Duration
	logger      *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewHealthMonitor creates a monitor. It does nothing until Start.
func NewHealthMonitor(cfg HealthMonitorConfig) (*HealthMonitor, error) {
	if cfg.Manager == nil {
		return nil, errors.New("session: health monitor manager is nil")
	}
	schedule, err := ParseHealthSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &HealthMonitor{
		manager:     cfg.Manager,
		schedule:    schedule,
		pingTimeout: cfg.PingTimeout,
		logger:      cfg.Logger,
	}, nil
}

// Start begins scheduled checks. Checks stop when ctx ends or Stop is called.
func (h *HealthMonitor) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cron != nil {
		return
	}

	c := cron.New(cron.WithLocation(time.UTC))
	c.Schedule(h.schedule, cron.FuncJob(func() {
		h.CheckNow(ctx)
	}))
	c.Start()
	h.cron = c

	go func() {
		<-ctx.Done()
		h.Stop()
	}()
}

// Stop halts scheduled checks and waits for a running check to finish.
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	c := h.cron
	h.cron = nil
	h.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
}

// CheckNow pings every connection once and returns the results in connect order.
func (h *HealthMonitor) CheckNow(ctx context.Context) []HealthResult {
	conns := h.manager.Connections()
	results := make([]HealthResult, 0, len(conns))
	for _, conn := range conns {
		if ctx.Err() != nil {
			break
		}
		pingCtx, cancel := context.WithTimeout(ctx, h.pingTimeout)
		started := time.Now()
		err := conn.Ping(pingCtx)
		cancel()

		result := HealthResult{Server: conn.Name(), Duration: time.Since(started), Err: err}
		results = append(results, result)

		core.ActiveObserver().ObserveHealth(core.HealthObservation{
			Server:     result.Server,
			DurationMS: result.Duration.Milliseconds(),
			Success:    err == nil,
			ErrorCode:  core.ErrorCode(err),
		})
		if err != nil {
			h.logger.Warn("server health check failed", "server", result.Server, "error", err)
			continue
		}
		h.logger.Debug("server health check ok", "server", result.Server, "duration", result.Duration)
	}
	return results
}
