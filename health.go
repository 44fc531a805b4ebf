package main

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

type HealthCheck struct {
	Name     string            `json:"name"`
	Status   HealthStatus      `json:"status"`
	Error    string            `json:"error,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
	Duration time.Duration     `json:"duration"`
}

type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Version   string        `json:"version"`
	Checks    []HealthCheck `json:"checks"`
	StartTime time.Time     `json:"start_time"`
	CheckTime time.Time     `json:"check_time"`
}

// Pinger is anything with a liveness probe; the agency API client is one.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthChecker struct {
	version   string
	startTime time.Time
	db        *DB
	upstream  Pinger
	logger    *slog.Logger
}

func NewHealthChecker(version string, db *DB, upstream Pinger, logger *slog.Logger) *HealthChecker {
	return &HealthChecker{
		version:   version,
		startTime: time.Now(),
		db:        db,
		upstream:  upstream,
		logger:    logger,
	}
}

func (h *HealthChecker) CheckHealth(ctx context.Context) *HealthResponse {
	response := &HealthResponse{
		Status:    StatusHealthy,
		Version:   h.version,
		StartTime: h.startTime,
		CheckTime: time.Now(),
	}

	probes := []func(context.Context) HealthCheck{
		h.checkDatabase,
		h.checkMigrations,
		h.checkAgencyAPI,
		func(context.Context) HealthCheck { return h.checkMemory() },
	}

	var wg sync.WaitGroup
	checksChan := make(chan HealthCheck, len(probes))
	for _, probe := range probes {
		wg.Add(1)
		go func(probe func(context.Context) HealthCheck) {
			defer wg.Done()
			checksChan <- probe(ctx)
		}(probe)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(checksChan)
		close(done)
	}()

	checks := make([]HealthCheck, 0, len(probes))
	select {
	case <-ctx.Done():
		checks = append(checks, HealthCheck{
			Name:    "system",
			Status:  StatusUnhealthy,
			Error:   "health check timeout",
			Details: map[string]string{"error": ctx.Err().Error()},
		})
		response.Status = StatusUnhealthy
	case <-done:
		for check := range checksChan {
			checks = append(checks, check)
			if check.Status == StatusUnhealthy {
				response.Status = StatusUnhealthy
			} else if check.Status == StatusDegraded && response.Status != StatusUnhealthy {
				response.Status = StatusDegraded
			}
		}
	}

	response.Checks = checks
	return response
}

func (h *HealthChecker) checkDatabase(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{
		Name:    "database",
		Status:  StatusHealthy,
		Details: make(map[string]string),
	}

	if h.db == nil {
		check.Status = StatusUnhealthy
		check.Error = "database connection not initialized"
		check.Duration = time.Since(start)
		return check
	}

	if err := h.db.PingContext(ctx); err != nil {
		check.Status = StatusUnhealthy
		check.Error = fmt.Sprintf("database ping failed: %v", err)
		check.Duration = time.Since(start)
		return check
	}

	stats := h.db.Stats()
	check.Details["open_connections"] = fmt.Sprintf("%d", stats.OpenConnections)
	check.Details["in_use"] = fmt.Sprintf("%d", stats.InUse)
	check.Details["idle"] = fmt.Sprintf("%d", stats.Idle)
	check.Details["max_open_connections"] = fmt.Sprintf("%d", stats.MaxOpenConnections)

	if stats.MaxOpenConnections > 0 &&
		float64(stats.OpenConnections)/float64(stats.MaxOpenConnections) > 0.8 {
		check.Status = StatusDegraded
		check.Error = "database connection pool near capacity"
	}

	check.Duration = time.Since(start)
	return check
}

func (h *HealthChecker) checkMigrations(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{
		Name:    "migrations",
		Status:  StatusHealthy,
		Details: make(map[string]string),
	}

	if h.db == nil {
		check.Status = StatusUnhealthy
		check.Error = "database connection not initialized"
		check.Duration = time.Since(start)
		return check
	}

	var version int64
	err := h.db.GetContext(ctx, &version, `
		SELECT COALESCE(MAX(version_id), 0)
		FROM goose_db_version
		WHERE is_applied = true
	`)
	if err != nil {
		check.Status = StatusUnhealthy
		check.Error = fmt.Sprintf("failed to get migration version: %v", err)
		check.Duration = time.Since(start)
		return check
	}

	check.Details["current_version"] = fmt.Sprintf("%d", version)
	check.Duration = time.Since(start)
	return check
}

// checkAgencyAPI reports degraded rather than unhealthy: existing sessions
// keep their cached permissions while the API is away.
func (h *HealthChecker) checkAgencyAPI(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{
		Name:   "agency_api",
		Status: StatusHealthy,
	}

	if h.upstream == nil {
		check.Status = StatusDegraded
		check.Error = "agency api not configured"
	} else if err := h.upstream.Ping(ctx); err != nil {
		check.Status = StatusDegraded
		check.Error = fmt.Sprintf("agency api ping failed: %v", err)
	}

	check.Duration = time.Since(start)
	return check
}

func (h *HealthChecker) checkMemory() HealthCheck {
	start := time.Now()
	check := HealthCheck{
		Name:    "memory",
		Status:  StatusHealthy,
		Details: make(map[string]string),
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	check.Details["alloc_mb"] = fmt.Sprintf("%.2f", float64(memStats.Alloc)/1024/1024)
	check.Details["total_alloc_mb"] = fmt.Sprintf("%.2f", float64(memStats.TotalAlloc)/1024/1024)
	check.Details["sys_mb"] = fmt.Sprintf("%.2f", float64(memStats.Sys)/1024/1024)
	check.Details["gc_cycles"] = fmt.Sprintf("%d", memStats.NumGC)

	if float64(memStats.Alloc)/float64(memStats.Sys) > 0.8 {
		check.Status = StatusDegraded
		check.Error = "high memory utilization"
	}

	check.Duration = time.Since(start)
	return check
}
