// Package resources tracks and gates resource consumption for the engine.
// Every tool invocation reserves its estimated usage up front and releases
// it on completion; a reservation that would push any dimension over the
// configured limit is rejected before the work starts.
package resources

import (
	"fmt"
	"sync"
)

// Usage is the resource consumption of a single operation, either estimated
// ahead of execution or measured after it.
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   uint64  `json:"memory_mb"`
	NetworkMB  float64 `json:"network_mb"`
	StorageMB  uint64  `json:"storage_mb"`
}

// Limits is the configured ceiling the engine must stay under.
type Limits struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryMB    uint64  `json:"memory_mb"`
	NetworkMbps float64 `json:"network_mbps"`
	StorageMB   uint64  `json:"storage_mb"`
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		CPUPercent:  80.0,
		MemoryMB:    2048,
		NetworkMbps: 100.0,
		StorageMB:   10240,
	}
}

// State is the live aggregate of all outstanding reservations.
type State struct {
	CPUUsagePercent  float64 `json:"cpu_usage_percent"`
	MemoryUsageMB    uint64  `json:"memory_usage_mb"`
	NetworkUsageMbps float64 `json:"network_usage_mbps"`
	StorageUsageMB   uint64  `json:"storage_usage_mb"`
}

// ExhaustedError reports which dimension a rejected reservation would have
// pushed over its limit.
type ExhaustedError struct {
	Dimension string
	Requested float64
	InUse     float64
	Limit     float64
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("resource limit exceeded: %s requested %.1f with %.1f in use (limit %.1f)",
		e.Dimension, e.Requested, e.InUse, e.Limit)
}

// Manager gates reservations against configured limits.
//
// The check is plain in-memory arithmetic under a mutex: every concurrent
// tool invocation synchronizes on it, so it must never block on I/O.
type Manager struct {
	limits Limits

	mu       sync.Mutex
	current  State
	consumed Usage // cumulative measured usage of completed operations
}

// NewManager creates a manager enforcing the given limits.
// Zero-valued limits are replaced with defaults.
func NewManager(limits Limits) *Manager {
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	return &Manager{limits: limits}
}

// Limits returns the configured ceiling.
func (m *Manager) Limits() Limits { return m.limits }

// Reserve attempts to claim the estimated usage. It returns an
// *ExhaustedError if granting the reservation would push any dimension over
// its limit; on success the usage is held until Release is called.
func (m *Manager) Reserve(est Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.CPUUsagePercent+est.CPUPercent > m.limits.CPUPercent {
		return &ExhaustedError{Dimension: "cpu_percent", Requested: est.CPUPercent,
			InUse: m.current.CPUUsagePercent, Limit: m.limits.CPUPercent}
	}
	if m.current.MemoryUsageMB+est.MemoryMB > m.limits.MemoryMB {
		return &ExhaustedError{Dimension: "memory_mb", Requested: float64(est.MemoryMB),
			InUse: float64(m.current.MemoryUsageMB), Limit: float64(m.limits.MemoryMB)}
	}
	if m.current.NetworkUsageMbps+est.NetworkMB > m.limits.NetworkMbps {
		return &ExhaustedError{Dimension: "network_mbps", Requested: est.NetworkMB,
			InUse: m.current.NetworkUsageMbps, Limit: m.limits.NetworkMbps}
	}
	if m.current.StorageUsageMB+est.StorageMB > m.limits.StorageMB {
		return &ExhaustedError{Dimension: "storage_mb", Requested: float64(est.StorageMB),
			InUse: float64(m.current.StorageUsageMB), Limit: float64(m.limits.StorageMB)}
	}

	m.current.CPUUsagePercent += est.CPUPercent
	m.current.MemoryUsageMB += est.MemoryMB
	m.current.NetworkUsageMbps += est.NetworkMB
	m.current.StorageUsageMB += est.StorageMB
	return nil
}

// Release returns a previously reserved estimate and records the actual
// measured usage for accounting. Counters never go below zero.
func (m *Manager) Release(est, actual Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current.CPUUsagePercent = maxf(m.current.CPUUsagePercent-est.CPUPercent, 0)
	m.current.NetworkUsageMbps = maxf(m.current.NetworkUsageMbps-est.NetworkMB, 0)
	if est.MemoryMB > m.current.MemoryUsageMB {
		m.current.MemoryUsageMB = 0
	} else {
		m.current.MemoryUsageMB -= est.MemoryMB
	}
	if est.StorageMB > m.current.StorageUsageMB {
		m.current.StorageUsageMB = 0
	} else {
		m.current.StorageUsageMB -= est.StorageMB
	}

	m.consumed.CPUPercent += actual.CPUPercent
	m.consumed.MemoryMB += actual.MemoryMB
	m.consumed.NetworkMB += actual.NetworkMB
	m.consumed.StorageMB += actual.StorageMB
}

// State returns the live aggregate of outstanding reservations.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Consumed returns the cumulative measured usage of completed operations.
func (m *Manager) Consumed() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumed
}

// Available reports whether all dimensions are currently under their limits.
func (m *Manager) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.CPUUsagePercent < m.limits.CPUPercent &&
		m.current.MemoryUsageMB < m.limits.MemoryMB &&
		m.current.NetworkUsageMbps < m.limits.NetworkMbps &&
		m.current.StorageUsageMB < m.limits.StorageMB
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
