package resources

import (
	"errors"
	"testing"
)

func TestReserve(t *testing.T) {
	limits := Limits{CPUPercent: 80, MemoryMB: 2048, NetworkMbps: 100, StorageMB: 10240}

	tests := []struct {
		name    string
		held    Usage // reserved before the attempt
		request Usage
		wantErr bool
		wantDim string
	}{
		{
			name:    "within limits",
			request: Usage{CPUPercent: 10, MemoryMB: 100, NetworkMB: 5},
		},
		{
			name:    "cpu over limit",
			held:    Usage{CPUPercent: 75},
			request: Usage{CPUPercent: 10},
			wantErr: true,
			wantDim: "cpu_percent",
		},
		{
			name:    "memory over limit",
			held:    Usage{MemoryMB: 2000},
			request: Usage{MemoryMB: 100},
			wantErr: true,
			wantDim: "memory_mb",
		},
		{
			name:    "network over limit",
			held:    Usage{NetworkMB: 99},
			request: Usage{NetworkMB: 2},
			wantErr: true,
			wantDim: "network_mbps",
		},
		{
			name:    "storage over limit",
			held:    Usage{StorageMB: 10240},
			request: Usage{StorageMB: 1},
			wantErr: true,
			wantDim: "storage_mb",
		},
		{
			name:    "exactly at limit is allowed",
			held:    Usage{CPUPercent: 70},
			request: Usage{CPUPercent: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(limits)
			if tt.held != (Usage{}) {
				if err := m.Reserve(tt.held); err != nil {
					t.Fatalf("setup reservation failed: %v", err)
				}
			}

			err := m.Reserve(tt.request)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Reserve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var exhausted *ExhaustedError
				if !errors.As(err, &exhausted) {
					t.Fatalf("expected *ExhaustedError, got %T", err)
				}
				if exhausted.Dimension != tt.wantDim {
					t.Errorf("dimension = %q, want %q", exhausted.Dimension, tt.wantDim)
				}
			}
		})
	}
}

func TestReleaseReturnsReservation(t *testing.T) {
	m := NewManager(Limits{CPUPercent: 20, MemoryMB: 100, NetworkMbps: 10, StorageMB: 100})

	est := Usage{CPUPercent: 15, MemoryMB: 80, NetworkMB: 8}
	if err := m.Reserve(est); err != nil {
		t.Fatalf("first reservation failed: %v", err)
	}
	// A second identical reservation must be rejected while the first is held.
	if err := m.Reserve(est); err == nil {
		t.Fatal("expected second reservation to be rejected")
	}

	m.Release(est, Usage{CPUPercent: 12, MemoryMB: 60, NetworkMB: 4})

	st := m.State()
	if st.CPUUsagePercent != 0 || st.MemoryUsageMB != 0 || st.NetworkUsageMbps != 0 {
		t.Errorf("state not zeroed after release: %+v", st)
	}
	if err := m.Reserve(est); err != nil {
		t.Errorf("reservation after release failed: %v", err)
	}

	got := m.Consumed()
	if got.CPUPercent != 12 || got.MemoryMB != 60 || got.NetworkMB != 4 {
		t.Errorf("consumed = %+v, want measured usage", got)
	}
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	m := NewManager(DefaultLimits())
	m.Release(Usage{CPUPercent: 50, MemoryMB: 500, NetworkMB: 50, StorageMB: 50}, Usage{})
	st := m.State()
	if st.CPUUsagePercent != 0 || st.MemoryUsageMB != 0 || st.NetworkUsageMbps != 0 || st.StorageUsageMB != 0 {
		t.Errorf("counters went negative: %+v", st)
	}
}

func TestAvailable(t *testing.T) {
	m := NewManager(Limits{CPUPercent: 10, MemoryMB: 10, NetworkMbps: 10, StorageMB: 10})
	if !m.Available() {
		t.Fatal("fresh manager should be available")
	}
	if err := m.Reserve(Usage{CPUPercent: 10}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if m.Available() {
		t.Error("manager at cpu limit should not be available")
	}
}
