package system

import (
	"context"
	"testing"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReadMemoryStats(t *testing.T) {
	st, err := ReadMemoryStats(context.Background())
	if err != nil {
		t.Skipf("memory stats unavailable: %v", err)
	}
	if st.SystemTotal == 0 || st.ProcessRSS == 0 {
		t.Errorf("expected non-zero readings, got %+v", st)
	}
	t.Logf("memory: %s", st)
}
