package ftp

import (
	"testing"
	"time"
)

func TestWithIdleTimeout(t *testing.T) {
	// Test that idle timeout is set correctly
	// We can't fully test the functionality without a real server,
	// but we can verify the option sets the field
	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{"5 minutes", 5 * time.Minute},
		{"30 seconds", 30 * time.Second},
		{"disabled", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create a client with the option (will fail to connect, but that's ok)
			c := &Client{}
			opt := WithIdleTimeout(tt.timeout)
			if err := opt(c); err != nil {
				t.Fatalf("WithIdleTimeout failed: %v", err)
			}

			if c.idleTimeout != tt.timeout {
				t.Errorf("Expected idleTimeout %v, got %v", tt.timeout, c.idleTimeout)
			}
		})
	}
}
