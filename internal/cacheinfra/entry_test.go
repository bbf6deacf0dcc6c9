package cacheinfra

import (
	"testing"
	"time"
)

func TestEntry_Expired(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		ttl     time.Duration
		at      time.Duration
		expired bool
	}{
		{"forever never expires", -1, 1000 * time.Hour, false},
		{"before deadline", time.Minute, 59 * time.Second, false},
		{"at deadline", time.Minute, time.Minute, true},
		{"after deadline", time.Minute, 2 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEntry([]byte("v"), tt.ttl, now)
			if got := e.expired(now.Add(tt.at)); got != tt.expired {
				t.Errorf("expired = %v, want %v", got, tt.expired)
			}
		})
	}
}
