package store

import (
	"context"
	"testing"
)

func TestHealthCheckWithoutPool(t *testing.T) {
	// Stores assembled without a pool (tests, tooling) are always healthy.
	s := &Store{}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck without pool: %v", err)
	}
}
