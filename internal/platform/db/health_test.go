package db

import (
	"context"
	"errors"
	"testing"
)

func TestPoolStats_Fields(t *testing.T) {
	stats := &PoolStats{
		TotalConns:      10,
		IdleConns:       5,
		AcquiredConns:   5,
		MaxConns:        20,
		AcquireCount:    100,
		AcquireDuration: "1.5s",
		Healthy:         true,
	}

	if stats.TotalConns != 10 {
		t.Errorf("expected TotalConns 10, got %d", stats.TotalConns)
	}
	if stats.MaxConns != 20 {
		t.Errorf("expected MaxConns 20, got %d", stats.MaxConns)
	}
	if stats.AcquireDuration != "1.5s" {
		t.Errorf("expected AcquireDuration '1.5s', got %q", stats.AcquireDuration)
	}
	if !stats.Healthy {
		t.Error("expected Healthy to be true")
	}
}

func TestRunChecks_AllHealthy(t *testing.T) {
	checks := []DependencyCheck{
		{Name: "cache", Check: func(ctx context.Context) error { return nil }},
		{Name: "events", Check: func(ctx context.Context) error { return nil }},
	}
	results, ok := runChecks(context.Background(), checks)
	if !ok {
		t.Fatal("expected all checks to pass")
	}
	if results["cache"] != "ok" || results["events"] != "ok" {
		t.Errorf("unexpected results: %v", results)
	}
}

func TestRunChecks_OneFailing(t *testing.T) {
	checks := []DependencyCheck{
		{Name: "cache", Check: func(ctx context.Context) error { return errors.New("connection refused") }},
		{Name: "events", Check: func(ctx context.Context) error { return nil }},
	}
	results, ok := runChecks(context.Background(), checks)
	if ok {
		t.Fatal("expected failure to be reported")
	}
	if results["cache"] != "connection refused" {
		t.Errorf("expected error message for cache, got %q", results["cache"])
	}
	if results["events"] != "ok" {
		t.Errorf("expected events ok, got %q", results["events"])
	}
}

func TestRunChecks_Empty(t *testing.T) {
	results, ok := runChecks(context.Background(), nil)
	if !ok || len(results) != 0 {
		t.Errorf("expected empty healthy result, got %v %v", results, ok)
	}
}
