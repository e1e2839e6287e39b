package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/jmylchreest/hlsgate/internal/httpclient"
)

func TestHealthHandler_GetHealth(t *testing.T) {
	handler := NewHealthHandler("1.0.0")

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output == nil {
		t.Fatal("expected non-nil output")
	}

	if output.Body.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", output.Body.Status)
	}

	if output.Body.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", output.Body.Version)
	}

	if output.Body.Uptime == "" {
		t.Error("expected non-empty uptime")
	}

	if output.Body.CPUInfo.Cores == 0 {
		t.Error("expected non-zero CPU cores")
	}

	if output.Body.Components.Database.Status != "unknown" {
		t.Errorf("expected database status 'unknown' without a db, got '%s'", output.Body.Components.Database.Status)
	}

	if output.Body.Components.Scheduler.Status != "disabled" {
		t.Errorf("expected scheduler status 'disabled', got '%s'", output.Body.Components.Scheduler.Status)
	}

	if output.Body.Checks["database"] != "unknown" {
		t.Errorf("expected database check 'unknown', got '%s'", output.Body.Checks["database"])
	}
}

func TestHealthHandler_StreamsSummary(t *testing.T) {
	controller := newFakeController()
	controller.setActive("ch1", nil)
	controller.setActive("ch2", nil)

	handler := NewHealthHandler("test").WithStreamController(controller)

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output.Body.Components.Streams.Active != 2 {
		t.Errorf("expected 2 active streams, got %d", output.Body.Components.Streams.Active)
	}

	ids := output.Body.Components.Streams.IDs
	if len(ids) != 2 || ids[0] != "ch1" || ids[1] != "ch2" {
		t.Errorf("unexpected stream IDs: %v", ids)
	}
}

func TestHealthHandler_CircuitBreakers(t *testing.T) {
	manager := httpclient.NewCircuitBreakerManager(5, 30*time.Second, 1)
	manager.GetOrCreate("ch2")
	manager.GetOrCreate("ch1")

	handler := NewHealthHandler("test").WithCircuitBreakerManager(manager)

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	breakers := output.Body.Components.CircuitBreakers
	if len(breakers) != 2 {
		t.Fatalf("expected 2 breakers, got %d", len(breakers))
	}

	// Sorted by name so the report is stable.
	if breakers[0].Name != "ch1" || breakers[1].Name != "ch2" {
		t.Errorf("unexpected breaker order: %s, %s", breakers[0].Name, breakers[1].Name)
	}

	if breakers[0].State != "closed" {
		t.Errorf("expected new breaker to be closed, got '%s'", breakers[0].State)
	}
}

func TestHealthHandler_SchedulerStatus(t *testing.T) {
	handler := NewHealthHandler("test").WithScheduler(stubScheduler{running: true, jobs: 2})

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output.Body.Components.Scheduler.Status != "ok" {
		t.Errorf("expected scheduler status 'ok', got '%s'", output.Body.Components.Scheduler.Status)
	}

	if output.Body.Components.Scheduler.Jobs != 2 {
		t.Errorf("expected 2 jobs, got %d", output.Body.Components.Scheduler.Jobs)
	}
}

type stubScheduler struct {
	running bool
	jobs    int
}

func (s stubScheduler) Running() bool { return s.running }
func (s stubScheduler) JobCount() int { return s.jobs }
