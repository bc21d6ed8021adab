package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func resetHealth() {
	healthChecker = &HealthChecker{
		components: make(map[string]ComponentHealth),
		startTime:  time.Now(),
	}
}

func TestRegisterComponent(t *testing.T) {
	resetHealth()

	RegisterComponent("ghs-prep", true, "120/2000 processed")

	if len(healthChecker.components) != 1 {
		t.Errorf("expected 1 component, got %d", len(healthChecker.components))
	}

	comp := healthChecker.components["ghs-prep"]
	if !comp.Healthy {
		t.Error("component should be healthy")
	}

	if comp.Message != "120/2000 processed" {
		t.Errorf("unexpected message '%s'", comp.Message)
	}
}

func TestUpdateComponent(t *testing.T) {
	resetHealth()

	RegisterComponent("ghs-prep", true, "running")
	UpdateComponent("ghs-prep", false, "failure threshold exceeded")

	comp := healthChecker.components["ghs-prep"]
	if comp.Healthy {
		t.Error("component should be unhealthy after update")
	}

	if comp.Message != "failure threshold exceeded" {
		t.Errorf("unexpected message '%s'", comp.Message)
	}
}

func TestGetHealth_AllHealthy(t *testing.T) {
	resetHealth()
	healthChecker.version = "1.0.0"

	RegisterComponent("ghs-prep", true, "")
	RegisterComponent("merge", true, "")

	health := GetHealth()

	if health.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", health.Status)
	}

	if len(health.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(health.Components))
	}

	if health.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", health.Version)
	}
}

func TestGetHealth_OneUnhealthy(t *testing.T) {
	resetHealth()

	RegisterComponent("ghs-prep", true, "")
	RegisterComponent("merge", false, "failure threshold exceeded")

	health := GetHealth()

	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", health.Status)
	}

	if health.Components["merge"] != "unhealthy: failure threshold exceeded" {
		t.Errorf("unexpected merge status: %s", health.Components["merge"])
	}
}

func TestGetReadiness_AllReady(t *testing.T) {
	resetHealth()

	RegisterComponent("config", true, "")
	RegisterComponent("registry", true, "")

	readiness := GetReadiness()

	if readiness.Status != "ready" {
		t.Errorf("expected status 'ready', got '%s'", readiness.Status)
	}
}

func TestGetReadiness_MissingCriticalComponent(t *testing.T) {
	resetHealth()

	RegisterComponent("config", true, "")
	// registry not registered

	readiness := GetReadiness()

	if readiness.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", readiness.Status)
	}

	if readiness.Message == "" {
		t.Error("expected message explaining why not ready")
	}
}

func TestGetReadiness_CriticalComponentUnhealthy(t *testing.T) {
	resetHealth()

	RegisterComponent("config", true, "")
	RegisterComponent("registry", false, "database is locked")

	readiness := GetReadiness()

	if readiness.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", readiness.Status)
	}
}

func TestGetReadiness_IgnoresJobComponents(t *testing.T) {
	resetHealth()

	RegisterComponent("config", true, "")
	RegisterComponent("registry", true, "")
	RegisterComponent("ghs-prep", false, "failure threshold exceeded")

	readiness := GetReadiness()

	if readiness.Status != "ready" {
		t.Errorf("job health must not affect readiness, got '%s'", readiness.Status)
	}
}

func TestHealthHandler(t *testing.T) {
	resetHealth()
	healthChecker.version = "test"

	RegisterComponent("ghs-prep", true, "")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler := HealthHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var health HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if health.Status != "healthy" {
		t.Errorf("expected healthy status, got %s", health.Status)
	}

	if health.Version != "test" {
		t.Errorf("expected version 'test', got %s", health.Version)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	resetHealth()

	RegisterComponent("ghs-prep", false, "cluster unreachable")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler := HealthHandler()
	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestReadyHandler_NotReady(t *testing.T) {
	resetHealth()

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	handler := ReadyHandler()
	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var readiness HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&readiness); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if readiness.Status != "not_ready" {
		t.Errorf("expected not_ready status, got %s", readiness.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	resetHealth()

	req := httptest.NewRequest("GET", "/live", nil)
	w := httptest.NewRecorder()

	handler := LivenessHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response["status"] != "alive" {
		t.Errorf("expected status 'alive', got '%s'", response["status"])
	}

	if response["uptime"] == "" {
		t.Error("uptime should not be empty")
	}
}
