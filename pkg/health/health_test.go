package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okCheck(context.Context) error { return nil }

func failingCheck(context.Context) error { return errors.New("connection refused") }

// TestCompositeChecker_Healthy проверяет статус при доступных зависимостях
func TestCompositeChecker_Healthy(t *testing.T) {
	checker := NewCompositeChecker("v1.0.0", time.Second).
		Register("redis", okCheck).
		Register("postgres", okCheck)

	status := checker.Check(context.Background())

	if status.Status != StatusHealthy {
		t.Errorf("Expected status 'healthy', got %s", status.Status)
	}
	if status.Timestamp.IsZero() {
		t.Error("Expected timestamp, got zero")
	}
	if status.Version != "v1.0.0" {
		t.Errorf("Expected version 'v1.0.0', got %s", status.Version)
	}
	if len(status.Services) != 2 {
		t.Errorf("Expected 2 services, got %d", len(status.Services))
	}
}

// TestCompositeChecker_Unhealthy проверяет статус при сбое зависимости
func TestCompositeChecker_Unhealthy(t *testing.T) {
	checker := NewCompositeChecker("v1.0.0", time.Second).
		Register("redis", failingCheck).
		Register("postgres", okCheck)

	status := checker.Check(context.Background())

	if status.Status != StatusUnhealthy {
		t.Errorf("Expected status 'unhealthy', got %s", status.Status)
	}
	if status.Services["redis"].Details != "connection refused" {
		t.Errorf("Unexpected redis details %q", status.Services["redis"].Details)
	}
	if status.Services["postgres"].Status != StatusHealthy {
		t.Errorf("Expected postgres healthy, got %s", status.Services["postgres"].Status)
	}
}

// TestCompositeChecker_Timeout проверяет таймаут зависимости
func TestCompositeChecker_Timeout(t *testing.T) {
	checker := NewCompositeChecker("", 20*time.Millisecond).
		Register("slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

	if checker.Check(context.Background()).Healthy() {
		t.Error("Expected slow dependency to be unhealthy")
	}
}

// TestHandler проверяет HTTP обработчик
func TestHandler(t *testing.T) {
	testCases := []struct {
		name     string
		check    CheckFunc
		expected int
	}{
		{"healthy", okCheck, http.StatusOK},
		{"unhealthy", failingCheck, http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			checker := NewCompositeChecker("v1.0.0", time.Second).Register("redis", tc.check)

			w := httptest.NewRecorder()
			Handler(checker)(w, httptest.NewRequest("GET", "/health", nil))

			if w.Code != tc.expected {
				t.Errorf("Expected status code %d, got %d", tc.expected, w.Code)
			}
			if w.Header().Get("Content-Type") != "application/json" {
				t.Errorf("Expected Content-Type 'application/json', got %s", w.Header().Get("Content-Type"))
			}

			var status HealthStatus
			if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if status.Status != tc.name {
				t.Errorf("Expected status %s, got %s", tc.name, status.Status)
			}
		})
	}
}

// TestReadyHandler проверяет ready check
func TestReadyHandler(t *testing.T) {
	w := httptest.NewRecorder()
	ReadyHandler(NewCompositeChecker("", time.Second).Register("redis", failingCheck))(w, httptest.NewRequest("GET", "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	ReadyHandler(NewCompositeChecker("", time.Second))(w, httptest.NewRequest("GET", "/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

// TestLiveHandler проверяет live check
func TestLiveHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LiveHandler()(w, httptest.NewRequest("GET", "/live", nil))

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["status"] != "alive" {
		t.Errorf("Expected status 'alive', got %s", response["status"])
	}
}
