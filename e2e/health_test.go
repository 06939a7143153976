package e2e

import (
	"net/http"
	"testing"
)

func TestHealthCheck(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/health", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}

	services, ok := body["services"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected services object, got %v", body["services"])
	}
	if services["engine"] != false {
		t.Errorf("expected engine unavailable in test setup, got %v", services["engine"])
	}
	if services["auth"] != true {
		t.Errorf("expected auth enabled, got %v", services["auth"])
	}
}

func TestRootTimestamp(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if _, ok := body["timestamp"]; !ok {
		t.Error("expected timestamp in response")
	}
}
