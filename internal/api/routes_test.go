package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/synapse-fi/bridge-hub/internal/config"
	"github.com/synapse-fi/bridge-hub/internal/hub"
	"github.com/synapse-fi/bridge-hub/pkg/models"
)

const testKey = "test-api-key-123"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := hub.New(config.Defaults(), nil)
	return SetupRouter(h, NewStreamHub(), testKey)
}

func doRequest(r *gin.Engine, method, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_UniformRejection(t *testing.T) {
	r := newTestRouter(t)

	missing := doRequest(r, "GET", "/stats", "", "")
	wrong := doRequest(r, "GET", "/stats", "wrong-key", "")

	if missing.Code != http.StatusUnauthorized || wrong.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for both, got %d/%d", missing.Code, wrong.Code)
	}
	// Same body either way: do not leak which check failed.
	if missing.Body.String() != wrong.Body.String() {
		t.Errorf("Responses differ: %q vs %q", missing.Body.String(), wrong.Body.String())
	}
}

func TestPublicEndpoints_NoAuth(t *testing.T) {
	r := newTestRouter(t)

	if w := doRequest(r, "GET", "/", "", ""); w.Code != http.StatusOK {
		t.Errorf("Root must be public, got %d", w.Code)
	}
	if w := doRequest(r, "GET", "/health", "", ""); w.Code != http.StatusOK {
		t.Errorf("Health must be public, got %d", w.Code)
	}
}

func TestIngest_Accepted(t *testing.T) {
	r := newTestRouter(t)

	body := `{"entity_id":"bank_001","fingerprint":"fp_api_test_01","severity":"HIGH","timestamp":"2026-08-25T12:00:00Z"}`
	w := doRequest(r, "POST", "/ingest", testKey, body)

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var res hub.IngestResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("Bad response body: %v", err)
	}
	if res.Status != "accepted" || res.CorrelationDetected {
		t.Errorf("Unexpected result: %+v", res)
	}
	if res.Fingerprint != "fp_api_test_01..." {
		t.Errorf("Expected truncated fingerprint echo, got %q", res.Fingerprint)
	}
}

func TestIngest_ValidationRejected(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"Missing entity", `{"fingerprint":"fp_api_test_01","severity":"HIGH","timestamp":"2026-08-25T12:00:00Z"}`},
		{"Unknown severity", `{"entity_id":"bank_001","fingerprint":"fp_api_test_01","severity":"SEVERE","timestamp":"2026-08-25T12:00:00Z"}`},
		{"Unparseable timestamp", `{"entity_id":"bank_001","fingerprint":"fp_api_test_01","severity":"HIGH","timestamp":"yesterday"}`},
		{"Not JSON", `ingest please`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := doRequest(r, "POST", "/ingest", testKey, tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestAdvisoryByID_NotFound(t *testing.T) {
	r := newTestRouter(t)

	if w := doRequest(r, "GET", "/advisories/ADV-missing", testKey, ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestPatternHistory_NotFound(t *testing.T) {
	r := newTestRouter(t)

	if w := doRequest(r, "GET", "/patterns/fp_never_seen", testKey, ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestConfigUpdate_UnknownKeyRejected(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(r, "POST", "/admin/config/update", testKey, `{"entity_treshold": 3}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown key, got %d: %s", w.Code, w.Body.String())
	}
}

func TestConfigUpdate_Applied(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(r, "POST", "/admin/config/update", testKey, `{"entity_threshold": 3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"entity_threshold":3`) {
		t.Errorf("Expected updated config echoed, got %s", w.Body.String())
	}
}

func TestMetricsEndpoints(t *testing.T) {
	r := newTestRouter(t)

	body := `{"entity_id":"bank_001","fingerprint":"fp_api_test_02","severity":"HIGH","timestamp":"2026-08-25T12:00:00Z"}`
	doRequest(r, "POST", "/ingest", testKey, body)

	w := doRequest(r, "GET", "/metrics", testKey, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"fingerprints_ingested":1`) {
		t.Errorf("Unexpected metrics response %d: %s", w.Code, w.Body.String())
	}

	prom := doRequest(r, "GET", "/metrics/prometheus", testKey, "")
	if prom.Code != http.StatusOK || !strings.Contains(prom.Body.String(), "hub_fingerprints_ingested_total") {
		t.Errorf("Unexpected prometheus scrape %d", prom.Code)
	}
}

// The ingress message must structurally carry nothing beyond the opaque
// entity ID, the fingerprint, a severity tag and a timestamp.
func TestRiskFingerprint_NoPIIFields(t *testing.T) {
	allowed := map[string]bool{
		"entity_id":   true,
		"fingerprint": true,
		"severity":    true,
		"timestamp":   true,
	}

	typ := reflect.TypeOf(models.RiskFingerprint{})
	for i := 0; i < typ.NumField(); i++ {
		tag := strings.Split(typ.Field(i).Tag.Get("json"), ",")[0]
		if !allowed[tag] {
			t.Errorf("Unexpected ingress field %q: the no-PII contract forbids additions", tag)
		}
	}
	if typ.NumField() != len(allowed) {
		t.Errorf("Expected exactly %d ingress fields, got %d", len(allowed), typ.NumField())
	}
}
