package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoad(t *testing.T) {
	doc, err := Load()
	if err != nil {
		t.Fatalf("Load() ошибка: %v", err)
	}

	for _, path := range []string{
		"/api/v1/me",
		"/api/v1/users/{id}",
		"/api/v1/users/{id}/roles/{roleId}",
		"/api/v1/locations",
		"/api/v1/machines/{id}",
		"/api/v1/external-applications",
		"/api/v1/roles/{id}/permissions/{permissionId}",
		"/api/v1/permissions",
	} {
		if doc.Paths.Find(path) == nil {
			t.Errorf("путь %s отсутствует в документе", path)
		}
	}
}

func TestHandler(t *testing.T) {
	doc, err := Load()
	if err != nil {
		t.Fatalf("Load() ошибка: %v", err)
	}
	h, err := Handler(doc)
	if err != nil {
		t.Fatalf("Handler() ошибка: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, хотели 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("ответ не JSON: %v", err)
	}
	if body["openapi"] != "3.0.3" {
		t.Errorf("openapi = %v, хотели 3.0.3", body["openapi"])
	}
}
