// Package testutil holds helpers shared by handler and service tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func NewTestRequest(method, path string, body io.Reader) *http.Request {
	return httptest.NewRequest(method, path, body)
}

func NewTestRequestWithJSON(t *testing.T, method, path string, payload any) *http.Request {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func ParseJSONResponse(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("failed to parse response %q: %v", body, err)
	}
	return out
}

func AssertStatusCode(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

func AssertJSONContains(t *testing.T, body []byte, key string, want any) {
	t.Helper()
	got, ok := ParseJSONResponse(t, body)[key]
	if !ok {
		t.Fatalf("expected key %q in %s", key, body)
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %s=%v, got %v", key, want, got)
	}
}

func RandomUUID() uuid.UUID {
	return uuid.New()
}

// RandomPlayerID returns a unique player id with a readable prefix.
func RandomPlayerID() string {
	return "player-" + uuid.NewString()[:8]
}
