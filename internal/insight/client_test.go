package insight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClientRequiresKey(t *testing.T) {
	if NewClient("") != nil {
		t.Fatal("client without key should be nil")
	}
	if NewClient("k") == nil {
		t.Fatal("client with key should not be nil")
	}
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": "an explanation"}}}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key")
	c.SetBaseURL(srv.URL)

	text, err := c.Generate(context.Background(), "explain this")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "an explanation" {
		t.Errorf("text = %q", text)
	}
}

func TestGenerateServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"key invalid"}}`))
	}))
	defer srv.Close()

	c := NewClient("bad-key")
	c.SetBaseURL(srv.URL)

	_, err := c.Generate(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "key invalid") {
		t.Fatalf("err = %v", err)
	}
}

func TestGenerateEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewClient("k")
	c.SetBaseURL(srv.URL)
	if _, err := c.Generate(context.Background(), "q"); err == nil {
		t.Fatal("expected error for empty candidates")
	}
}
