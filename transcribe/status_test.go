package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPBase(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"ws://localhost:8000/ws/transcribe", "http://localhost:8000", false},
		{"wss://example.com/ws/transcribe?x=1", "https://example.com", false},
		{"http://example.com:9000/", "http://example.com:9000", false},
		{"ftp://example.com", "", true},
	}
	for _, tt := range tests {
		got, err := HTTPBase(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("HTTPBase(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("HTTPBase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "online", "service": "Wisprflow API", "whisper_available": true,
		})
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transcription":{"available":true,"engine":"whisper"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := &StatusClient{BaseURL: srv.URL, HTTPClient: srv.Client()}

	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if h.Status != "online" || !h.WhisperAvailable {
		t.Errorf("Health() = %+v", h)
	}

	e, err := c.Engine(context.Background())
	if err != nil {
		t.Fatalf("Engine() error = %v", err)
	}
	if !e.Transcription.Available || e.Transcription.Engine != "whisper" {
		t.Errorf("Engine() = %+v", e)
	}
}

func TestStatusClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := &StatusClient{BaseURL: srv.URL, HTTPClient: srv.Client()}
	if _, err := c.Health(context.Background()); err == nil {
		t.Error("Health() succeeded against a failing server")
	}
}
