package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kestrux/supervisor/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var receivedBody []byte
	var receivedURL, receivedMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedURL = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		receivedBody = body
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"test","_index":"test-index","result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL, "test-index")

	rec := history.Record{Program: "web", Replica: 0, PID: 12345, State: "running"}
	event := history.Event{Type: history.EventStart, OccurredAt: time.Now().UTC(), Record: rec}

	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if receivedMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", receivedMethod)
	}
	if receivedURL != "/test-index/_doc" {
		t.Errorf("expected /test-index/_doc, got %s", receivedURL)
	}

	var received map[string]interface{}
	if err := json.Unmarshal(receivedBody, &received); err != nil {
		t.Fatalf("parse JSON: %v", err)
	}
	if received["type"] != string(history.EventStart) {
		t.Errorf("expected type %s, got %v", history.EventStart, received["type"])
	}
	record, ok := received["record"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected record field, got %v", received)
	}
	if record["program"] != rec.Program {
		t.Errorf("expected program %s, got %v", rec.Program, record["program"])
	}
	if record["pid"] != float64(rec.PID) {
		t.Errorf("expected pid %d, got %v", rec.PID, record["pid"])
	}
}

func TestOpenSearchSink_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	sink := New(server.URL, "test-index")
	rec := history.Record{Program: "web", PID: 1}
	event := history.Event{Type: history.EventStart, OccurredAt: time.Now().UTC(), Record: rec}

	err := sink.Send(context.Background(), event)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Errorf("expected status error, got: %v", err)
	}
}

func TestOpenSearchSink_URLConstruction(t *testing.T) {
	tests := []struct {
		name, baseURL, index, expectedPath string
	}{
		{"basic", "http://localhost:9200", "logs", "/logs/_doc"},
		{"trailing slash", "http://localhost:9200/", "events", "/events/_doc"},
		{"https", "https://opensearch.example.com", "program-history", "/program-history/_doc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var receivedURL string
			newServer := httptest.NewServer
			if strings.HasPrefix(tt.baseURL, "https://") {
				newServer = httptest.NewTLSServer
			}
			server := newServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				receivedURL = r.URL.String()
				w.WriteHeader(http.StatusCreated)
			}))
			defer server.Close()

			// Point the sink at the test server while keeping the case's
			// scheme and trailing slash.
			base := server.URL
			if strings.HasSuffix(tt.baseURL, "/") {
				base += "/"
			}
			sink := New(base, tt.index)
			sink.client = server.Client()

			rec := history.Record{Program: "test", PID: 1}
			event := history.Event{Type: history.EventStart, OccurredAt: time.Now().UTC(), Record: rec}
			_ = sink.Send(context.Background(), event)

			if receivedURL != tt.expectedPath {
				t.Errorf("expected %s, got %s", tt.expectedPath, receivedURL)
			}
		})
	}
}
