package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loykin/procsched/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var receivedBody []byte
	var receivedURL string
	var receivedMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedURL = r.URL.Path
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"test","_index":"sched","result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "sched")
	event := history.Event{
		Type:       history.EventTransition,
		OccurredAt: time.Now().UTC(),
		Record:     history.Record{RunID: "r1", WorkerID: 2, PID: 99, From: "Running", To: "Suspended", Reason: "preempt", Mode: "RoundRobin"},
	}
	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if receivedMethod != http.MethodPost {
		t.Errorf("Expected POST method, got: %s", receivedMethod)
	}
	if receivedURL != "/sched/_doc" {
		t.Errorf("unexpected path: %s", receivedURL)
	}

	var got history.Event
	if err := json.Unmarshal(receivedBody, &got); err != nil {
		t.Fatalf("invalid json body: %v", err)
	}
	if got.Record.To != "Suspended" || got.Record.WorkerID != 2 || got.Type != history.EventTransition {
		t.Fatalf("unexpected document: %+v", got)
	}
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	if err := New(server.URL, "idx").Send(context.Background(), history.Event{}); err == nil {
		t.Fatalf("expected error on 400 response")
	}
}
