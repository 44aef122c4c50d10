package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcch "github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/procsched/internal/history"
)

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	ctr, err := tcch.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		tcch.WithUsername("default"),
		tcch.WithPassword(""),
		tcch.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("ClickHouse container unavailable: %v", err)
	}
	defer func() { _ = ctr.Terminate(ctx) }()

	host, err := ctr.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := ctr.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}

	sink, err := New(ctx, Options{Addr: host + ":" + port.Port(), Table: "sched_events_test"})
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	evt := history.Event{
		Type:       history.EventTransition,
		OccurredAt: time.Now(),
		Record:     history.Record{RunID: "ch-run", WorkerID: 3, PID: 77, From: "Suspended", To: "Running", Reason: "rr", Mode: "RoundRobin"},
	}
	if err := sink.Send(ctx, evt); err != nil {
		t.Fatalf("send: %v", err)
	}
	n, err := sink.Count(ctx, "ch-run")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}
