package scheduler

import (
	"errors"
	"testing"
	"time"
)

func TestTableAddAndCapacity(t *testing.T) {
	tb := NewTable(2)
	now := time.Now()
	for i := 0; i < 2; i++ {
		e, err := tb.Add(newFakeWorker(100+i), now)
		if err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
		if e.ID != i+1 || e.State != StateReady {
			t.Fatalf("unexpected entry: %+v", e)
		}
	}
	if _, err := tb.Add(newFakeWorker(200), now); !errors.Is(err, ErrTableFull) {
		t.Fatalf("expected ErrTableFull, got %v", err)
	}
	if tb.Len() != 2 || tb.NextID() != 3 {
		t.Fatalf("rejected add changed the table: len=%d next=%d", tb.Len(), tb.NextID())
	}
}

func TestTableDefaultCapacity(t *testing.T) {
	if got := NewTable(0).Cap(); got != DefaultCapacity {
		t.Fatalf("Cap() = %d, want %d", got, DefaultCapacity)
	}
}

func TestTableTransitions(t *testing.T) {
	tb := NewTable(3)
	for i := 0; i < 3; i++ {
		if _, err := tb.Add(newFakeWorker(i), time.Now()); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := tb.Set(0, StateRunning); err != nil {
		t.Fatalf("Ready->Running: %v", err)
	}
	if _, err := tb.Set(1, StateRunning); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second Running must be rejected, got %v", err)
	}
	if tb.At(1).State != StateReady {
		t.Fatalf("rejected transition changed state to %v", tb.At(1).State)
	}

	if _, err := tb.Set(2, StateTerminated); err != nil {
		t.Fatal(err)
	}
	for _, to := range []State{StateReady, StateRunning, StateSuspended} {
		if _, err := tb.Set(2, to); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("Terminated->%v must be rejected, got %v", to, err)
		}
	}
	if got := tb.Count(StateTerminated); got != 1 {
		t.Fatalf("Count(Terminated) = %d", got)
	}
	if tb.IndexOf(2) != 1 || tb.IndexOf(42) != -1 {
		t.Fatal("IndexOf mismatch")
	}
}

func TestTableRowsVerbose(t *testing.T) {
	tb := NewTable(2)
	if _, err := tb.Add(&statusWorker{fakeWorker: newFakeWorker(7), status: "stop"}, time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := tb.Add(newFakeWorker(8), time.Now()); err != nil {
		t.Fatal(err)
	}
	tb.At(1).ExitErr = errors.New("exit status 2")

	rows := tb.Rows(false)
	if rows[0].OSStatus != "" {
		t.Fatalf("non-verbose row carries OS status %q", rows[0].OSStatus)
	}
	rows = tb.Rows(true)
	if rows[0].OSStatus != "stop" || rows[1].OSStatus != "" {
		t.Fatalf("unexpected OS status: %+v", rows)
	}
	if rows[1].ExitError != "exit status 2" || rows[1].PID != 8 {
		t.Fatalf("unexpected row: %+v", rows[1])
	}
}

type statusWorker struct {
	*fakeWorker
	status string
}

func (s *statusWorker) OSStatus() string { return s.status }

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"fcfs": ModeFCFS, "FCFS": ModeFCFS, "": ModeFCFS, "rr": ModeRoundRobin, "Round-Robin": ModeRoundRobin}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("sjf"); err == nil {
		t.Error("ParseMode(sjf) should fail")
	}
	b, _ := StateSuspended.MarshalText()
	if string(b) != "Suspended" {
		t.Errorf("MarshalText = %s", b)
	}
}
