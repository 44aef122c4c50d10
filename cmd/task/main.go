// Command task is the worker program launched by procsched. It prints a
// heartbeat line until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const defaultInterval = time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := intervalFromEnv(os.Getenv("TASK_INTERVAL"))
	if err := run(ctx, os.Stdout, os.Getpid(), interval); err != nil {
		slog.Error("task failed", "error", err)
		os.Exit(1)
	}
}

func intervalFromEnv(s string) time.Duration {
	if s == "" {
		return defaultInterval
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		slog.Warn("ignoring TASK_INTERVAL", "value", s)
		return defaultInterval
	}
	return d
}

// run prints "Process <pid> at iteration <n>" every interval, starting at 0,
// until ctx ends.
func run(ctx context.Context, w io.Writer, pid int, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for n := 0; ; n++ {
		if _, err := fmt.Fprintf(w, "Process %d at iteration %d\n", pid, n); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
