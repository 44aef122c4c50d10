package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/loykin/procsched"
	"github.com/loykin/procsched/internal/config"
	"github.com/loykin/procsched/internal/history"
	"github.com/loykin/procsched/internal/history/factory"
	"github.com/loykin/procsched/internal/process"
	"github.com/loykin/procsched/internal/shell"
	itls "github.com/loykin/procsched/internal/tls"
)

const shutdownTimeout = 5 * time.Second

// runController wires the scheduler to its front ends and blocks until the
// shell exits. SIGINT suspends the Running worker; SIGTERM ends the shell.
func runController(parent context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	log := cfg.LoggerConfig().NewSlogger()
	runID := uuid.NewString()
	log = log.With("run_id", runID)

	if err := procsched.RegisterMetricsDefault(); err != nil {
		log.Warn("failed to register metrics", "error", err)
	}

	recorder, err := openHistory(parent, cfg, log)
	if err != nil {
		return err
	}
	if recorder != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := recorder.Close(ctx); err != nil {
				log.Warn("history close", "error", err)
			}
			if n := recorder.Dropped(); n > 0 {
				log.Warn("history events dropped", "count", n)
			}
		}()
	}

	opts, err := procsched.OSOptions(cfg)
	if err != nil {
		return err
	}
	opts.Logger = log
	opts.RunID = runID
	if l, ok := opts.Launcher.(*process.Launcher); ok {
		l.Logger = log
	}
	if recorder != nil {
		opts.History = recorder
	}
	sched, err := procsched.New(opts)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = sched.Shutdown(ctx)
	}()
	log.Info("scheduler started", "mode", opts.Mode.String(), "capacity", opts.Capacity, "worker", cfg.Worker.Command)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	apiTLS, err := itls.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("api tls: %w", err)
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return shell.New(sched, in, out, cfg.Shell.Prompt, log).Run(gctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-interrupts:
				log.Debug("interrupt signal received")
				sched.Interrupt()
			case <-gctx.Done():
				return nil
			}
		}
	})
	if cfg.Server.Listen != "" {
		srv := procsched.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, sched)
		srv.TLSConfig = apiTLS
		serve(gctx, g, srv, "api", log)
	}
	if cfg.Metrics.Listen != "" {
		serve(gctx, g, procsched.NewMetricsServer(cfg.Metrics.Listen), "metrics", log)
	}
	return g.Wait()
}

// serve runs srv inside g and shuts it down when ctx ends.
func serve(ctx context.Context, g *errgroup.Group, srv *http.Server, name string, log *slog.Logger) {
	g.Go(func() error {
		log.Info("http server listening", "server", name, "addr", srv.Addr, "tls", srv.TLSConfig != nil)
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
}

// openHistory connects every configured sink. It returns nil when none are set.
func openHistory(ctx context.Context, cfg *config.Config, log *slog.Logger) (*history.Recorder, error) {
	if len(cfg.History.Sinks) == 0 {
		return nil, nil
	}
	sinks := make([]history.Sink, 0, len(cfg.History.Sinks))
	for _, dsn := range cfg.History.Sinks {
		s, err := factory.NewSinkFromDSN(ctx, dsn)
		if err != nil {
			for _, opened := range sinks {
				if c, ok := opened.(io.Closer); ok {
					_ = c.Close()
				}
			}
			return nil, fmt.Errorf("open history sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	return history.NewRecorder(log, cfg.History.Buffer, sinks...), nil
}
