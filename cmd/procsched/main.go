package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loykin/procsched/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := buildRoot(config.New())
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds flags that are not mirrored in the config file.
type GlobalFlags struct {
	ConfigPath string
}

// buildRoot creates the root command. Flag values are bound into v so that the
// precedence is flag > PROCSCHED_* env > config file > default.
func buildRoot(v *viper.Viper) *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(v, globalFlags)
	root.AddCommand(createVersionCommand(), createCtlCommand())
	return root
}

func createRootCommand(v *viper.Viper, flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "procsched",
		Short: "Interactive FCFS / Round-Robin process scheduler",
		Long: `procsched launches worker processes and schedules them with
First-Come-First-Served or preemptive Round-Robin using SIGSTOP/SIGCONT.

Shell commands:
  c N      create N workers
  l        list workers (l -v adds the OS status)
  s rr Q   Round-Robin with a quantum of Q seconds
  s fcfs   First-Come-First-Served
  k ID     kill worker ID
  r ID     resume worker ID
  r all    resume all suspended workers
  x        terminate all workers and exit

Examples:
  procsched
  procsched --mode=rr --quantum=2s --worker-cmd="./task"
  procsched --config=procsched.toml --api-listen=:8080 --history=sqlite:///tmp/sched.db`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, flags.ConfigPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			return runController(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")

	f := root.Flags()
	f.Int("capacity", 10, "maximum number of workers")
	f.String("worker-cmd", "./task", "worker command line")
	f.String("mode", "fcfs", "initial scheduling mode (fcfs or rr)")
	f.Duration("quantum", time.Second, "Round-Robin quantum, e.g. 2s")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("log-format", "text", "log format (text or json)")
	f.String("metrics-listen", "", "serve Prometheus metrics on this address (e.g. :9090)")
	f.String("api-listen", "", "serve the HTTP control API on this address (e.g. :8080)")
	f.StringArray("history", nil, "history sink DSN (repeatable): sqlite, postgres, clickhouse, opensearch")

	bindFlag(v, "scheduler.capacity", f.Lookup("capacity"))
	bindFlag(v, "worker.command", f.Lookup("worker-cmd"))
	bindFlag(v, "scheduler.mode", f.Lookup("mode"))
	bindFlag(v, "scheduler.quantum", f.Lookup("quantum"))
	bindFlag(v, "log.level", f.Lookup("log-level"))
	bindFlag(v, "log.format", f.Lookup("log-format"))
	bindFlag(v, "metrics.listen", f.Lookup("metrics-listen"))
	bindFlag(v, "server.listen", f.Lookup("api-listen"))
	bindFlag(v, "history.sinks", f.Lookup("history"))

	return root
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the procsched version",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "procsched %s\n", version)
		},
	}
}
