package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/procsched/pkg/client"
)

// CtlFlags holds the connection flags of the ctl subcommands.
type CtlFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Insecure   bool
	Verbose    bool
}

func (f *CtlFlags) client() *client.Client {
	return client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout, Insecure: f.Insecure})
}

// createCtlCommand drives a running controller over its HTTP API.
func createCtlCommand() *cobra.Command {
	flags := &CtlFlags{}
	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Control a running procsched over its HTTP API",
		Long: `Control a procsched instance started with --api-listen.

Examples:
  procsched ctl list --api-url=http://localhost:8080/api
  procsched ctl create 3
  procsched ctl mode rr 2s
  procsched ctl kill 2
  procsched ctl resume all`,
	}
	cmd.PersistentFlags().StringVar(&flags.APIUrl, "api-url", client.DefaultConfig().BaseURL, "controller API URL")
	cmd.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.PersistentFlags().BoolVar(&flags.Insecure, "insecure", false, "skip TLS certificate verification")

	list := &cobra.Command{
		Use:   "list",
		Short: "List workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := flags.client().Workers(cmd.Context(), flags.Verbose)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ws)
		},
	}
	list.Flags().BoolVarP(&flags.Verbose, "verbose", "v", false, "include the OS status")

	create := &cobra.Command{
		Use:   "create N",
		Short: "Create N workers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := positiveArg(args[0])
			if err != nil {
				return err
			}
			res, err := flags.client().Create(cmd.Context(), n)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	kill := &cobra.Command{
		Use:   "kill ID",
		Short: "Kill worker ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := positiveArg(args[0])
			if err != nil {
				return err
			}
			if err := flags.client().Kill(cmd.Context(), id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Process %d killed.\n", id)
			return nil
		},
	}

	resume := &cobra.Command{
		Use:   "resume ID|all",
		Short: "Resume a suspended worker, or all of them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := flags.client()
			if args[0] == "all" {
				ids, err := c.ResumeAll(cmd.Context())
				if err != nil {
					return err
				}
				for _, id := range ids {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Process %d resumed.\n", id)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d suspended processes resumed.\n", len(ids))
				return nil
			}
			id, err := positiveArg(args[0])
			if err != nil {
				return err
			}
			if err := c.Resume(cmd.Context(), id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Process %d resumed.\n", id)
			return nil
		},
	}

	mode := &cobra.Command{
		Use:   "mode [fcfs | rr QUANTUM]",
		Short: "Show or set the scheduling mode",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := flags.client()
			var (
				m   client.ModeInfo
				err error
			)
			switch {
			case len(args) == 0:
				m, err = c.Mode(cmd.Context())
			case args[0] == "fcfs" && len(args) == 1:
				m, err = c.SetFCFS(cmd.Context())
			case args[0] == "rr" && len(args) == 2:
				q, perr := parseQuantum(args[1])
				if perr != nil {
					return perr
				}
				m, err = c.SetRoundRobin(cmd.Context(), q)
			default:
				return fmt.Errorf("usage: mode [fcfs | rr QUANTUM]")
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		},
	}

	interrupt := &cobra.Command{
		Use:   "interrupt",
		Short: "Suspend the running worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.client().Interrupt(cmd.Context())
		},
	}

	cmd.AddCommand(list, create, kill, resume, mode, interrupt)
	return cmd
}

func positiveArg(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%q is not a positive integer", s)
	}
	return n, nil
}

// parseQuantum accepts a duration ("500ms") or whole seconds ("2").
func parseQuantum(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid quantum %q: %w", s, err)
	}
	return d, nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
