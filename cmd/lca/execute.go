package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yourorg/lca/internal/orchestrator"
	"github.com/yourorg/lca/internal/session"
)

func newExecuteCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "execute <task>",
		Short: "Execute a single task and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.logger.Sync() //nolint:errcheck

			task := strings.Join(args, " ")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess := session.NewContext()
			if a.cfg.AllowAll {
				sess.SetAllowAll()
			}

			out, err := a.orch.Run(ctx, task, sess)
			if err != nil {
				return err
			}

			report(cmd, out)
			if out.State != orchestrator.StateDone {
				return fmt.Errorf("task ended in state %s", out.State)
			}
			return nil
		},
	}
}

func newAgentCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "agent <name> <task>",
		Short: "Execute a task with a specific agent (shell, file, code, analysis)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.logger.Sync() //nolint:errcheck

			name := args[0]
			task := strings.Join(args[1:], " ")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess := session.NewContext()
			if a.cfg.AllowAll {
				sess.SetAllowAll()
			}

			out, err := a.orch.RunAgent(ctx, name, task, sess)
			if err != nil {
				return err
			}

			report(cmd, out)
			if out.State != orchestrator.StateDone {
				return fmt.Errorf("task ended in state %s", out.State)
			}
			return nil
		},
	}
}

// report prints the terminal state and the observable results of the run:
// notes and outputs from the transcript, in order.
func report(cmd *cobra.Command, out *orchestrator.Outcome) {
	w := cmd.OutOrStdout()

	switch out.State {
	case orchestrator.StateDone:
		fmt.Fprintln(w, "\nSUCCESS")
	case orchestrator.StateAborted:
		fmt.Fprintln(w, "\nABORTED")
	default:
		fmt.Fprintf(w, "\nFAILED: %s\n", out.Reason)
	}

	for _, e := range out.Session.Entries() {
		if e.Kind != session.EntryResult || e.Result == nil {
			continue
		}
		output := strings.TrimSpace(e.Result.Output)
		if output == "" && e.Result.Error == "" {
			continue
		}
		fmt.Fprintf(w, "\n[%s]\n", e.Action.Preview())
		if output != "" {
			fmt.Fprintln(w, output)
		}
		if e.Result.Error != "" {
			fmt.Fprintln(w, "error:", e.Result.Error)
		}
	}
}
