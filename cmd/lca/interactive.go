package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/yourorg/lca/internal/session"
)

func newInteractiveCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.logger.Sync() //nolint:errcheck

			return runInteractive(cmd, a)
		},
	}
}

func runInteractive(cmd *cobra.Command, a *app) error {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Interactive mode - type 'exit' to quit")
	fmt.Fprintln(w, "Use arrow keys to navigate history, Ctrl+C or Ctrl+D to exit")

	if err := os.MkdirAll(filepath.Dir(a.cfg.HistoryFile), 0o755); err != nil {
		a.logger.Warnw("cannot create history directory", "error", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "\n> ",
		HistoryFile: a.cfg.HistoryFile,
	})
	if err != nil {
		return fmt.Errorf("init line editor: %w", err)
	}
	defer rl.Close()

	// One long-lived session for the whole REPL: allow-all granted here
	// sticks until exit, and every task sees the prior transcript.
	sess := session.NewContext()
	if a.cfg.AllowAll {
		sess.SetAllowAll()
	}
	defer persistSession(a, sess)

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintln(w, "\nGoodbye!")
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		task := strings.TrimSpace(line)
		if task == "" {
			continue
		}
		if task == "exit" || task == "quit" {
			fmt.Fprintln(w, "Goodbye!")
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		out, err := a.orch.Run(ctx, task, sess)
		stop()
		if err != nil {
			fmt.Fprintln(w, "\nFailed to execute task:", err)
			continue
		}

		report(cmd, out)
	}
}

// persistSession snapshots the transcript into the session database. The
// core loop never touches persistence; it happens only here at the CLI
// boundary.
func persistSession(a *app, sess *session.Context) {
	if sess.Len() == 0 {
		return
	}
	store, err := session.OpenStore(a.cfg.SessionDB)
	if err != nil {
		a.logger.Warnw("cannot open session store", "error", err)
		return
	}
	defer store.Close()

	if err := store.Save(sess); err != nil {
		a.logger.Warnw("cannot save session", "error", err)
		return
	}
	a.logger.Infow("session saved", "id", sess.ID(), "entries", sess.Len())
}
