// Package permission enforces human authorization before any
// side-effecting action executes.
package permission

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/yourorg/lca/internal/action"
)

// Decision is the outcome of authorizing one action.
type Decision string

const (
	DecisionAllow    Decision = "allow"
	DecisionDeny     Decision = "deny"
	DecisionAllowAll Decision = "allow_all"
	DecisionAbort    Decision = "abort"
)

// Approves reports whether the decision permits execution.
func (d Decision) Approves() bool {
	return d == DecisionAllow || d == DecisionAllowAll
}

// Gate decides whether one action may execute. The allowAll flag is the
// session-scoped blanket permission; it is passed explicitly so that
// concurrent sessions stay isolated (never promoted to process state).
type Gate interface {
	Authorize(act action.Action, allowAll bool) (Decision, error)
}

var (
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true)
)

// TerminalGate prompts a human on a terminal with a preview of the action
// and blocks until one of y/n/a/q is entered.
type TerminalGate struct {
	mu      sync.Mutex
	in      *bufio.Reader
	out     io.Writer
	prompts int
}

// NewTerminalGate creates a gate reading decisions from in and writing
// previews to out.
func NewTerminalGate(in io.Reader, out io.Writer) *TerminalGate {
	return &TerminalGate{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// Authorize implements Gate. Actions without side effects are allowed
// without prompting, as is everything once allowAll is set.
func (g *TerminalGate) Authorize(act action.Action, allowAll bool) (Decision, error) {
	if !act.HasSideEffect() || allowAll {
		return DecisionAllow, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts++

	g.printPreview(act)

	for {
		fmt.Fprint(g.out, "\n  Your choice [y/n/a/q]: ")

		line, err := g.in.ReadString('\n')
		if err != nil && line == "" {
			// Input closed: treat as a denial rather than executing blind.
			return DecisionDeny, fmt.Errorf("read decision: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			fmt.Fprintln(g.out, "  >> Allowed")
			return DecisionAllow, nil
		case "n", "no":
			fmt.Fprintln(g.out, "  >> Denied")
			return DecisionDeny, nil
		case "a", "all":
			fmt.Fprintln(g.out, "  >> WARNING: blanket permissions enabled for this session")
			return DecisionAllowAll, nil
		case "q", "quit":
			fmt.Fprintln(g.out, "  >> Task cancelled")
			return DecisionAbort, nil
		default:
			fmt.Fprintln(g.out, "  Invalid choice. Please enter y, n, a, or q.")
		}
	}
}

// Prompts returns how many times a human was asked for a decision.
func (g *TerminalGate) Prompts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts
}

func (g *TerminalGate) printPreview(act action.Action) {
	var b strings.Builder

	switch act.Type {
	case action.TypeShellCommand:
		b.WriteString(titleStyle.Render("SHELL COMMAND PERMISSION REQUESTED"))
		b.WriteString("\n\nCommand: ")
		b.WriteString(act.Command)
	case action.TypeWriteFile:
		b.WriteString(titleStyle.Render("FILE WRITE PERMISSION REQUESTED"))
		b.WriteString("\n\nPath: ")
		b.WriteString(act.Path)
		b.WriteString("\n\nContent preview (first 200 chars):\n")
		b.WriteString(contentPreview(act.Content))
	default:
		b.WriteString(titleStyle.Render("PERMISSION REQUESTED"))
		b.WriteString("\n\n")
		b.WriteString(act.Preview())
	}

	fmt.Fprintln(g.out)
	fmt.Fprintln(g.out, boxStyle.Render(b.String()))
	fmt.Fprintln(g.out, "  Options:")
	fmt.Fprintln(g.out, "    [y] Allow this action")
	fmt.Fprintln(g.out, "    [n] Deny this action")
	fmt.Fprintln(g.out, "    [a] Allow ALL future actions (blanket permission)")
	fmt.Fprintln(g.out, "    [q] Quit/Cancel task")
}

// contentPreview caps a file-write preview at 200 characters and 10 lines.
func contentPreview(content string) string {
	if len(content) > 200 {
		content = content[:200] + "..."
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 10 {
		lines = lines[:10]
	}
	return strings.Join(lines, "\n")
}
