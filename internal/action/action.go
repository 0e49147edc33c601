package action

import (
	"fmt"
	"strings"
)

// Type represents the kind of operation a plan step can perform.
type Type string

const (
	TypeShellCommand Type = "shell_command"
	TypeWriteFile    Type = "write_file"
	TypeReadFile     Type = "read_file"
	TypeCode         Type = "code"
	TypeNote         Type = "note"
)

// Role identifies which specialized agent produced (or should produce) a plan.
type Role string

const (
	RoleShell    Role = "shell"
	RoleFile     Role = "file"
	RoleCode     Role = "code"
	RoleAnalysis Role = "analysis"
)

// Roles lists every known agent role.
func Roles() []Role {
	return []Role{RoleShell, RoleFile, RoleCode, RoleAnalysis}
}

// Action is a single typed instruction extracted from a model response.
// Actions are immutable once created; approval and execution outcomes are
// recorded separately in the session transcript, never written back here.
type Action struct {
	Type    Type   `json:"type"`
	Command string `json:"command,omitempty"`
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`
}

// HasSideEffect reports whether executing the action mutates the host.
// Only side-effecting actions pass through the permission gate.
func (a Action) HasSideEffect() bool {
	return a.Type == TypeShellCommand || a.Type == TypeWriteFile
}

// Validate checks that the action carries the fields its variant requires.
func (a Action) Validate() error {
	switch a.Type {
	case TypeShellCommand:
		if strings.TrimSpace(a.Command) == "" {
			return fmt.Errorf("shell_command requires a command")
		}
	case TypeWriteFile:
		if strings.TrimSpace(a.Path) == "" {
			return fmt.Errorf("write_file requires a path")
		}
	case TypeReadFile:
		if strings.TrimSpace(a.Path) == "" {
			return fmt.Errorf("read_file requires a path")
		}
	case TypeCode, TypeNote:
		if a.Content == "" {
			return fmt.Errorf("%s requires content", a.Type)
		}
	default:
		return fmt.Errorf("unknown action type: %q", a.Type)
	}
	return nil
}

// Preview returns a short human-readable description used by the
// permission prompt and by log lines.
func (a Action) Preview() string {
	switch a.Type {
	case TypeShellCommand:
		return fmt.Sprintf("run: %s", a.Command)
	case TypeWriteFile:
		return fmt.Sprintf("write %s (%d bytes)", a.Path, len(a.Content))
	case TypeReadFile:
		return fmt.Sprintf("read %s", a.Path)
	case TypeCode:
		return fmt.Sprintf("code snippet (%d bytes)", len(a.Content))
	case TypeNote:
		return fmt.Sprintf("note: %s", truncate(a.Content, 80))
	default:
		return string(a.Type)
	}
}

// Plan is the ordered action sequence produced by one model response.
// A plan is transient: it lives for a single orchestration step.
type Plan struct {
	Role    Role     `json:"role"`
	Actions []Action `json:"actions"`
}

// HasCompletionSignal reports whether the plan carries a note that reads
// like an explicit completion marker.
func (p *Plan) HasCompletionSignal() bool {
	for _, a := range p.Actions {
		if a.Type != TypeNote {
			continue
		}
		content := strings.ToLower(strings.TrimSpace(a.Content))
		if strings.HasPrefix(content, "done") ||
			strings.HasPrefix(content, "task complete") ||
			strings.HasPrefix(content, "task is complete") ||
			strings.HasPrefix(content, "completed") {
			return true
		}
	}
	return false
}

// SideEffectCount returns the number of actions that require authorization.
func (p *Plan) SideEffectCount() int {
	n := 0
	for _, a := range p.Actions {
		if a.HasSideEffect() {
			n++
		}
	}
	return n
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
