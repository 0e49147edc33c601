// Package executor carries out approved actions against the local machine.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/lca/internal/action"
)

// Result captures the observable outcome of running one action. A missing
// result in the transcript means the action was never attempted, which is
// distinct from a recorded failure.
type Result struct {
	Success  bool          `json:"success"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	ExitCode *int          `json:"exit_code,omitempty"` // only for command failures
	Refused  bool          `json:"refused,omitempty"`   // engine refused; nothing ran
	Duration time.Duration `json:"duration,omitempty"`
}

// Engine executes actions within a working directory. Failures become
// recorded results, never panics or bare errors: the planning loop decides
// what to do with them.
type Engine struct {
	workDir   string
	timeout   time.Duration
	blocklist []string
	logger    *zap.SugaredLogger
}

// Config configures an Engine.
type Config struct {
	WorkDir string
	Timeout time.Duration // per shell command
	Logger  *zap.SugaredLogger
}

// dangerousPatterns are refused outright, before the permission gate is
// even consulted. A human approving by reflex is not a defense here.
var dangerousPatterns = []string{
	"rm -rf /",
	"rm -rf /*",
	":(){ :|:& };:",
	"mkfs",
	"dd if=/dev/zero",
	"> /dev/sda",
}

// NewEngine creates an executor rooted at cfg.WorkDir.
func NewEngine(cfg Config) *Engine {
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Engine{
		workDir:   cfg.WorkDir,
		timeout:   cfg.Timeout,
		blocklist: dangerousPatterns,
		logger:    cfg.Logger,
	}
}

// Execute runs a single action and returns its result. approved reports
// whether the permission gate allowed the action; side-effecting actions
// without approval are refused here as a second line of defense behind the
// orchestrator's gating. Approval is irrelevant for actions without side
// effects.
func (e *Engine) Execute(ctx context.Context, act action.Action, approved bool) Result {
	start := time.Now()

	switch act.Type {
	case action.TypeShellCommand:
		return e.runCommand(ctx, act.Command, approved, start)

	case action.TypeWriteFile:
		if !approved {
			return e.refuse(fmt.Errorf("refused unapproved write to %s", act.Path), start)
		}
		return e.writeFile(act.Path, act.Content, start)

	case action.TypeReadFile:
		return e.readFile(act.Path, start)

	case action.TypeCode, action.TypeNote:
		// No side effect: the content itself is the result.
		return e.result(true, act.Content, nil, nil, start)

	default:
		return e.result(false, "", fmt.Errorf("unsupported action type: %s", act.Type), nil, start)
	}
}

// IsDangerous reports whether a command matches the refusal blocklist.
func (e *Engine) IsDangerous(command string) bool {
	for _, pattern := range e.blocklist {
		if strings.Contains(command, pattern) {
			return true
		}
	}
	return false
}

func (e *Engine) runCommand(ctx context.Context, command string, approved bool, start time.Time) Result {
	if e.IsDangerous(command) {
		e.logger.Warnw("refused dangerous command", "command", command)
		return e.refuse(fmt.Errorf("refused to execute dangerous command: %s", command), start)
	}
	if !approved {
		return e.refuse(fmt.Errorf("refused unapproved command: %s", command), start)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.logger.Debugw("executing shell command", "command", command, "workdir", e.workDir)

	cmd := exec.CommandContext(runCtx, "bash", "-c", command)
	cmd.Dir = e.workDir
	output, err := cmd.CombinedOutput()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit is an observation, not a fault.
			code := exitErr.ExitCode()
			return e.result(false, string(output), fmt.Errorf("command exited with status %d", code), &code, start)
		}
		return e.result(false, string(output), err, nil, start)
	}

	return e.result(true, string(output), nil, nil, start)
}

// writeFile creates parent directories as needed and writes atomically via
// a temp file and rename, so an interruption never leaves a partial file.
func (e *Engine) writeFile(path, content string, start time.Time) Result {
	full := e.abs(path)

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return e.result(false, "", fmt.Errorf("create parent directory: %w", err), nil, start)
	}

	tmp, err := os.CreateTemp(dir, ".lca-write-*")
	if err != nil {
		return e.result(false, "", fmt.Errorf("create temp file: %w", err), nil, start)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return e.result(false, "", fmt.Errorf("write temp file: %w", err), nil, start)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return e.result(false, "", fmt.Errorf("close temp file: %w", err), nil, start)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return e.result(false, "", fmt.Errorf("chmod temp file: %w", err), nil, start)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return e.result(false, "", fmt.Errorf("rename into place: %w", err), nil, start)
	}

	e.logger.Debugw("wrote file", "path", full, "bytes", len(content))
	return e.result(true, fmt.Sprintf("wrote %s (%d bytes)", path, len(content)), nil, nil, start)
}

func (e *Engine) readFile(path string, start time.Time) Result {
	full := e.abs(path)
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return e.result(false, "", fmt.Errorf("not found: %s", path), nil, start)
		}
		return e.result(false, "", fmt.Errorf("read %s: %w", path, err), nil, start)
	}
	return e.result(true, string(data), nil, nil, start)
}

func (e *Engine) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.workDir, path)
}

// refuse builds a failure result for an action that never ran.
func (e *Engine) refuse(err error, start time.Time) Result {
	res := e.result(false, "", err, nil, start)
	res.Refused = true
	return res
}

func (e *Engine) result(success bool, output string, err error, exitCode *int, start time.Time) Result {
	res := Result{
		Success:  success,
		Output:   output,
		ExitCode: exitCode,
		Duration: time.Since(start),
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
