package agents

import (
	"go.uber.org/zap"

	"github.com/yourorg/lca/internal/action"
	"github.com/yourorg/lca/internal/llm"
	"github.com/yourorg/lca/internal/workspace"
)

// actionFormat is shared by every role prompt: the JSON protocol the
// parser understands. Variants outside a role's allowance are rejected at
// parse time, so each prompt only advertises what its role may emit.
const actionFormat = `Respond ONLY with a JSON array of actions inside a ` + "```json fence" + `. No commentary outside the fence.
When the task is finished, include a note action whose content starts with "done".`

const shellSystemPrompt = `You are a shell command expert.

Available actions:
- {"type": "shell_command", "command": "<single-line command>"}
- {"type": "note", "content": "<status or completion note>"}

Rules:
1. Each command must be ONE LINE. Use ; or && to chain operations.
2. For file content use printf or echo with \n, never multi-line heredocs.
3. Never use rm -rf / or other destructive commands.

` + actionFormat

const fileSystemPrompt = `You are a file operations expert.

Available actions:
- {"type": "read_file", "path": "<path>"}
- {"type": "write_file", "path": "<path>", "content": "<full file content>"}
- {"type": "note", "content": "<status or completion note>"}

Identify the file paths involved and emit the minimal sequence of actions.

` + actionFormat

const codeSystemPrompt = `You are an expert code generation agent.

Available actions:
- {"type": "code", "content": "<code snippet>"}
- {"type": "write_file", "path": "<path>", "content": "<full file content>"}
- {"type": "read_file", "path": "<path>"}
- {"type": "note", "content": "<explanation or completion note>"}

Generate clean, well-documented code that follows the conventions of the
language. Read existing files before editing them. When writing a file,
emit the complete file content.

` + actionFormat

const analysisSystemPrompt = `You are a code analysis expert.

Available actions:
- {"type": "read_file", "path": "<path>"}
- {"type": "note", "content": "<your analysis>"}

Examine structure and organization, identify patterns, issues, and
improvements, and provide clear, actionable insights in note actions.

` + actionFormat

// NewShellAgent plans shell command sequences.
func NewShellAgent(client llm.Client, logger *zap.SugaredLogger) Agent {
	return newPromptAgent(
		action.RoleShell,
		[]string{"run", "execute", "command", "shell", "bash", "script", "install", "build", "test", "list files"},
		shellSystemPrompt,
		client, logger,
	)
}

// NewFileAgent plans file reads and writes.
func NewFileAgent(client llm.Client, logger *zap.SugaredLogger) Agent {
	return newPromptAgent(
		action.RoleFile,
		[]string{"read", "write", "file", "create", "delete", "copy", "move", "search"},
		fileSystemPrompt,
		client, logger,
	)
}

// NewCodeAgent plans code generation and edits.
func NewCodeAgent(client llm.Client, logger *zap.SugaredLogger) Agent {
	return newPromptAgent(
		action.RoleCode,
		[]string{"code", "implement", "function", "class", "write", "generate", "refactor"},
		codeSystemPrompt,
		client, logger,
	)
}

// NewAnalysisAgent plans analysis work. When a workspace is supplied its
// project summary is appended to every planning prompt.
func NewAnalysisAgent(client llm.Client, ws *workspace.Workspace, logger *zap.SugaredLogger) Agent {
	a := newPromptAgent(
		action.RoleAnalysis,
		[]string{"analyze", "explain", "review", "understand", "investigate", "examine"},
		analysisSystemPrompt,
		client, logger,
	)
	if ws != nil {
		a.contextFn = ws.Summary
	}
	return a
}

// NewDefaultRegistry registers the four standard agents.
func NewDefaultRegistry(client llm.Client, ws *workspace.Workspace, logger *zap.SugaredLogger) *Registry {
	registry := NewRegistry()
	registry.Register(NewCodeAgent(client, logger))
	registry.Register(NewShellAgent(client, logger))
	registry.Register(NewFileAgent(client, logger))
	registry.Register(NewAnalysisAgent(client, ws, logger))
	return registry
}
