package agents

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/lca/internal/action"
	"github.com/yourorg/lca/internal/llm"
)

// Subtask is one unit of a decomposed instruction, tagged with the agent
// role that should plan it. Dependencies are indices into the subtask
// slice and must point backwards.
type Subtask struct {
	Description string `json:"description"`
	Agent       string `json:"agent_type"`
	DependsOn   []int  `json:"dependencies"`
}

// Router decides which agents handle an instruction and in what order.
// The selection policy is pluggable behind this interface.
type Router interface {
	Route(ctx context.Context, instruction string) ([]Subtask, error)
}

const decomposeSystemPrompt = `You are a task decomposition expert. Analyze the user's task and break it down into subtasks.

Available agent types:
- code: generate or edit code
- shell: execute shell commands
- file: read, write, search files
- analysis: analyze code or provide insights

Guidelines:
1. Keep subtasks atomic and focused.
2. Identify dependencies between subtasks.
3. Choose the most appropriate agent for each subtask.

Return ONLY a valid JSON array of subtasks in this exact format:
[
  {"description": "what needs to be done", "agent_type": "code|shell|file|analysis", "dependencies": [0, 1]}
]`

// LLMRouter asks the model to decompose the instruction. If the response
// cannot be parsed it falls back to a single subtask for the role inferred
// from keywords, so routing never fails outright.
type LLMRouter struct {
	client llm.Client
	opts   llm.Options
	logger *zap.SugaredLogger
}

// NewLLMRouter creates the default routing policy.
func NewLLMRouter(client llm.Client, logger *zap.SugaredLogger) *LLMRouter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LLMRouter{client: client, opts: llm.DefaultOptions(), logger: logger}
}

// Route implements Router.
func (r *LLMRouter) Route(ctx context.Context, instruction string) ([]Subtask, error) {
	msgs := []llm.Message{
		llm.System(decomposeSystemPrompt),
		llm.User("Task: " + instruction + "\n\nBreak this down into subtasks:"),
	}

	resp, err := r.client.Complete(ctx, msgs, r.opts)
	if err != nil {
		return nil, err
	}

	if subtasks := parseSubtasks(resp.Content); len(subtasks) > 0 {
		return subtasks, nil
	}

	r.logger.Debugw("decomposition unparsable, falling back to single subtask", "instruction", instruction)
	return []Subtask{{Description: instruction, Agent: string(InferRole(instruction))}}, nil
}

func parseSubtasks(raw string) []Subtask {
	for _, block := range action.ExtractBlocks(raw) {
		var subtasks []Subtask
		if err := json.Unmarshal([]byte(block), &subtasks); err != nil {
			continue
		}
		if valid(subtasks) {
			return subtasks
		}
	}
	return nil
}

func valid(subtasks []Subtask) bool {
	if len(subtasks) == 0 {
		return false
	}
	for _, st := range subtasks {
		if strings.TrimSpace(st.Description) == "" {
			return false
		}
		switch action.Role(st.Agent) {
		case action.RoleShell, action.RoleFile, action.RoleCode, action.RoleAnalysis:
		default:
			return false
		}
	}
	return true
}

// InferRole guesses the single best role for an instruction from keyword
// priority: code before shell before file, analysis as the default.
func InferRole(instruction string) action.Role {
	lower := strings.ToLower(instruction)

	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("code", "implement", "refactor", "function"):
		return action.RoleCode
	case contains("run", "execute", "command", "install", "list files"):
		return action.RoleShell
	case contains("read", "file", "search", "write"):
		return action.RoleFile
	default:
		return action.RoleAnalysis
	}
}
