// Package agents contains the role-scoped planners. An agent turns an
// instruction into a typed plan for one capability area; it never executes
// anything itself.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/lca/internal/action"
	"github.com/yourorg/lca/internal/llm"
	"github.com/yourorg/lca/internal/session"
)

// Agent plans for one capability area.
type Agent interface {
	Name() string
	Role() action.Role
	CanHandle(task string) bool
	Plan(ctx context.Context, instruction string, sess *session.Context) (*action.Plan, error)
}

// ErrorKind classifies agent failures.
type ErrorKind string

// UnparsablePlan means the model could not produce a parsable action block
// even after the correction re-prompt.
const UnparsablePlan ErrorKind = "unparsable_plan"

// Error is a terminal agent failure after local recovery was exhausted.
type Error struct {
	Kind ErrorKind
	Role action.Role
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s agent: %s: %v", e.Role, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// AsAgentError unwraps err into an *Error if it is one.
func AsAgentError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

const correctionPrompt = `Your previous response could not be parsed. Respond ONLY with a JSON action block in the requested format, with no commentary outside the JSON.`

// PromptAgent is the shared planning machinery: build the role prompt from
// the session transcript, call the provider once, parse, and on a parse
// failure re-prompt exactly once with a correction instruction before
// giving up with UnparsablePlan.
type PromptAgent struct {
	role         action.Role
	keywords     []string
	systemPrompt string
	contextFn    func() string // extra prompt context, may be nil
	client       llm.Client
	opts         llm.Options
	logger       *zap.SugaredLogger
}

func newPromptAgent(role action.Role, keywords []string, systemPrompt string, client llm.Client, logger *zap.SugaredLogger) *PromptAgent {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PromptAgent{
		role:         role,
		keywords:     keywords,
		systemPrompt: systemPrompt,
		client:       client,
		opts:         llm.DefaultOptions(),
		logger:       logger,
	}
}

func (a *PromptAgent) Name() string { return string(a.role) }

func (a *PromptAgent) Role() action.Role { return a.role }

// CanHandle reports whether the instruction mentions any of the agent's
// routing keywords.
func (a *PromptAgent) CanHandle(task string) bool {
	lower := strings.ToLower(task)
	for _, kw := range a.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Plan asks the provider for an action block and parses it. Provider
// errors pass through untouched for the orchestrator's retry policy; parse
// errors get one correction round trip here.
func (a *PromptAgent) Plan(ctx context.Context, instruction string, sess *session.Context) (*action.Plan, error) {
	msgs := sess.Messages(a.systemPrompt)
	msgs = append(msgs, llm.User(a.userPrompt(instruction)))

	resp, err := a.client.Complete(ctx, msgs, a.opts)
	if err != nil {
		return nil, err
	}

	plan, parseErr := action.Parse(resp.Content, a.role)
	if parseErr == nil {
		return plan, nil
	}
	if _, ok := action.AsParseError(parseErr); !ok {
		return nil, parseErr
	}

	a.logger.Debugw("re-prompting after parse failure", "agent", a.role, "error", parseErr)

	msgs = append(msgs, llm.Assistant(resp.Content), llm.User(correctionPrompt))
	resp, err = a.client.Complete(ctx, msgs, a.opts)
	if err != nil {
		return nil, err
	}

	plan, parseErr = action.Parse(resp.Content, a.role)
	if parseErr != nil {
		return nil, &Error{Kind: UnparsablePlan, Role: a.role, Err: parseErr}
	}
	return plan, nil
}

func (a *PromptAgent) userPrompt(instruction string) string {
	var b strings.Builder
	b.WriteString("Instruction: ")
	b.WriteString(instruction)
	if a.contextFn != nil {
		if extra := a.contextFn(); extra != "" {
			b.WriteString("\n\nProject context:\n")
			b.WriteString(extra)
		}
	}
	return b.String()
}

// Registry holds the known agents and answers routing queries.
type Registry struct {
	agents map[string]Agent
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds an agent, keyed by its name.
func (r *Registry) Register(agent Agent) {
	if _, exists := r.agents[agent.Name()]; !exists {
		r.order = append(r.order, agent.Name())
	}
	r.agents[agent.Name()] = agent
}

// Get returns the agent with the given name.
func (r *Registry) Get(name string) (Agent, bool) {
	agent, ok := r.agents[name]
	return agent, ok
}

// FindCapable returns the agents whose keywords match the task, in
// registration order.
func (r *Registry) FindCapable(task string) []Agent {
	var out []Agent
	for _, name := range r.order {
		if agent := r.agents[name]; agent.CanHandle(task) {
			out = append(out, agent)
		}
	}
	return out
}

// Names returns the registered agent names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
