// Package orchestrator drives the plan → gate → execute → observe cycle
// that turns one user instruction into a bounded sequence of validated,
// approved, executed actions.
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yourorg/lca/internal/action"
	"github.com/yourorg/lca/internal/agents"
	"github.com/yourorg/lca/internal/executor"
	"github.com/yourorg/lca/internal/llm"
	"github.com/yourorg/lca/internal/permission"
	"github.com/yourorg/lca/internal/session"
)

// State names the orchestrator's control states. Planning, Gating,
// Executing and Observing cycle until one of the terminal states is hit.
type State string

const (
	StatePlanning  State = "planning"
	StateGating    State = "gating"
	StateExecuting State = "executing"
	StateObserving State = "observing"
	StateDone      State = "done"
	StateAborted   State = "aborted"
	StateFailed    State = "failed"
)

// Failure reasons reported in Outcome.Reason for StateFailed.
const (
	ReasonBudgetExhausted   = "iteration budget exhausted"
	ReasonInvalidDependency = "invalid subtask dependency"
)

// Outcome is the terminal result of running one instruction.
type Outcome struct {
	State      State
	Reason     string
	Iterations int
	Session    *session.Context
}

// CompletionFunc is the task-completion heuristic evaluated in the
// Observing state: given the just-executed plan and whether any of its
// actions failed, decide if the task is satisfied.
type CompletionFunc func(plan PlanObservation) bool

// PlanObservation is what the completion heuristic sees after one cycle.
type PlanObservation struct {
	CompletionSignal bool // a note in the plan read like "done"
	AnyFailure       bool
	Executed         int
	Denied           int
}

// DefaultCompletion: an explicit completion note ends the task, and so
// does exhausting the plan without execution failures. Failures hand the
// task back to Planning for another cycle.
func DefaultCompletion(obs PlanObservation) bool {
	return obs.CompletionSignal || !obs.AnyFailure
}

// Config wires an Orchestrator.
type Config struct {
	Registry      *agents.Registry
	Router        agents.Router
	Gate          permission.Gate
	Engine        *executor.Engine
	MaxIterations int // Planning→Observing cycles per instruction
	Completion    CompletionFunc
	Logger        *zap.SugaredLogger
}

// Orchestrator owns the control loop for one instruction at a time.
// Sessions are independent: nothing here is shared between concurrently
// running orchestrators but the (stateless) config they were built from.
type Orchestrator struct {
	registry   *agents.Registry
	router     agents.Router
	gate       permission.Gate
	engine     *executor.Engine
	budget     int
	completion CompletionFunc
	logger     *zap.SugaredLogger
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.Completion == nil {
		cfg.Completion = DefaultCompletion
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		registry:   cfg.Registry,
		router:     cfg.Router,
		gate:       cfg.Gate,
		engine:     cfg.Engine,
		budget:     cfg.MaxIterations,
		completion: cfg.Completion,
		logger:     cfg.Logger,
	}
}

// Run executes one instruction to a terminal state. The session transcript
// records everything that happened, including partial progress on failure,
// so it is always returned for inspection.
func (o *Orchestrator) Run(ctx context.Context, instruction string, sess *session.Context) (*Outcome, error) {
	sess.AppendInstruction(instruction)

	subtasks, err := o.resolve(ctx, instruction)
	if err != nil {
		if ctx.Err() != nil {
			return o.outcome(StateAborted, "cancelled", 0, sess), nil
		}
		return nil, fmt.Errorf("route instruction: %w", err)
	}

	remaining := o.budget
	used := func() int { return o.budget - remaining }

	// A failed subtask does not stop the run: independent subtasks still
	// execute, only dependents of the failure are skipped. An abort ends
	// everything.
	completed := make([]bool, len(subtasks))
	failReason := ""
	for i, st := range subtasks {
		depsMet := true
		for _, dep := range st.DependsOn {
			if dep < 0 || dep >= i {
				return o.outcome(StateFailed, ReasonInvalidDependency, used(), sess), nil
			}
			if !completed[dep] {
				depsMet = false
			}
		}
		if !depsMet {
			o.logger.Warnw("skipping subtask, dependency did not complete", "subtask", i, "description", st.Description)
			continue
		}

		agent, ok := o.registry.Get(st.Agent)
		if !ok {
			if failReason == "" {
				failReason = fmt.Sprintf("unknown agent %q", st.Agent)
			}
			continue
		}

		o.logger.Infow("running subtask", "agent", st.Agent, "description", st.Description)

		out := o.runTask(ctx, agent, st.Description, sess, &remaining)
		switch out.State {
		case StateDone:
			completed[i] = true
		case StateAborted:
			out.Iterations = used()
			return out, nil
		default:
			if failReason == "" {
				failReason = out.Reason
			}
		}
	}

	if failReason != "" {
		return o.outcome(StateFailed, failReason, used(), sess), nil
	}
	return o.outcome(StateDone, "", used(), sess), nil
}

// RunAgent executes one instruction with an explicitly chosen agent,
// bypassing routing. Used by the `lca agent <name> <task>` command.
func (o *Orchestrator) RunAgent(ctx context.Context, name, instruction string, sess *session.Context) (*Outcome, error) {
	agent, ok := o.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("agent %q not found (known: %v)", name, o.registry.Names())
	}

	sess.AppendInstruction(instruction)

	remaining := o.budget
	out := o.runTask(ctx, agent, instruction, sess, &remaining)
	out.Iterations = o.budget - remaining
	return out, nil
}

// resolve selects the agents for an instruction: a single capable agent
// handles it alone, anything else goes through the routing policy.
func (o *Orchestrator) resolve(ctx context.Context, instruction string) ([]agents.Subtask, error) {
	capable := o.registry.FindCapable(instruction)
	if len(capable) == 1 {
		return []agents.Subtask{{Description: instruction, Agent: capable[0].Name()}}, nil
	}
	subtasks, err := o.router.Route(ctx, instruction)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		if _, ok := llm.AsProviderError(err); ok {
			// Routing is best-effort: fall back to keyword inference and
			// let the planning loop deal with the provider.
			o.logger.Warnw("router provider error, falling back to keyword routing", "error", err)
			return []agents.Subtask{{Description: instruction, Agent: string(agents.InferRole(instruction))}}, nil
		}
		return nil, err
	}
	return subtasks, nil
}

// runTask drives Planning→Gating→Executing→Observing cycles for one
// subtask against the shared iteration budget.
func (o *Orchestrator) runTask(ctx context.Context, agent agents.Agent, description string, sess *session.Context, remaining *int) *Outcome {
	for *remaining > 0 {
		if ctx.Err() != nil {
			return o.outcome(StateAborted, "cancelled", 0, sess)
		}
		*remaining--

		// Planning.
		o.logger.Debugw("state", "state", StatePlanning, "agent", agent.Name())
		plan, err := agent.Plan(ctx, description, sess)
		if err != nil {
			if ctx.Err() != nil {
				return o.outcome(StateAborted, "cancelled", 0, sess)
			}
			if pe, ok := llm.AsProviderError(err); ok {
				// Retryable: the next cycle re-plans, bounded by the budget.
				o.logger.Warnw("provider error, retrying", "kind", pe.Kind, "error", pe)
				continue
			}
			// AgentError after its own bounded retry is terminal.
			return o.outcome(StateFailed, err.Error(), 0, sess)
		}
		sess.AppendPlan(plan)

		// Gating and Executing, one action at a time in plan order: later
		// actions may depend on earlier side effects, and an abort must
		// leave everything after it unattempted.
		obs := PlanObservation{CompletionSignal: plan.HasCompletionSignal()}
		aborted := false
		for _, act := range plan.Actions {
			if ctx.Err() != nil {
				return o.outcome(StateAborted, "cancelled", 0, sess)
			}

			// Blocklisted commands are refused before the gate is consulted:
			// a human approving one by reflex must not be possible.
			if act.Type == action.TypeShellCommand && o.engine.IsDangerous(act.Command) {
				result := o.engine.Execute(ctx, act, false)
				sess.AppendResult(act, result)
				obs.Executed++
				obs.AnyFailure = true
				continue
			}

			o.logger.Debugw("state", "state", StateGating, "action", act.Preview())
			decision, gateErr := o.gate.Authorize(act, sess.AllowAll())
			if gateErr != nil {
				o.logger.Warnw("gate error", "error", gateErr)
			}
			sess.AppendDecision(act, decision)

			switch decision {
			case permission.DecisionAbort:
				aborted = true
			case permission.DecisionDeny:
				obs.Denied++
				continue
			case permission.DecisionAllowAll:
				sess.SetAllowAll()
			}
			if aborted {
				break
			}

			o.logger.Debugw("state", "state", StateExecuting, "action", act.Preview())
			result := o.engine.Execute(ctx, act, decision.Approves())
			sess.AppendResult(act, result)
			obs.Executed++
			if !result.Success {
				obs.AnyFailure = true
			}
		}
		if aborted {
			return o.outcome(StateAborted, "user abort", 0, sess)
		}

		// Observing.
		o.logger.Debugw("state", "state", StateObserving, "executed", obs.Executed, "denied", obs.Denied, "failed", obs.AnyFailure)
		if o.completion(obs) {
			return o.outcome(StateDone, "", 0, sess)
		}
	}

	return o.outcome(StateFailed, ReasonBudgetExhausted, 0, sess)
}

func (o *Orchestrator) outcome(state State, reason string, iterations int, sess *session.Context) *Outcome {
	return &Outcome{State: state, Reason: reason, Iterations: iterations, Session: sess}
}
