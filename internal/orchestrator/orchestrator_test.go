package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/lca/internal/action"
	"github.com/yourorg/lca/internal/agents"
	"github.com/yourorg/lca/internal/executor"
	"github.com/yourorg/lca/internal/llm"
	"github.com/yourorg/lca/internal/permission"
	"github.com/yourorg/lca/internal/session"
)

// fakeAgent returns scripted plans (or errors) in order.
type fakeAgent struct {
	name    string
	role    action.Role
	plans   []any // *action.Plan or error
	planned int
}

func (f *fakeAgent) Name() string          { return f.name }
func (f *fakeAgent) Role() action.Role     { return f.role }
func (f *fakeAgent) CanHandle(string) bool { return true }

func (f *fakeAgent) Plan(ctx context.Context, instruction string, sess *session.Context) (*action.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.planned >= len(f.plans) {
		return donePlan(f.role), nil
	}
	p := f.plans[f.planned]
	f.planned++
	if err, ok := p.(error); ok {
		return nil, err
	}
	return p.(*action.Plan), nil
}

func donePlan(role action.Role) *action.Plan {
	return &action.Plan{Role: role, Actions: []action.Action{{Type: action.TypeNote, Content: "done"}}}
}

// fakeGate pops scripted decisions for side-effecting actions, mirroring
// the terminal gate's auto-allow for everything else.
type fakeGate struct {
	decisions []permission.Decision
	prompts   int
}

func (g *fakeGate) Authorize(act action.Action, allowAll bool) (permission.Decision, error) {
	if !act.HasSideEffect() || allowAll {
		return permission.DecisionAllow, nil
	}
	g.prompts++
	if len(g.decisions) == 0 {
		return permission.DecisionAllow, nil
	}
	d := g.decisions[0]
	g.decisions = g.decisions[1:]
	return d, nil
}

type fakeRouter struct {
	subtasks []agents.Subtask
	err      error
}

func (r *fakeRouter) Route(ctx context.Context, instruction string) ([]agents.Subtask, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.subtasks, nil
}

type harness struct {
	orch *Orchestrator
	gate *fakeGate
	sess *session.Context
}

func newHarness(t *testing.T, agent agents.Agent, gate *fakeGate, opts ...func(*Config)) *harness {
	t.Helper()
	reg := agents.NewRegistry()
	reg.Register(agent)

	cfg := Config{
		Registry:      reg,
		Router:        &fakeRouter{subtasks: []agents.Subtask{{Description: "task", Agent: agent.Name()}}},
		Gate:          gate,
		Engine:        executor.NewEngine(executor.Config{WorkDir: t.TempDir()}),
		MaxIterations: 5,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &harness{orch: New(cfg), gate: gate, sess: session.NewContext()}
}

func shellPlan(commands ...string) *action.Plan {
	p := &action.Plan{Role: action.RoleShell}
	for _, c := range commands {
		p.Actions = append(p.Actions, action.Action{Type: action.TypeShellCommand, Command: c})
	}
	return p
}

func TestRunCompletesOnDoneNote(t *testing.T) {
	agent := &fakeAgent{name: "shell", role: action.RoleShell, plans: []any{donePlan(action.RoleShell)}}
	h := newHarness(t, agent, &fakeGate{})

	out, err := h.orch.Run(context.Background(), "say done", h.sess)
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 1, out.Iterations)
	assert.Zero(t, h.gate.prompts, "a note must not prompt")
	require.NoError(t, h.sess.Verify())
}

func TestEverySideEffectIsGatedExactlyOnce(t *testing.T) {
	plan := shellPlan("echo a", "echo b")
	plan.Actions = append(plan.Actions, action.Action{Type: action.TypeNote, Content: "done"})
	agent := &fakeAgent{name: "shell", role: action.RoleShell, plans: []any{plan}}
	h := newHarness(t, agent, &fakeGate{})

	out, err := h.orch.Run(context.Background(), "echo twice", h.sess)
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 2, h.gate.prompts)
	require.NoError(t, h.sess.Verify())
}

func TestAllowAllStopsPromptingForTheRestOfTheSession(t *testing.T) {
	agent := &fakeAgent{name: "shell", role: action.RoleShell, plans: []any{
		shellPlan("echo a", "echo b", "echo c"),
	}}
	h := newHarness(t, agent, &fakeGate{decisions: []permission.Decision{permission.DecisionAllowAll}})

	out, err := h.orch.Run(context.Background(), "echo thrice", h.sess)
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 1, h.gate.prompts, "only the first action may prompt after allow-all")
	assert.True(t, h.sess.AllowAll())
	require.NoError(t, h.sess.Verify())
}

func TestAbortHaltsBeforeTheAbortedAction(t *testing.T) {
	agent := &fakeAgent{name: "shell", role: action.RoleShell, plans: []any{
		shellPlan("echo one", "echo two", "echo three"),
	}}
	h := newHarness(t, agent, &fakeGate{decisions: []permission.Decision{
		permission.DecisionAllow,
		permission.DecisionAbort,
	}})

	out, err := h.orch.Run(context.Background(), "echo a lot", h.sess)
	require.NoError(t, err)
	assert.Equal(t, StateAborted, out.State)

	executed := 0
	for _, e := range h.sess.Entries() {
		if e.Kind == session.EntryResult {
			executed++
		}
	}
	assert.Equal(t, 1, executed, "only actions before the abort may have run")
	assert.Equal(t, 2, h.gate.prompts)
	require.NoError(t, h.sess.Verify())
}

func TestDeniedActionIsSkippedNotExecuted(t *testing.T) {
	plan := shellPlan("echo yes", "echo never")
	plan.Actions = append(plan.Actions, action.Action{Type: action.TypeNote, Content: "done"})
	agent := &fakeAgent{name: "shell", role: action.RoleShell, plans: []any{plan}}
	h := newHarness(t, agent, &fakeGate{decisions: []permission.Decision{
		permission.DecisionAllow,
		permission.DecisionDeny,
	}})

	out, err := h.orch.Run(context.Background(), "echo selectively", h.sess)
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)

	for _, e := range h.sess.Entries() {
		if e.Kind == session.EntryResult && e.Action.Type == action.TypeShellCommand {
			assert.NotEqual(t, "echo never", e.Action.Command, "denied action must not execute")
		}
	}
	require.NoError(t, h.sess.Verify())
}

func TestProviderErrorsRetryUntilBudgetExhausted(t *testing.T) {
	agent := &fakeAgent{name: "shell", role: action.RoleShell, plans: []any{
		&llm.ProviderError{Kind: llm.ErrUnreachable, Provider: "test"},
		&llm.ProviderError{Kind: llm.ErrTimeout, Provider: "test"},
		&llm.ProviderError{Kind: llm.ErrUnreachable, Provider: "test"},
		&llm.ProviderError{Kind: llm.ErrUnreachable, Provider: "test"},
		&llm.ProviderError{Kind: llm.ErrUnreachable, Provider: "test"},
	}}
	h := newHarness(t, agent, &fakeGate{})

	out, err := h.orch.Run(context.Background(), "anything", h.sess)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, ReasonBudgetExhausted, out.Reason)
	assert.Equal(t, 5, out.Iterations)
	assert.Equal(t, 5, agent.planned)
}

func TestUnparsablePlanFailsImmediately(t *testing.T) {
	agent := &fakeAgent{name: "shell", role: action.RoleShell, plans: []any{
		&agents.Error{Kind: agents.UnparsablePlan, Role: action.RoleShell},
	}}
	h := newHarness(t, agent, &fakeGate{})

	out, err := h.orch.Run(context.Background(), "anything", h.sess)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.Contains(t, out.Reason, "unparsable_plan")
	assert.Equal(t, 1, agent.planned, "agent-level failures are terminal, not retried")
}

func TestFailedCommandTriggersReplanning(t *testing.T) {
	agent := &fakeAgent{name: "shell", role: action.RoleShell, plans: []any{
		shellPlan("exit 1"),
		donePlan(action.RoleShell),
	}}
	h := newHarness(t, agent, &fakeGate{})

	out, err := h.orch.Run(context.Background(), "try then recover", h.sess)
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 2, out.Iterations)
	require.NoError(t, h.sess.Verify())
}

func TestFileWriteReadRoundTripThroughTheLoop(t *testing.T) {
	write := &action.Plan{Role: action.RoleFile, Actions: []action.Action{
		{Type: action.TypeWriteFile, Path: "out.txt", Content: "payload"},
		{Type: action.TypeReadFile, Path: "out.txt"},
		{Type: action.TypeNote, Content: "done"},
	}}
	agent := &fakeAgent{name: "file", role: action.RoleFile, plans: []any{write}}
	h := newHarness(t, agent, &fakeGate{})

	out, err := h.orch.Run(context.Background(), "write then read", h.sess)
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)

	var readBack string
	for _, e := range h.sess.Entries() {
		if e.Kind == session.EntryResult && e.Action.Type == action.TypeReadFile {
			readBack = e.Result.Output
		}
	}
	assert.Equal(t, "payload", readBack)
	require.NoError(t, h.sess.Verify())
}

func TestInvalidDependencyFails(t *testing.T) {
	agent := &fakeAgent{name: "shell", role: action.RoleShell}
	h := newHarness(t, agent, &fakeGate{}, func(cfg *Config) {
		cfg.Router = &fakeRouter{subtasks: []agents.Subtask{
			{Description: "first", Agent: "shell", DependsOn: []int{1}}, // forward reference
			{Description: "second", Agent: "shell"},
		}}
	})
	// Routing only happens when keyword matching is ambiguous; a second
	// agent forces the router path.
	other := &fakeAgent{name: "file", role: action.RoleFile}
	reg := agents.NewRegistry()
	reg.Register(agent)
	reg.Register(other)
	h.orch.registry = reg

	out, err := h.orch.Run(context.Background(), "two steps", h.sess)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, ReasonInvalidDependency, out.Reason)
}

func TestRouterSubtasksRunInOrder(t *testing.T) {
	shell := &fakeAgent{name: "shell", role: action.RoleShell, plans: []any{donePlan(action.RoleShell)}}
	file := &fakeAgent{name: "file", role: action.RoleFile, plans: []any{donePlan(action.RoleFile)}}

	reg := agents.NewRegistry()
	reg.Register(shell)
	reg.Register(file)

	orch := New(Config{
		Registry: reg,
		Router: &fakeRouter{subtasks: []agents.Subtask{
			{Description: "prepare", Agent: "shell"},
			{Description: "record", Agent: "file", DependsOn: []int{0}},
		}},
		Gate:          &fakeGate{},
		Engine:        executor.NewEngine(executor.Config{WorkDir: t.TempDir()}),
		MaxIterations: 5,
	})

	sess := session.NewContext()
	out, err := orch.Run(context.Background(), "prepare and record", sess)
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 1, shell.planned)
	assert.Equal(t, 1, file.planned)
	assert.Equal(t, 2, out.Iterations)
}

func TestBlocklistedCommandRefusedWithoutPrompting(t *testing.T) {
	agent := &fakeAgent{name: "shell", role: action.RoleShell, plans: []any{
		shellPlan("rm -rf /"),
		donePlan(action.RoleShell),
	}}
	h := newHarness(t, agent, &fakeGate{})

	out, err := h.orch.Run(context.Background(), "clean up", h.sess)
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Zero(t, h.gate.prompts, "blocklisted commands must never reach the gate")

	var refusal *executor.Result
	for _, e := range h.sess.Entries() {
		if e.Kind == session.EntryResult && e.Action.Command == "rm -rf /" {
			refusal = e.Result
		}
	}
	require.NotNil(t, refusal, "the refusal must be recorded for the model to observe")
	assert.True(t, refusal.Refused)
	assert.Contains(t, refusal.Error, "dangerous")
	require.NoError(t, h.sess.Verify())
}

func TestIndependentSubtasksContinueAfterAFailure(t *testing.T) {
	failing := &fakeAgent{name: "shell", role: action.RoleShell, plans: []any{
		&agents.Error{Kind: agents.UnparsablePlan, Role: action.RoleShell},
	}}
	independent := &fakeAgent{name: "file", role: action.RoleFile, plans: []any{donePlan(action.RoleFile)}}

	reg := agents.NewRegistry()
	reg.Register(failing)
	reg.Register(independent)

	orch := New(Config{
		Registry: reg,
		Router: &fakeRouter{subtasks: []agents.Subtask{
			{Description: "broken step", Agent: "shell"},
			{Description: "unrelated step", Agent: "file"},
		}},
		Gate:          &fakeGate{},
		Engine:        executor.NewEngine(executor.Config{WorkDir: t.TempDir()}),
		MaxIterations: 5,
	})

	sess := session.NewContext()
	out, err := orch.Run(context.Background(), "two independent steps", sess)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.Contains(t, out.Reason, "unparsable_plan")
	assert.Equal(t, 1, independent.planned, "an independent subtask still runs after an earlier failure")
}

func TestDependentsOfAFailedSubtaskAreSkipped(t *testing.T) {
	failing := &fakeAgent{name: "shell", role: action.RoleShell, plans: []any{
		&agents.Error{Kind: agents.UnparsablePlan, Role: action.RoleShell},
	}}
	dependent := &fakeAgent{name: "file", role: action.RoleFile, plans: []any{donePlan(action.RoleFile)}}

	reg := agents.NewRegistry()
	reg.Register(failing)
	reg.Register(dependent)

	orch := New(Config{
		Registry: reg,
		Router: &fakeRouter{subtasks: []agents.Subtask{
			{Description: "broken step", Agent: "shell"},
			{Description: "needs the broken step", Agent: "file", DependsOn: []int{0}},
		}},
		Gate:          &fakeGate{},
		Engine:        executor.NewEngine(executor.Config{WorkDir: t.TempDir()}),
		MaxIterations: 5,
	})

	sess := session.NewContext()
	out, err := orch.Run(context.Background(), "two chained steps", sess)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.Zero(t, dependent.planned, "a dependent of a failed subtask must not run")
}

func TestCancelledContextAborts(t *testing.T) {
	agent := &fakeAgent{name: "shell", role: action.RoleShell}
	h := newHarness(t, agent, &fakeGate{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := h.orch.Run(ctx, "anything", h.sess)
	require.NoError(t, err)
	assert.Equal(t, StateAborted, out.State)
}

func TestRunAgentBypassesRouting(t *testing.T) {
	agent := &fakeAgent{name: "file", role: action.RoleFile, plans: []any{donePlan(action.RoleFile)}}
	h := newHarness(t, agent, &fakeGate{}, func(cfg *Config) {
		cfg.Router = &fakeRouter{err: assert.AnError} // must never be consulted
	})

	out, err := h.orch.RunAgent(context.Background(), "file", "do the thing", h.sess)
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)

	_, err = h.orch.RunAgent(context.Background(), "ghost", "nope", h.sess)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
