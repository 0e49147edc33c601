// Package session holds the append-only transcript that drives every
// subsequent prompt and carries the session-scoped allow-all flag.
package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/lca/internal/action"
	"github.com/yourorg/lca/internal/executor"
	"github.com/yourorg/lca/internal/llm"
	"github.com/yourorg/lca/internal/permission"
)

// EntryKind tags one transcript entry.
type EntryKind string

const (
	EntryInstruction EntryKind = "instruction"
	EntryPlan        EntryKind = "plan"
	EntryDecision    EntryKind = "decision"
	EntryResult      EntryKind = "result"
)

// Entry is one record in the transcript. Decision and result entries carry
// the action they refer to so the log can be replayed and verified.
type Entry struct {
	Kind        EntryKind           `json:"kind"`
	Time        time.Time           `json:"time"`
	Instruction string              `json:"instruction,omitempty"`
	Plan        *action.Plan        `json:"plan,omitempty"`
	Action      *action.Action      `json:"action,omitempty"`
	Decision    permission.Decision `json:"decision,omitempty"`
	Result      *executor.Result    `json:"result,omitempty"`
}

// Context is the ordered transcript for one task (execute mode) or one
// REPL session (interactive mode). It is mutated only by appending; the
// orchestrator owns it and no state is shared between sessions.
type Context struct {
	id      string
	created time.Time

	mu       sync.Mutex
	entries  []Entry
	allowAll bool
}

// NewContext creates an empty session context.
func NewContext() *Context {
	return &Context{
		id:      uuid.NewString(),
		created: time.Now(),
	}
}

// ID returns the session identifier.
func (c *Context) ID() string { return c.id }

// Created returns the session start time.
func (c *Context) Created() time.Time { return c.created }

// AllowAll reports whether blanket permission is in effect.
func (c *Context) AllowAll() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allowAll
}

// SetAllowAll enables blanket permission for the remainder of this session.
// The flag is scoped strictly to this context.
func (c *Context) SetAllowAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowAll = true
}

// AppendInstruction records the user's instruction.
func (c *Context) AppendInstruction(instruction string) {
	c.append(Entry{Kind: EntryInstruction, Instruction: instruction})
}

// AppendPlan records a parsed plan.
func (c *Context) AppendPlan(plan *action.Plan) {
	c.append(Entry{Kind: EntryPlan, Plan: plan})
}

// AppendDecision records the gate's decision for one action.
func (c *Context) AppendDecision(act action.Action, decision permission.Decision) {
	c.append(Entry{Kind: EntryDecision, Action: &act, Decision: decision})
}

// AppendResult records the execution result for one action.
func (c *Context) AppendResult(act action.Action, result executor.Result) {
	c.append(Entry{Kind: EntryResult, Action: &act, Result: &result})
}

func (c *Context) append(e Entry) {
	e.Time = time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

// Entries returns a copy of the transcript.
func (c *Context) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of transcript entries.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

const maxObservation = 240

// Messages renders the transcript into role-tagged prompt messages,
// prefixed with the given system prompt.
func (c *Context) Messages(systemPrompt string) []llm.Message {
	msgs := []llm.Message{llm.System(systemPrompt)}

	for _, e := range c.Entries() {
		switch e.Kind {
		case EntryInstruction:
			msgs = append(msgs, llm.User("Task: "+e.Instruction))
		case EntryPlan:
			if data, err := json.Marshal(e.Plan.Actions); err == nil {
				msgs = append(msgs, llm.Assistant(string(data)))
			}
		case EntryDecision:
			switch e.Decision {
			case permission.DecisionDeny:
				msgs = append(msgs, llm.User(fmt.Sprintf("The user denied permission for: %s. Do not retry it without changes.", e.Action.Preview())))
			case permission.DecisionAbort:
				msgs = append(msgs, llm.User("The user aborted the task."))
			}
		case EntryResult:
			msgs = append(msgs, llm.User(fmt.Sprintf("Observation for %s: %s", e.Action.Preview(), summarizeResult(e.Result))))
		}
	}

	return msgs
}

func summarizeResult(r *executor.Result) string {
	status := "ok"
	detail := strings.TrimSpace(r.Output)
	if !r.Success {
		status = "failed"
		if r.Error != "" {
			detail = r.Error + "\n" + detail
		}
	}
	if len(detail) > maxObservation {
		detail = detail[:maxObservation] + "..."
	}
	if detail == "" {
		return status
	}
	return fmt.Sprintf("%s (%s)", status, detail)
}

// Verify replays the transcript and checks the gate invariant: every
// recorded result for a side-effecting action must be preceded by exactly
// one unconsumed Allow or AllowAll decision for that same action.
func (c *Context) Verify() error {
	approved := make(map[string]int)
	allowAll := false

	for i, e := range c.Entries() {
		switch e.Kind {
		case EntryDecision:
			if e.Decision == permission.DecisionAllowAll {
				allowAll = true
			}
			if e.Decision.Approves() && e.Action != nil {
				approved[actionKey(*e.Action)]++
			}
		case EntryResult:
			if e.Action == nil || !e.Action.HasSideEffect() {
				continue
			}
			// Refusals record that nothing ran, so they need no approval.
			if e.Result != nil && e.Result.Refused {
				continue
			}
			key := actionKey(*e.Action)
			if approved[key] > 0 {
				approved[key]--
				continue
			}
			if allowAll {
				continue
			}
			return fmt.Errorf("entry %d: %s executed without a prior allow decision", i, e.Action.Preview())
		}
	}
	return nil
}

func actionKey(a action.Action) string {
	data, _ := json.Marshal(a)
	return string(data)
}
