package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/lca/internal/action"
	"github.com/yourorg/lca/internal/llm"
)

func TestRouteParsesDecomposition(t *testing.T) {
	client := &scriptedClient{responses: []any{
		"```json\n[" +
			`{"description": "write the parser", "agent_type": "code", "dependencies": []},` +
			`{"description": "run the tests", "agent_type": "shell", "dependencies": [0]}` +
			"]\n```",
	}}
	router := NewLLMRouter(client, nil)

	subtasks, err := router.Route(context.Background(), "add a parser and test it")
	require.NoError(t, err)
	require.Len(t, subtasks, 2)
	assert.Equal(t, "code", subtasks[0].Agent)
	assert.Equal(t, "shell", subtasks[1].Agent)
	assert.Equal(t, []int{0}, subtasks[1].DependsOn)
}

func TestRouteFallsBackOnUnparsableDecomposition(t *testing.T) {
	client := &scriptedClient{responses: []any{"I would split this into several steps."}}
	router := NewLLMRouter(client, nil)

	subtasks, err := router.Route(context.Background(), "implement the widget")
	require.NoError(t, err)
	require.Len(t, subtasks, 1)
	assert.Equal(t, "implement the widget", subtasks[0].Description)
	assert.Equal(t, string(action.RoleCode), subtasks[0].Agent)
}

func TestRouteRejectsUnknownAgentTypes(t *testing.T) {
	client := &scriptedClient{responses: []any{
		"```json\n[{\"description\": \"do it\", \"agent_type\": \"wizard\", \"dependencies\": []}]\n```",
	}}
	router := NewLLMRouter(client, nil)

	subtasks, err := router.Route(context.Background(), "run the linter")
	require.NoError(t, err)
	// Invalid decomposition degrades to keyword inference.
	require.Len(t, subtasks, 1)
	assert.Equal(t, string(action.RoleShell), subtasks[0].Agent)
}

func TestRoutePropagatesProviderErrors(t *testing.T) {
	client := &scriptedClient{responses: []any{
		&llm.ProviderError{Kind: llm.ErrUnreachable, Provider: "test"},
	}}
	router := NewLLMRouter(client, nil)

	_, err := router.Route(context.Background(), "anything")
	pe, ok := llm.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, llm.ErrUnreachable, pe.Kind)
}

func TestInferRolePriority(t *testing.T) {
	cases := []struct {
		instruction string
		want        action.Role
	}{
		{"implement a function to sort", action.RoleCode},
		{"run the tests and report", action.RoleShell},
		{"read the config file", action.RoleFile},
		{"what does this project do", action.RoleAnalysis},
		// Code wins over shell when both match.
		{"run the code generator", action.RoleCode},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, InferRole(tc.instruction), tc.instruction)
	}
}
