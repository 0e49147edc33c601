package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ParseErrorKind classifies why a model response could not be turned
// into a plan.
type ParseErrorKind string

const (
	// NoActionsFound means no JSON block could be located in the response.
	NoActionsFound ParseErrorKind = "no_actions_found"
	// SchemaViolation means a JSON block was found but its shape does not
	// match the action schema for the expected role.
	SchemaViolation ParseErrorKind = "schema_violation"
)

// ParseError reports a failed parse. Callers can retry with an explicit
// correction instruction; the parser itself never guesses.
type ParseError struct {
	Kind   ParseErrorKind
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error (%s): %s", e.Kind, e.Detail)
}

// AsParseError unwraps err into a *ParseError if it is one.
func AsParseError(err error) (*ParseError, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// allowedTypes maps each role to the action variants it may emit.
var allowedTypes = map[Role]map[Type]bool{
	RoleShell:    {TypeShellCommand: true, TypeNote: true},
	RoleFile:     {TypeWriteFile: true, TypeReadFile: true, TypeNote: true},
	RoleCode:     {TypeCode: true, TypeWriteFile: true, TypeReadFile: true, TypeNote: true},
	RoleAnalysis: {TypeNote: true, TypeReadFile: true},
}

// Parse converts free-form model text into a typed plan for the given role.
//
// The model is asked for a JSON action array but local models routinely wrap
// it in prose or markdown fences, so the parser scans the whole response for
// candidate JSON blocks. Candidates are ranked fenced blocks first (in
// document order), then bare bracket-balanced regions; the first
// syntactically valid candidate wins and the rest are ignored. Callers that
// need a different block must re-prompt for a cleaner response. Parse
// performs no I/O and never mutates its input.
func Parse(raw string, role Role) (*Plan, error) {
	candidates := ExtractBlocks(raw)
	if len(candidates) == 0 {
		return nil, &ParseError{Kind: NoActionsFound, Detail: "response contains no JSON block"}
	}

	for _, candidate := range candidates {
		actions, ok := decodeActions(candidate)
		if !ok {
			continue
		}
		// First syntactically valid block: schema problems are reported,
		// not skipped, so a retry can ask for a corrected block.
		if len(actions) == 0 {
			return nil, &ParseError{Kind: NoActionsFound, Detail: "action block is empty"}
		}
		for i, a := range actions {
			if err := a.Validate(); err != nil {
				return nil, &ParseError{Kind: SchemaViolation, Detail: fmt.Sprintf("action %d: %v", i, err)}
			}
			if allowed := allowedTypes[role]; allowed != nil && !allowed[a.Type] {
				return nil, &ParseError{
					Kind:   SchemaViolation,
					Detail: fmt.Sprintf("action %d: type %q not permitted for %s agent", i, a.Type, role),
				}
			}
		}
		return &Plan{Role: role, Actions: actions}, nil
	}

	return nil, &ParseError{Kind: NoActionsFound, Detail: "no candidate block decodes as an action sequence"}
}

// decodeActions tries the candidate as an array of actions, then as a
// single action object.
func decodeActions(candidate string) ([]Action, bool) {
	var actions []Action
	if err := json.Unmarshal([]byte(candidate), &actions); err == nil {
		return actions, true
	}
	var single Action
	if err := json.Unmarshal([]byte(candidate), &single); err == nil && single.Type != "" {
		return []Action{single}, true
	}
	return nil, false
}

// ExtractBlocks collects potential JSON blocks in document order: fenced
// code blocks first (the format the prompts request), then bare
// bracket-balanced regions for models that skip the fences.
func ExtractBlocks(raw string) []string {
	var candidates []string

	for _, block := range fencedBlocks(raw) {
		candidates = append(candidates, block)
	}

	for i := 0; i < len(raw); i++ {
		if raw[i] != '[' && raw[i] != '{' {
			continue
		}
		if end := matchBracket(raw, i); end > i {
			candidates = append(candidates, raw[i:end+1])
			i = end
		}
	}

	return candidates
}

// fencedBlocks extracts the bodies of ``` fenced blocks, dropping an
// optional language tag on the opening fence.
func fencedBlocks(raw string) []string {
	var blocks []string
	rest := raw
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			break
		}
		rest = rest[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		end := strings.Index(rest, "```")
		if end < 0 {
			break
		}
		body := strings.TrimSpace(rest[:end])
		if body != "" {
			blocks = append(blocks, body)
		}
		rest = rest[end+3:]
	}
	return blocks
}

// matchBracket returns the index of the bracket closing raw[open],
// honoring JSON string literals and escapes, or -1 if unbalanced.
func matchBracket(raw string, open int) int {
	var closer byte
	switch raw[open] {
	case '[':
		closer = ']'
	case '{':
		closer = '}'
	default:
		return -1
	}
	opener := raw[open]

	depth := 0
	inString := false
	for i := open; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
