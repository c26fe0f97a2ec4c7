package cmd

import (
	"context"
	"strings"
)

// StubResponse is the canned outcome for commands matching a prefix
type StubResponse struct {
	Output   string
	ExitCode int
	Err      error
}

// StubCmdRunner records every command and answers from Responses.
// The longest matching prefix of the command line wins; commands with
// no match succeed with empty output
type StubCmdRunner struct {
	Calls     [][]string
	Responses map[string]StubResponse
}

func NewStubCmdRunner() *StubCmdRunner {
	return &StubCmdRunner{Responses: make(map[string]StubResponse)}
}

// Respond registers a response for command lines starting with prefix
func (s *StubCmdRunner) Respond(prefix string, response StubResponse) {
	s.Responses[prefix] = response
}

func (s *StubCmdRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	call := append([]string{name}, args...)
	s.Calls = append(s.Calls, call)

	line := strings.Join(call, " ")
	var match string
	var response StubResponse
	found := false

	for prefix, r := range s.Responses {
		if strings.HasPrefix(line, prefix) && len(prefix) >= len(match) {
			match = prefix
			response = r
			found = true
		}
	}

	if !found {
		return &Result{}, nil
	}

	if response.Err != nil {
		return nil, response.Err
	}

	result := &Result{Output: response.Output, ExitCode: response.ExitCode}

	if response.ExitCode != 0 {
		return result, &ExitError{Command: line, ExitCode: response.ExitCode, Output: response.Output}
	}

	return result, nil
}

// CallLines returns the recorded commands joined with spaces
func (s *StubCmdRunner) CallLines() []string {
	lines := make([]string, len(s.Calls))

	for i, call := range s.Calls {
		lines[i] = strings.Join(call, " ")
	}

	return lines
}
