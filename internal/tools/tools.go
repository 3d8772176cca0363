// Package tools defines the tool abstraction plan steps are executed
// with: a registry of named operations, each carrying a JSON schema for
// its arguments and an estimate of the resources one invocation consumes.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/karimjebali/forager/internal/resources"
)

// Func is the implementation of a tool. It runs with the sandbox
// workspace as its root; args have already been validated against the
// tool's schema.
type Func func(ctx context.Context, workspace string, args map[string]any) (string, error)

// Tool is one registered operation available to plans.
type Tool struct {
	ID                 string
	Description        string
	SchemaJSON         string
	EstimatedResources resources.Usage
	Retryable          bool
	Fn                 Func
}

// ValidationError reports arguments that failed a tool's schema.
type ValidationError struct {
	ToolID string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %s", e.ToolID, strings.Join(e.Errors, "; "))
}

// ValidateArgs checks args against the tool's JSON schema. Tools without
// a schema accept anything.
func (t Tool) ValidateArgs(args map[string]any) error {
	if t.SchemaJSON == "" {
		return nil
	}

	schemaLoader := gojsonschema.NewStringLoader(t.SchemaJSON)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			msgs = append(msgs, re.String())
		}
		return &ValidationError{ToolID: t.ID, Errors: msgs}
	}
	return nil
}

// Registry maps tool ids to tools.
type Registry map[string]Tool

// Register adds a tool, replacing any previous registration under the
// same id.
func (r Registry) Register(t Tool) {
	r[t.ID] = t
}

// Get looks a tool up by id.
func (r Registry) Get(id string) (Tool, bool) {
	t, ok := r[id]
	return t, ok
}

// IDs returns the registered tool ids in sorted order.
func (r Registry) IDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Describe renders a one-tool-per-line summary suitable for inclusion in
// a planning prompt.
func (r Registry) Describe() string {
	var b strings.Builder
	for _, id := range r.IDs() {
		t := r[id]
		fmt.Fprintf(&b, "- %s: %s\n", t.ID, t.Description)
	}
	return b.String()
}
