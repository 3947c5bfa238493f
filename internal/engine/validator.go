// Package engine implements the workflow engine: it instantiates nodes from
// a WorkflowDefinition, wires per-node mailboxes through the router, drives
// one consumer loop per node, and tracks a run to quiescence or timeout.
package engine

import (
	"fmt"

	"github.com/smilemakc/nodeflow/internal/domain"
)

// ValidationResult separates hard errors (the workflow cannot run) from
// warnings (the workflow can run but something looks like a mistake).
type ValidationResult struct {
	Errors   []error
	Warnings []string
}

func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// Validate checks a WorkflowDefinition for structural problems before the
// engine commits to instantiating any nodes.
func Validate(def domain.WorkflowDefinition) ValidationResult {
	var result ValidationResult
	addErr := func(format string, args ...any) {
		result.Errors = append(result.Errors, fmt.Errorf(format, args...))
	}
	addWarn := func(format string, args ...any) {
		result.Warnings = append(result.Warnings, fmt.Sprintf(format, args...))
	}

	if def.ID == "" {
		addErr("workflow id is required")
	}
	if def.Name == "" {
		addWarn("workflow %q has no name", def.ID)
	}
	if len(def.Nodes) == 0 {
		addErr("workflow %q must declare at least one node", def.ID)
	}
	if def.Timeout < 0 {
		addErr("workflow %q timeout must not be negative", def.ID)
	}

	seen := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		if n.ID == "" {
			addErr("node with empty id in workflow %q", def.ID)
			continue
		}
		if seen[n.ID] {
			addErr("duplicate node id %q in workflow %q", n.ID, def.ID)
			continue
		}
		seen[n.ID] = true

		if !n.RuntimeKind.IsValid() {
			addErr("node %q has unknown runtime kind %q", n.ID, n.RuntimeKind)
		}
		if n.MaxConcurrency < 0 {
			addErr("node %q has negative MaxConcurrency", n.ID)
		}
		validateRequiredFields(n, addErr)
	}

	for _, c := range def.Connections {
		if !seen[c.SourceID] {
			addErr("connection references unknown source node %q", c.SourceID)
		}
		if !seen[c.TargetID] {
			addErr("connection references unknown target node %q", c.TargetID)
		}
		if c.Enabled && c.SourceID == c.TargetID {
			addWarn("connection %q -> %q is self-referencing", c.SourceID, c.TargetID)
		}
		if c.Enabled && c.SourcePort == "IterationCheck" && c.EffectiveTriggerKind() == domain.MessageComplete {
			addErr("connection %q -> %q routes Complete off the IterationCheck port, which is the While node's own re-trigger signal, not a data output", c.SourceID, c.TargetID)
		}
	}

	if def.EntryPointID != "" && !seen[def.EntryPointID] {
		addErr("explicit entry point %q is not a declared node", def.EntryPointID)
	}

	entries := def.EntryPoints()
	if len(entries) == 0 {
		addErr("workflow %q has no entry point: every node is targeted by an enabled connection", def.ID)
	} else if def.EntryPointID == "" && len(entries) > 1 {
		addWarn("workflow %q has %d candidate entry points and no explicit EntryPointID", def.ID, len(entries))
	}

	if err := checkCycles(def); err != nil {
		result.Errors = append(result.Errors, err)
	}

	return result
}

// validateRequiredFields spot-checks the configuration fields the built-in
// node types require, so a missing field is caught at validation time
// instead of surfacing as an Initialize error once the run has already
// started allocating resources.
func validateRequiredFields(n domain.NodeDefinition, addErr func(string, ...any)) {
	require := func(key string) {
		if _, ok := n.ConfigString(key); !ok {
			addErr("node %q (%s) is missing required configuration field %q", n.ID, n.RuntimeKind, key)
		}
	}
	switch n.RuntimeKind {
	case domain.RuntimeIfElse:
		require("Condition")
	case domain.RuntimeSwitch:
		require("Expression")
		if _, ok := n.ConfigMap("Cases"); !ok {
			addErr("node %q (Switch) is missing required configuration field %q", n.ID, "Cases")
		}
	case domain.RuntimeForEach:
		require("CollectionExpression")
	case domain.RuntimeWhile:
		require("Condition")
	case domain.RuntimeScript, domain.RuntimeTask:
		if _, isOpenAI := n.ConfigString("Executor"); !isOpenAI {
			require("Script")
		}
	case domain.RuntimeSubflow:
		if _, ok := n.Configuration["Workflow"]; !ok {
			addErr("node %q (Subflow) is missing required configuration field %q", n.ID, "Workflow")
		}
	case domain.RuntimeContainer:
		if _, ok := n.Configuration["Nodes"]; !ok {
			addErr("node %q (Container) is missing required configuration field %q", n.ID, "Nodes")
		}
	}
}

// checkCycles disallows cycles in the connection graph except a loop body's
// feedback edge back into a While node, which is the one control-flow shape
// intentionally designed to re-enter a node: the loop body completes and
// routes that Complete message straight back to the While that triggered it.
func checkCycles(def domain.WorkflowDefinition) error {
	adj := make(map[string][]domain.Connection)
	whileNodes := make(map[string]bool)
	for _, n := range def.Nodes {
		if n.RuntimeKind == domain.RuntimeWhile {
			whileNodes[n.ID] = true
		}
	}
	for _, c := range def.Connections {
		if !c.Enabled {
			continue
		}
		if whileNodes[c.TargetID] && c.EffectiveTriggerKind() == domain.MessageComplete {
			continue // loop body's feedback edge into its While, not a disallowed cycle
		}
		adj[c.SourceID] = append(adj[c.SourceID], c)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(def.Nodes))
	var cyclePath []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		cyclePath = append(cyclePath, id)
		for _, c := range adj[id] {
			switch color[c.TargetID] {
			case gray:
				cyclePath = append(cyclePath, c.TargetID)
				return true
			case white:
				if visit(c.TargetID) {
					return true
				}
			}
		}
		cyclePath = cyclePath[:len(cyclePath)-1]
		color[id] = black
		return false
	}

	for _, n := range def.Nodes {
		if color[n.ID] == white {
			if visit(n.ID) {
				return fmt.Errorf("workflow %q has a disallowed cycle: %v", def.ID, cyclePath)
			}
		}
	}
	return nil
}
