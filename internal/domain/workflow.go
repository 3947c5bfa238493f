package domain

import "time"

// WorkflowDefinition is the static graph the engine executes: nodes and
// connections plus run-level defaults. Immutable across a run.
type WorkflowDefinition struct {
	ID              string
	Name            string
	Nodes           []NodeDefinition
	Connections     []Connection
	EntryPointID    string // optional explicit entry; "" = derive from graph
	DefaultVariables map[string]any
	Timeout         time.Duration // 0 = use engine default
}

func (w WorkflowDefinition) NodeByID(id string) (NodeDefinition, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeDefinition{}, false
}

// EntryPoints returns the explicit entry point if set, otherwise every node
// id that is not the target of any enabled connection.
func (w WorkflowDefinition) EntryPoints() []string {
	if w.EntryPointID != "" {
		return []string{w.EntryPointID}
	}
	targeted := make(map[string]bool, len(w.Connections))
	for _, c := range w.Connections {
		if c.Enabled {
			targeted[c.TargetID] = true
		}
	}
	var out []string
	for _, n := range w.Nodes {
		if !targeted[n.ID] {
			out = append(out, n.ID)
		}
	}
	return out
}
