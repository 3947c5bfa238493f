package noderuntime

import (
	"context"
	"strings"

	"github.com/smilemakc/nodeflow/internal/domain"
	domainerrors "github.com/smilemakc/nodeflow/internal/domain/errors"
)

// ContainerNode runs an inline sub-graph that shares the parent run's
// globals and run id — unlike Subflow, there is no isolation boundary.
// The first child failure aborts the whole container (fail-fast), unlike a
// top-level run where sibling branches keep going after one node fails.
type ContainerNode struct {
	id          string
	nodes       []domain.NodeDefinition
	connections []domain.Connection
}

func (n *ContainerNode) Initialize(def domain.NodeDefinition) error {
	n.id = def.ID

	rawNodes, ok := def.Configuration["Nodes"]
	if !ok {
		return domainerrors.Configuration(def.ID, "missing required configuration field: Nodes")
	}
	nodes, ok := rawNodes.([]domain.NodeDefinition)
	if !ok || len(nodes) == 0 {
		return domainerrors.Configuration(def.ID, "Nodes configuration must be a non-empty list of node definitions")
	}
	n.nodes = nodes

	if rawConns, ok := def.Configuration["Connections"]; ok {
		conns, ok := rawConns.([]domain.Connection)
		if !ok {
			return domainerrors.Configuration(def.ID, "Connections configuration must be a list of connections")
		}
		n.connections = conns
	}

	childIDs := make(map[string]bool, len(n.nodes))
	for _, c := range n.nodes {
		childIDs[c.ID] = true
	}
	for _, c := range n.connections {
		if !childIDs[c.SourceID] {
			return domainerrors.Configuration(def.ID, "container connection references unknown source node "+c.SourceID)
		}
		if !childIDs[c.TargetID] {
			return domainerrors.Configuration(def.ID, "container connection references unknown target node "+c.TargetID)
		}
	}

	if cycle := findCycle(n.nodes, n.connections); cycle != nil {
		return domainerrors.Configuration(def.ID, "container children contain a disallowed cycle: "+strings.Join(cycle, " -> "))
	}
	return nil
}

// findCycle runs a DFS over the child connection graph looking for a cycle.
// Unlike the top-level workflow validator, a Container's inline sub-graph
// has no While-feedback exception: any cycle among its children is an error,
// since an unvalidated one would leave Engine.RunContainer spinning forever.
func findCycle(nodes []domain.NodeDefinition, connections []domain.Connection) []string {
	adj := make(map[string][]domain.Connection)
	for _, c := range connections {
		if !c.Enabled {
			continue
		}
		adj[c.SourceID] = append(adj[c.SourceID], c)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(nodes))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)
		for _, c := range adj[id] {
			switch color[c.TargetID] {
			case gray:
				cycle = append(append([]string{}, path...), c.TargetID)
				return true
			case white:
				if visit(c.TargetID) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, node := range nodes {
		if color[node.ID] == white {
			if visit(node.ID) {
				return cycle
			}
		}
	}
	return nil
}

func (n *ContainerNode) Execute(ctx context.Context, wfCtx *domain.WorkflowContext, execCtx *domain.NodeExecutionContext, deps Deps) (domain.NodeStatus, error) {
	result, err := deps.Runner.RunContainer(ctx, n.nodes, n.connections, wfCtx.Globals, wfCtx.RunID)
	if err != nil {
		return domain.NodeStatusFailed, err
	}

	execCtx.OutputData["ChildResults"] = result.ChildResults
	if !result.Completed {
		execCtx.OutputData["FailedChildID"] = result.FailedChildID
		return domain.NodeStatusFailed, domainerrors.Runtime(n.id, "container child "+result.FailedChildID+" failed: "+result.FailedError, nil)
	}
	return domain.NodeStatusCompleted, nil
}
