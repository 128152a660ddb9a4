package catalog

import (
	"fmt"

	"github.com/OFFIS-RIT/clarifier/pkg/common"
)

// BuildIndex assembles the summary index from the merged modules, the
// resolved graph, and the run metadata. It verifies the structural
// guarantees the index promises its readers: the graph's node list matches
// the module set exactly, and every edge endpoint is a known module. A
// violation aborts the run rather than publishing a corrupt index.
func BuildIndex(modules []*common.Module, graph common.Graph, meta common.BuildMeta) (*common.SummaryIndex, error) {
	byID := make(map[string]*common.Module, len(modules))
	for _, m := range modules {
		if _, ok := byID[m.ID]; ok {
			return nil, common.Violated("module ids are unique", fmt.Sprintf("duplicate id %q", m.ID))
		}
		byID[m.ID] = m
	}

	if len(graph.ModuleIDs) != len(modules) {
		return nil, common.Violated(
			"graph nodes match the module set",
			fmt.Sprintf("%d graph nodes, %d modules", len(graph.ModuleIDs), len(modules)),
		)
	}
	for _, id := range graph.ModuleIDs {
		if _, ok := byID[id]; !ok {
			return nil, common.Violated("graph nodes match the module set", fmt.Sprintf("unknown node %q", id))
		}
	}

	for _, edge := range graph.Edges {
		if _, ok := byID[edge.From]; !ok {
			return nil, common.Violated("graph edges reference known modules", fmt.Sprintf("unknown source %q", edge.From))
		}
		if _, ok := byID[edge.To]; !ok {
			return nil, common.Violated("graph edges reference known modules", fmt.Sprintf("unknown target %q", edge.To))
		}
	}

	return &common.SummaryIndex{Modules: byID, Graph: graph, Meta: meta}, nil
}
