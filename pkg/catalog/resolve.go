package catalog

import (
	"sort"

	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/logger"
)

// Resolve turns raw dependency mentions into the deduplicated dependency
// graph. Endpoint names are resolved through the normalization table and the
// merged alias set; mentions with an unresolvable endpoint are recorded as
// orphan edges, not errors. At most one edge exists per (from, to, kind)
// triple, its evidence the ordered union of every sighting. Cycles are
// detected by depth-first search and reported, not rejected.
func (c *CatalogClient) Resolve(
	modules []*common.Module,
	mentions []common.Mention,
	chunks []common.Chunk,
) (common.Graph, []common.OrphanEdge, [][]string) {
	pos := corpusPositions(chunks)

	idByKey := make(map[string]string)
	register := func(name string, id string) {
		key := c.table.Key(name)
		if key == "" {
			return
		}
		if _, ok := idByKey[key]; !ok {
			idByKey[key] = id
		}
	}
	for _, m := range modules {
		register(m.Name, m.ID)
		for _, alias := range m.Aliases {
			register(alias, m.ID)
		}
	}

	sorted := make([]common.Mention, len(mentions))
	copy(sorted, mentions)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := positionOf(pos, sorted[i].ChunkID), positionOf(pos, sorted[j].ChunkID)
		if pi != pj {
			return pi < pj
		}
		if sorted[i].SourceName != sorted[j].SourceName {
			return sorted[i].SourceName < sorted[j].SourceName
		}
		if sorted[i].TargetName != sorted[j].TargetName {
			return sorted[i].TargetName < sorted[j].TargetName
		}
		return sorted[i].Kind < sorted[j].Kind
	})

	type edgeKey struct {
		from string
		to   string
		kind common.EdgeKind
	}
	edgeByKey := make(map[edgeKey]*common.Edge)
	var edgeOrder []edgeKey
	var orphans []common.OrphanEdge
	seenMentions := make(map[common.Mention]struct{}, len(sorted))

	for _, mention := range sorted {
		if _, ok := seenMentions[mention]; ok {
			continue
		}
		seenMentions[mention] = struct{}{}

		fromID, fromOK := idByKey[c.table.Key(mention.SourceName)]
		toID, toOK := idByKey[c.table.Key(mention.TargetName)]
		if !fromOK || !toOK {
			orphans = append(orphans, common.OrphanEdge{
				SourceName: mention.SourceName,
				TargetName: mention.TargetName,
				Kind:       mention.Kind,
				ChunkID:    mention.ChunkID,
			})
			continue
		}

		key := edgeKey{from: fromID, to: toID, kind: mention.Kind}
		edge, ok := edgeByKey[key]
		if !ok {
			edge = &common.Edge{From: fromID, To: toID, Kind: mention.Kind}
			edgeByKey[key] = edge
			edgeOrder = append(edgeOrder, key)
		}
		if !containsString(edge.Evidence, mention.ChunkID) {
			edge.Evidence = append(edge.Evidence, mention.ChunkID)
		}
	}

	edges := make([]common.Edge, 0, len(edgeOrder))
	for _, key := range edgeOrder {
		edge := edgeByKey[key]
		sort.SliceStable(edge.Evidence, func(i, j int) bool {
			return positionOf(pos, edge.Evidence[i]) < positionOf(pos, edge.Evidence[j])
		})
		edges = append(edges, *edge)
	}

	moduleIDs := make([]string, 0, len(modules))
	for _, m := range modules {
		moduleIDs = append(moduleIDs, m.ID)
	}

	graph := common.Graph{ModuleIDs: moduleIDs, Edges: edges}
	cycles := detectCycles(modules, edges)

	if len(orphans) > 0 {
		logger.Info("[Catalog] Unresolvable dependency mentions recorded", "orphans", len(orphans))
	}
	if len(cycles) > 0 {
		logger.Info("[Catalog] Dependency cycles detected", "cycles", len(cycles))
	}

	return graph, orphans, cycles
}

// detectCycles runs a depth-first search over the edges and reports every
// unique cycle as module names, rotated so the lexicographically smallest
// name leads.
func detectCycles(modules []*common.Module, edges []common.Edge) [][]string {
	nameByID := make(map[string]string, len(modules))
	for _, m := range modules {
		nameByID[m.ID] = m.Name
	}

	adjacency := make(map[string][]string)
	for _, edge := range edges {
		adjacency[edge.From] = append(adjacency[edge.From], edge.To)
	}

	const (
		white = iota
		gray
		black
	)
	state := make(map[string]int, len(modules))
	onStack := make(map[string]int)
	var stack []string
	var cycles [][]string
	seen := make(map[string]struct{})

	record := func(ids []string) {
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = nameByID[id]
		}
		rotateToSmallest(names)
		signature := ""
		for _, name := range names {
			signature += name + "\x00"
		}
		if _, ok := seen[signature]; ok {
			return
		}
		seen[signature] = struct{}{}
		cycles = append(cycles, names)
	}

	var visit func(id string)
	visit = func(id string) {
		state[id] = gray
		onStack[id] = len(stack)
		stack = append(stack, id)

		for _, next := range adjacency[id] {
			switch state[next] {
			case gray:
				start := onStack[next]
				cycle := make([]string, len(stack)-start)
				copy(cycle, stack[start:])
				record(cycle)
			case white:
				visit(next)
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, id)
		state[id] = black
	}

	for _, m := range modules {
		if state[m.ID] == white {
			visit(m.ID)
		}
	}

	return cycles
}

// rotateToSmallest rotates the cycle in place so it starts at the
// lexicographically smallest name.
func rotateToSmallest(names []string) {
	if len(names) < 2 {
		return
	}
	smallest := 0
	for i := 1; i < len(names); i++ {
		if names[i] < names[smallest] {
			smallest = i
		}
	}
	if smallest == 0 {
		return
	}
	rotated := make([]string, 0, len(names))
	rotated = append(rotated, names[smallest:]...)
	rotated = append(rotated, names[:smallest]...)
	copy(names, rotated)
}
