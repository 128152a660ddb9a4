// Package query provides read-side lookups over a built catalog: module
// resolution by name or alias, dependency neighborhoods, and bounded
// subgraph extraction. It never mutates the index and preserves catalog
// order in everything it returns.
package query

import (
	"github.com/OFFIS-RIT/clarifier/pkg/catalog"
	"github.com/OFFIS-RIT/clarifier/pkg/common"
)

// CatalogQuery answers lookups against one SummaryIndex. Name resolution
// uses the same normalization as the pipeline, so any spelling that merged
// into a module also finds it here.
type CatalogQuery struct {
	index *common.SummaryIndex
	table *catalog.NormalizationTable

	byKey map[string]string
	order map[string]int
}

// NewCatalogQuery builds the lookup maps for the given index. A nil table
// applies the base normalization only.
func NewCatalogQuery(index *common.SummaryIndex, table *catalog.NormalizationTable) *CatalogQuery {
	q := &CatalogQuery{
		index: index,
		table: table,
		byKey: make(map[string]string),
		order: make(map[string]int, len(index.Graph.ModuleIDs)),
	}

	for i, id := range index.Graph.ModuleIDs {
		q.order[id] = i
		m, ok := index.Modules[id]
		if !ok {
			continue
		}
		q.registerName(m.Name, id)
		for _, alias := range m.Aliases {
			q.registerName(alias, id)
		}
	}

	return q
}

func (q *CatalogQuery) registerName(name, id string) {
	key := q.table.Key(name)
	if key == "" {
		return
	}
	if _, ok := q.byKey[key]; !ok {
		q.byKey[key] = id
	}
}

// ModuleByID returns the module with the given id.
func (q *CatalogQuery) ModuleByID(id string) (*common.Module, bool) {
	m, ok := q.index.Modules[id]
	return m, ok
}

// ResolveName finds the module a name or alias folds onto.
func (q *CatalogQuery) ResolveName(name string) (*common.Module, bool) {
	key := q.table.Key(name)
	if key == "" {
		return nil, false
	}
	id, ok := q.byKey[key]
	if !ok {
		return nil, false
	}
	return q.ModuleByID(id)
}

// Dependencies returns the direct edges touching the module: outgoing when
// out is true, incoming otherwise. Edge order follows the catalog.
func (q *CatalogQuery) Dependencies(id string, out bool) []common.Edge {
	var edges []common.Edge
	for _, edge := range q.index.Graph.Edges {
		if out && edge.From == id {
			edges = append(edges, edge)
		}
		if !out && edge.To == id {
			edges = append(edges, edge)
		}
	}
	return edges
}

// Neighborhood extracts the subgraph reachable from the module within depth
// hops, following edges in both directions. Depth 0 returns just the module
// itself. Module and edge order follow the catalog, so equal queries yield
// equal subgraphs.
func (q *CatalogQuery) Neighborhood(id string, depth int) common.Graph {
	if _, ok := q.index.Modules[id]; !ok {
		return common.Graph{}
	}

	included := map[string]struct{}{id: {}}
	frontier := []string{id}

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, edge := range q.index.Graph.Edges {
			for _, cur := range frontier {
				var neighbor string
				switch cur {
				case edge.From:
					neighbor = edge.To
				case edge.To:
					neighbor = edge.From
				default:
					continue
				}
				if _, ok := included[neighbor]; ok {
					continue
				}
				included[neighbor] = struct{}{}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	sub := common.Graph{}
	for _, moduleID := range q.index.Graph.ModuleIDs {
		if _, ok := included[moduleID]; ok {
			sub.ModuleIDs = append(sub.ModuleIDs, moduleID)
		}
	}
	for _, edge := range q.index.Graph.Edges {
		_, fromIn := included[edge.From]
		_, toIn := included[edge.To]
		if fromIn && toIn {
			sub.Edges = append(sub.Edges, edge)
		}
	}

	return sub
}
