// Package writer renders a built catalog to plain files: one JSON record
// per module, a catalog index, the dependency graph, and a mermaid sketch
// of the graph.
package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/logger"
)

// CatalogWriter writes one catalog per output directory. Module files land
// under modules/, named after the module with unsafe characters folded away.
type CatalogWriter struct {
	outputDir string
}

// NewCatalogWriter creates a writer rooted at the given output directory.
// The directory is created on first write.
func NewCatalogWriter(outputDir string) *CatalogWriter {
	return &CatalogWriter{outputDir: outputDir}
}

type moduleEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	File string `json:"file"`
}

type catalogIndex struct {
	Meta    common.BuildMeta `json:"meta"`
	Modules []moduleEntry    `json:"modules"`
}

type graphNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type graphFile struct {
	Nodes   []graphNode         `json:"nodes"`
	Edges   []common.Edge       `json:"edges"`
	Cycles  [][]string          `json:"cycles,omitempty"`
	Orphans []common.OrphanEdge `json:"orphans,omitempty"`
}

// Write renders the index into the output directory: modules/<name>.json
// per module, index.json with the build metadata and file listing,
// graph.json with nodes and edges, and graph.mmd. Files are written in
// module order, so repeated writes of the same catalog produce identical
// trees.
func (w *CatalogWriter) Write(index *common.SummaryIndex) error {
	modulesDir := filepath.Join(w.outputDir, "modules")
	if err := os.MkdirAll(modulesDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	entries := make([]moduleEntry, 0, len(index.Graph.ModuleIDs))
	seen := make(map[string]int)
	nodes := make([]graphNode, 0, len(index.Graph.ModuleIDs))

	for _, id := range index.Graph.ModuleIDs {
		m, ok := index.Modules[id]
		if !ok {
			continue
		}
		nodes = append(nodes, graphNode{ID: m.ID, Name: m.Name})

		name := safeFileName(m.Name)
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s-%d", name, n)
		}

		file := filepath.Join("modules", name+".json")
		if err := writeJSON(filepath.Join(w.outputDir, file), m); err != nil {
			return err
		}
		entries = append(entries, moduleEntry{ID: m.ID, Name: m.Name, File: file})
	}

	err := writeJSON(filepath.Join(w.outputDir, "index.json"), catalogIndex{
		Meta:    index.Meta,
		Modules: entries,
	})
	if err != nil {
		return err
	}

	err = writeJSON(filepath.Join(w.outputDir, "graph.json"), graphFile{
		Nodes:   nodes,
		Edges:   index.Graph.Edges,
		Cycles:  index.Meta.Cycles,
		Orphans: index.Meta.Orphans,
	})
	if err != nil {
		return err
	}

	mermaid := renderMermaid(index)
	if err := os.WriteFile(filepath.Join(w.outputDir, "graph.mmd"), []byte(mermaid), 0o644); err != nil {
		return fmt.Errorf("failed to write graph.mmd: %w", err)
	}

	logger.Info("[Writer] Catalog written",
		"dir", w.outputDir, "modules", len(entries), "edges", len(index.Graph.Edges))

	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// safeFileName folds a module name into a filesystem-safe slug.
func safeFileName(name string) string {
	folded := strings.ToLower(strings.TrimSpace(name))
	folded = unsafeFileChars.ReplaceAllString(folded, "-")
	folded = strings.Trim(folded, "-.")
	if folded == "" {
		return "module"
	}
	const maxLen = 80
	if len(folded) > maxLen {
		folded = strings.Trim(folded[:maxLen], "-.")
	}
	return folded
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// renderMermaid sketches the dependency graph as a mermaid flowchart. Edge
// style follows the kind: solid arrows for calls, dotted for depends_on,
// thick for extends.
func renderMermaid(index *common.SummaryIndex) string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")

	alias := make(map[string]string, len(index.Graph.ModuleIDs))
	for i, id := range index.Graph.ModuleIDs {
		m, ok := index.Modules[id]
		if !ok {
			continue
		}
		node := fmt.Sprintf("n%d", i)
		alias[id] = node
		fmt.Fprintf(&sb, "    %s[%q]\n", node, m.Name)
	}

	for _, edge := range index.Graph.Edges {
		from, to := alias[edge.From], alias[edge.To]
		if from == "" || to == "" {
			continue
		}
		arrow := "-->"
		switch edge.Kind {
		case common.EdgeKindDependsOn:
			arrow = "-.->"
		case common.EdgeKindExtends:
			arrow = "==>"
		}
		fmt.Fprintf(&sb, "    %s %s|%s| %s\n", from, arrow, edge.Kind, to)
	}

	return sb.String()
}
