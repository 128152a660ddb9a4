package catalog

import (
	"sort"
	"strings"

	"github.com/OFFIS-RIT/clarifier/pkg/common"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// corpusPositions maps chunk id to its position in corpus order. Unknown
// chunk ids sort last.
func corpusPositions(chunks []common.Chunk) map[string]int {
	pos := make(map[string]int, len(chunks))
	for i, chunk := range chunks {
		pos[chunk.ID] = i
	}
	return pos
}

func positionOf(pos map[string]int, chunkID string) int {
	if p, ok := pos[chunkID]; ok {
		return p
	}
	return len(pos)
}

// Merge folds attribute drafts into canonical modules. It runs
// single-threaded over the full draft set; drafts are first sorted by
// (normalized candidate name, source chunk corpus position) so the outcome
// does not depend on the completion order of concurrent drafting.
//
// Per field: a single value is adopted, values identical after folding are
// adopted once, conflicting values are all retained in first-seen order and
// the field is reported as contested. Aliases collect every observed
// spelling; evidence is ordered by corpus position. Candidates without any
// draft still become modules (name and evidence only).
func (c *CatalogClient) Merge(
	drafts []common.Draft,
	candidates []common.Candidate,
	chunks []common.Chunk,
) ([]*common.Module, []common.ContestedField, error) {
	pos := corpusPositions(chunks)

	type keyedDraft struct {
		draft common.Draft
		key   string
		pos   int
	}
	sorted := make([]keyedDraft, 0, len(drafts))
	for _, draft := range drafts {
		sorted = append(sorted, keyedDraft{
			draft: draft,
			key:   c.table.Key(draft.CandidateName),
			pos:   positionOf(pos, draft.SourceChunkID),
		})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].key != sorted[j].key {
			return sorted[i].key < sorted[j].key
		}
		if sorted[i].pos != sorted[j].pos {
			return sorted[i].pos < sorted[j].pos
		}
		if sorted[i].draft.CandidateName != sorted[j].draft.CandidateName {
			return sorted[i].draft.CandidateName < sorted[j].draft.CandidateName
		}
		return sorted[i].draft.Confidence > sorted[j].draft.Confidence
	})

	var modules []*common.Module
	byKey := make(map[string]*common.Module)

	newModule := func(name string, key string) (*common.Module, error) {
		id, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		m := &common.Module{
			ID:      id,
			Name:    name,
			Fields:  make(map[string][]string),
			Aliases: []string{},
		}
		modules = append(modules, m)
		byKey[key] = m
		return m, nil
	}

	addAlias := func(m *common.Module, name string) {
		if !containsString(m.Aliases, name) {
			m.Aliases = append(m.Aliases, name)
		}
	}
	addEvidence := func(m *common.Module, chunkID string) {
		if !containsString(m.Evidence, chunkID) {
			m.Evidence = append(m.Evidence, chunkID)
		}
	}

	// Module ids are assigned at first appearance: discovery order first,
	// then draft groups that never went through discovery.
	for _, cand := range candidates {
		key := c.table.Key(cand.Name)
		m, ok := byKey[key]
		if !ok {
			var err error
			m, err = newModule(cand.Name, key)
			if err != nil {
				return nil, nil, err
			}
		}
		for _, variant := range cand.Variants {
			addAlias(m, variant)
		}
		for _, chunkID := range cand.Evidence {
			addEvidence(m, chunkID)
		}
	}

	for _, kd := range sorted {
		m, ok := byKey[kd.key]
		if !ok {
			var err error
			m, err = newModule(kd.draft.CandidateName, kd.key)
			if err != nil {
				return nil, nil, err
			}
		}
		addAlias(m, kd.draft.CandidateName)
		addEvidence(m, kd.draft.SourceChunkID)

		fieldNames := make([]string, 0, len(kd.draft.Fields))
		for field := range kd.draft.Fields {
			fieldNames = append(fieldNames, field)
		}
		sort.Strings(fieldNames)

		for _, field := range fieldNames {
			value := strings.TrimSpace(kd.draft.Fields[field])
			if value == "" {
				continue
			}
			duplicate := false
			for _, existing := range m.Fields[field] {
				if normalizeFieldValue(existing) == normalizeFieldValue(value) {
					duplicate = true
					break
				}
			}
			if !duplicate {
				m.Fields[field] = append(m.Fields[field], value)
			}
		}
	}

	for _, m := range modules {
		evidence := m.Evidence
		sort.SliceStable(evidence, func(i, j int) bool {
			return positionOf(pos, evidence[i]) < positionOf(pos, evidence[j])
		})
	}

	var contested []common.ContestedField
	for _, m := range modules {
		var fields []string
		for field, values := range m.Fields {
			if len(values) > 1 {
				fields = append(fields, field)
			}
		}
		sort.Strings(fields)
		for _, field := range fields {
			contested = append(contested, common.ContestedField{ModuleID: m.ID, Field: field})
		}
	}

	return modules, contested, nil
}
