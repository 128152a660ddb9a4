package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NormalizationTable folds observed module name variants onto shared keys.
// Two names with the same key describe the same module. The base folding is
// fixed (case, separators, whitespace, singular/plural); the synonym map is
// corpus-specific and loaded per run. A nil table applies the base folding
// only.
//
// The table is an explicit value passed into discovery, merging, and
// resolution; its lifetime is one pipeline run.
type NormalizationTable struct {
	synonyms map[string]string
}

// NewNormalizationTable creates a table from a synonym map. Both sides of
// each pair are base-folded, so entries can be written in natural spelling.
func NewNormalizationTable(synonyms map[string]string) *NormalizationTable {
	folded := make(map[string]string, len(synonyms))
	for variant, canonical := range synonyms {
		folded[baseKey(variant)] = baseKey(canonical)
	}
	return &NormalizationTable{synonyms: folded}
}

type normalizationFile struct {
	Synonyms map[string]string `yaml:"synonyms"`
}

// LoadNormalizationTable reads a synonym table from a YAML file:
//
//	synonyms:
//	  "user service module": "UserService"
//	  "auth": "AuthModule"
func LoadNormalizationTable(path string) (*NormalizationTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read normalization table: %w", err)
	}

	var file normalizationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse normalization table: %w", err)
	}

	return NewNormalizationTable(file.Synonyms), nil
}

// Key returns the normalization key for a name: base folding plus one
// synonym lookup.
func (t *NormalizationTable) Key(name string) string {
	key := baseKey(name)
	if t == nil {
		return key
	}
	if canonical, ok := t.synonyms[key]; ok {
		return canonical
	}
	return key
}

// baseKey folds case, separators, surrounding/internal whitespace, and the
// plural of the last word. "Databases" and "database" share a key;
// "UserService" and "User Service" do not (spacing is evidence, synonyms
// handle the rest).
func baseKey(name string) string {
	s := strings.ReplaceAll(name, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ToLower(s)

	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	words[len(words)-1] = singularize(words[len(words)-1])

	return strings.Join(words, " ")
}

func singularize(word string) string {
	if len(word) <= 3 {
		return word
	}

	if strings.HasSuffix(word, "ies") && len(word) > 4 {
		return word[:len(word)-3] + "y"
	}

	for _, suffix := range []string{"ses", "xes", "zes", "ches", "shes"} {
		if strings.HasSuffix(word, suffix) {
			return word[:len(word)-2]
		}
	}

	if strings.HasSuffix(word, "ss") ||
		strings.HasSuffix(word, "us") ||
		strings.HasSuffix(word, "is") {
		return word
	}

	if strings.HasSuffix(word, "s") {
		return word[:len(word)-1]
	}

	return word
}

// normalizeFieldValue folds a field value for duplicate detection during
// merging: case and whitespace only, no singularization.
func normalizeFieldValue(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}
