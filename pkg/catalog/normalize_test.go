package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizationKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "lowercases",
			input: "UserService",
			want:  "userservice",
		},
		{
			name:  "collapses whitespace",
			input: "  User   Service ",
			want:  "user service",
		},
		{
			name:  "folds separators to spaces",
			input: "user-service_module",
			want:  "user service module",
		},
		{
			name:  "folds plural last word",
			input: "Databases",
			want:  "database",
		},
		{
			name:  "folds ies plural",
			input: "MessageQueries",
			want:  "messagequery",
		},
		{
			name:  "folds es plural",
			input: "Mailboxes",
			want:  "mailbox",
		},
		{
			name:  "keeps ss ending",
			input: "AccessClass",
			want:  "accessclass",
		},
		{
			name:  "keeps us ending",
			input: "EventBus",
			want:  "eventbus",
		},
		{
			name:  "keeps short words",
			input: "K8s",
			want:  "k8s",
		},
		{
			name:  "spacing variants stay distinct from compact form",
			input: "User Service",
			want:  "user service",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var table *NormalizationTable
			if got := table.Key(tt.input); got != tt.want {
				t.Errorf("Key(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizationKeyPluralEquivalence(t *testing.T) {
	var table *NormalizationTable

	pairs := [][2]string{
		{"Database", "Databases"},
		{"worker queue", "worker queues"},
		{"Registry", "Registries"},
	}
	for _, pair := range pairs {
		if table.Key(pair[0]) != table.Key(pair[1]) {
			t.Errorf("expected %q and %q to share a key, got %q and %q",
				pair[0], pair[1], table.Key(pair[0]), table.Key(pair[1]))
		}
	}
}

func TestNormalizationTableSynonyms(t *testing.T) {
	table := NewNormalizationTable(map[string]string{
		"User Service Module": "UserService",
		"auth":                "AuthModule",
	})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "synonym folds onto canonical key",
			input: "user service module",
			want:  "userservice",
		},
		{
			name:  "synonym matching is base-folded",
			input: "User-Service-Modules",
			want:  "userservice",
		},
		{
			name:  "short synonym",
			input: "Auth",
			want:  "authmodule",
		},
		{
			name:  "unlisted names keep the base key",
			input: "PaymentService",
			want:  "paymentservice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.Key(tt.input); got != tt.want {
				t.Errorf("Key(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNormalizationTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	content := "synonyms:\n  \"user service module\": \"UserService\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	table, err := LoadNormalizationTable(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := table.Key("User Service Module"); got != "userservice" {
		t.Errorf("Key() = %q, want %q", got, "userservice")
	}
}

func TestLoadNormalizationTableMissingFile(t *testing.T) {
	if _, err := LoadNormalizationTable(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
