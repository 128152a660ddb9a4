package catalog

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/clarifier/pkg/ai"
	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/loader"
	"github.com/OFFIS-RIT/clarifier/pkg/store"
	"github.com/OFFIS-RIT/clarifier/pkg/store/memory"
)

func catalogFixtureDocs() []loader.Document {
	return sentenceDocs(
		"UserService handles login.",
		"AuthModule calls UserService.",
		"UserService talks to Database.",
	)
}

func catalogFixtureAI() *mockAIClient {
	return &mockAIClient{
		discover: map[string][]string{
			"UserService handles login.":     {"UserService"},
			"AuthModule calls UserService.":  {"AuthModule", "UserService"},
			"UserService talks to Database.": {"UserService", "Database"},
		},
		drafts: map[string]mockDraft{
			"UserService|UserService handles login.": {
				fields:     draftFields{Purpose: "Handles user login.", Kind: "service"},
				confidence: 0.9,
			},
			"UserService|AuthModule calls UserService.": {
				confidence: 0.2,
			},
			"UserService|UserService talks to Database.": {
				fields:       draftFields{Responsibilities: "Talks to the database."},
				dependencies: []draftDependency{{Target: "Database", Kind: "depends_on"}},
				confidence:   0.8,
			},
			"AuthModule|AuthModule calls UserService.": {
				fields:       draftFields{Kind: "module"},
				dependencies: []draftDependency{{Target: "UserService", Kind: "calls"}},
				confidence:   0.85,
			},
			"Database|UserService talks to Database.": {
				fields:     draftFields{Kind: "database"},
				confidence: 0.7,
			},
		},
	}
}

func TestBuildCatalogEndToEnd(t *testing.T) {
	client := newTestClient(t, NewCatalogClientParams{})
	st := memory.NewCatalogMemStorage()
	mock := catalogFixtureAI()

	index, err := client.BuildCatalog(context.Background(), catalogFixtureDocs(), "catalog", mock, st)
	if err != nil {
		t.Fatalf("BuildCatalog() error = %v", err)
	}

	if len(index.Modules) != 3 {
		t.Fatalf("index has %d modules, want 3", len(index.Modules))
	}
	byName := modulesByName(index)
	for _, name := range []string{"UserService", "AuthModule", "Database"} {
		if byName[name] == nil {
			t.Fatalf("module %q missing from index", name)
		}
	}

	user := byName["UserService"]
	wantFields := map[string][]string{
		"purpose":          {"Handles user login."},
		"kind":             {"service"},
		"responsibilities": {"Talks to the database."},
	}
	if !reflect.DeepEqual(user.Fields, wantFields) {
		t.Errorf("UserService fields = %v, want %v", user.Fields, wantFields)
	}
	if len(user.Evidence) != 3 {
		t.Errorf("UserService evidence = %v, want all three chunks", user.Evidence)
	}

	wantEdges := []string{
		"AuthModule->UserService:calls",
		"UserService->Database:depends_on",
	}
	if got := edgeSet(index); !reflect.DeepEqual(got, wantEdges) {
		t.Errorf("edges = %v, want %v", got, wantEdges)
	}

	meta := index.Meta
	if meta.RunID == "" {
		t.Error("meta run id is empty")
	}
	if meta.ChunkCount != 3 {
		t.Errorf("meta chunk count = %d, want 3", meta.ChunkCount)
	}
	if meta.DraftCount != 5 {
		t.Errorf("meta draft count = %d, want 5", meta.DraftCount)
	}
	if meta.FailedDrafts != 0 {
		t.Errorf("meta failed drafts = %d, want 0", meta.FailedDrafts)
	}
	if meta.RetrievalDegraded {
		t.Error("meta reports degraded retrieval, want false")
	}
	if len(meta.Contested) != 0 || len(meta.Orphans) != 0 || len(meta.Cycles) != 0 {
		t.Errorf("meta anomalies = (%v, %v, %v), want none", meta.Contested, meta.Orphans, meta.Cycles)
	}

	saved, err := st.GetIndex(context.Background(), "catalog")
	if err != nil {
		t.Fatalf("GetIndex() error = %v", err)
	}
	if saved.Meta.RunID != meta.RunID {
		t.Errorf("saved index run id = %q, want %q", saved.Meta.RunID, meta.RunID)
	}
}

func TestBuildCatalogOrderInvariance(t *testing.T) {
	docs := catalogFixtureDocs()
	reversed := make([]loader.Document, len(docs))
	for i, doc := range docs {
		reversed[len(docs)-1-i] = doc
	}

	client := newTestClient(t, NewCatalogClientParams{})

	forwardStore := memory.NewCatalogMemStorage()
	forward, err := client.BuildCatalog(context.Background(), docs, "catalog", catalogFixtureAI(), forwardStore)
	if err != nil {
		t.Fatalf("BuildCatalog(forward) error = %v", err)
	}

	backwardStore := memory.NewCatalogMemStorage()
	backward, err := client.BuildCatalog(context.Background(), reversed, "catalog", catalogFixtureAI(), backwardStore)
	if err != nil {
		t.Fatalf("BuildCatalog(reversed) error = %v", err)
	}

	forwardSummary := summarizeIndex(t, forward, forwardStore)
	backwardSummary := summarizeIndex(t, backward, backwardStore)
	if !reflect.DeepEqual(forwardSummary, backwardSummary) {
		t.Errorf("catalog depends on corpus order:\nforward  = %v\nbackward = %v", forwardSummary, backwardSummary)
	}
	if !reflect.DeepEqual(edgeSet(forward), edgeSet(backward)) {
		t.Errorf("edges depend on corpus order: forward = %v, backward = %v", edgeSet(forward), edgeSet(backward))
	}
}

func TestBuildCatalogContainsMalformedDraft(t *testing.T) {
	client := newTestClient(t, NewCatalogClientParams{})
	st := memory.NewCatalogMemStorage()
	mock := catalogFixtureAI()
	mock.failures = map[string]error{
		"UserService|UserService handles login.": ai.Malformed("not json", "garbage", nil),
	}

	index, err := client.BuildCatalog(context.Background(), catalogFixtureDocs(), "catalog", mock, st)
	if err != nil {
		t.Fatalf("BuildCatalog() error = %v", err)
	}

	if index.Meta.FailedDrafts != 1 {
		t.Errorf("meta failed drafts = %d, want 1", index.Meta.FailedDrafts)
	}
	user := modulesByName(index)["UserService"]
	if user == nil {
		t.Fatal("UserService missing from index")
	}
	if _, ok := user.Fields["purpose"]; ok {
		t.Errorf("purpose = %v, want absent after failed draft", user.Fields["purpose"])
	}
	if want := []string{"Talks to the database."}; !reflect.DeepEqual(user.Fields["responsibilities"], want) {
		t.Errorf("responsibilities = %v, want %v", user.Fields["responsibilities"], want)
	}
}

func TestBuildCatalogRetriesTransientDraft(t *testing.T) {
	client := newTestClient(t, NewCatalogClientParams{})
	client.setRetryPolicy(ai.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	st := memory.NewCatalogMemStorage()
	mock := catalogFixtureAI()
	mock.transient = map[string]int{
		"UserService|UserService handles login.": 2,
	}

	index, err := client.BuildCatalog(context.Background(), catalogFixtureDocs(), "catalog", mock, st)
	if err != nil {
		t.Fatalf("BuildCatalog() error = %v", err)
	}

	if index.Meta.FailedDrafts != 0 {
		t.Errorf("meta failed drafts = %d, want 0 after successful retry", index.Meta.FailedDrafts)
	}
	user := modulesByName(index)["UserService"]
	if want := []string{"Handles user login."}; !reflect.DeepEqual(user.Fields["purpose"], want) {
		t.Errorf("purpose = %v, want %v", user.Fields["purpose"], want)
	}
}

func TestBuildCatalogDegradesWithoutEmbeddings(t *testing.T) {
	client := newTestClient(t, NewCatalogClientParams{})
	st := memory.NewCatalogMemStorage()
	mock := catalogFixtureAI()
	mock.embedUnavailable = true

	index, err := client.BuildCatalog(context.Background(), catalogFixtureDocs(), "catalog", mock, st)
	if err != nil {
		t.Fatalf("BuildCatalog() error = %v", err)
	}

	if !index.Meta.RetrievalDegraded {
		t.Error("meta retrieval degraded = false, want true")
	}
	if len(index.Modules) != 3 {
		t.Errorf("index has %d modules, want 3 despite degraded retrieval", len(index.Modules))
	}
	if got := edgeSet(index); len(got) != 2 {
		t.Errorf("edges = %v, want 2", got)
	}
}

func TestBuildCatalogCancellationPublishesNothing(t *testing.T) {
	client := newTestClient(t, NewCatalogClientParams{})
	st := memory.NewCatalogMemStorage()
	mock := catalogFixtureAI()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Three discovery calls come first; the cancel fires on the first
	// drafting call.
	mock.cancelAfter = 4
	mock.cancel = cancel

	_, err := client.BuildCatalog(runCtx, catalogFixtureDocs(), "catalog", mock, st)
	if err == nil {
		t.Fatal("BuildCatalog() error = nil, want cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("BuildCatalog() error = %v, want %v", err, context.Canceled)
	}

	if _, err := st.GetIndex(context.Background(), "catalog"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetIndex() after cancelled run error = %v, want %v", err, store.ErrNotFound)
	}
}

func TestBuildCatalogEmptyCorpus(t *testing.T) {
	client := newTestClient(t, NewCatalogClientParams{})
	st := memory.NewCatalogMemStorage()
	mock := &mockAIClient{}

	index, err := client.BuildCatalog(context.Background(), nil, "catalog", mock, st)
	if err != nil {
		t.Fatalf("BuildCatalog() error = %v", err)
	}

	if len(index.Modules) != 0 {
		t.Errorf("index has %d modules, want 0", len(index.Modules))
	}
	if len(index.Graph.Edges) != 0 {
		t.Errorf("index has %d edges, want 0", len(index.Graph.Edges))
	}
	if index.Meta.ChunkCount != 0 {
		t.Errorf("meta chunk count = %d, want 0", index.Meta.ChunkCount)
	}
	if _, err := st.GetIndex(context.Background(), "catalog"); err != nil {
		t.Errorf("GetIndex() error = %v, empty catalog should still publish", err)
	}
}

func TestBuildCatalogRefinementResolvesOrphan(t *testing.T) {
	client := newTestClient(t, NewCatalogClientParams{
		RefineDepth:      1,
		RefineMinContext: 10,
	})
	st := memory.NewCatalogMemStorage()
	mock := &mockAIClient{
		discover: map[string][]string{
			"Gateway talks to the billing engine.":  {"Gateway"},
			"The billing engine charges customers.": {},
		},
		drafts: map[string]mockDraft{
			"Gateway|Gateway talks to the billing engine.": {
				fields:       draftFields{Kind: "service"},
				dependencies: []draftDependency{{Target: "billing engine", Kind: "depends_on"}},
				confidence:   0.8,
			},
			"billing engine|billing engine": {
				fields:     draftFields{Purpose: "Charges customers.", Kind: "external system"},
				confidence: 0.6,
			},
		},
	}

	docs := sentenceDocs(
		"Gateway talks to the billing engine.",
		"The billing engine charges customers.",
	)
	index, err := client.BuildCatalog(context.Background(), docs, "catalog", mock, st)
	if err != nil {
		t.Fatalf("BuildCatalog() error = %v", err)
	}

	byName := modulesByName(index)
	if len(byName) != 2 {
		t.Fatalf("index has %d modules, want 2", len(byName))
	}
	billing := byName["billing engine"]
	if billing == nil {
		t.Fatal("refined module 'billing engine' missing from index")
	}
	if want := []string{"Charges customers."}; !reflect.DeepEqual(billing.Fields["purpose"], want) {
		t.Errorf("billing engine purpose = %v, want %v", billing.Fields["purpose"], want)
	}

	if want := []string{"Gateway->billing engine:depends_on"}; !reflect.DeepEqual(edgeSet(index), want) {
		t.Errorf("edges = %v, want %v", edgeSet(index), want)
	}
	if len(index.Meta.Orphans) != 0 {
		t.Errorf("meta orphans = %v, want none after refinement", index.Meta.Orphans)
	}
	if index.Meta.RefinedModuleCount != 1 {
		t.Errorf("meta refined modules = %d, want 1", index.Meta.RefinedModuleCount)
	}
}

func TestBuildCatalogRefinementFillsEmptyModule(t *testing.T) {
	client := newTestClient(t, NewCatalogClientParams{
		RefineDepth:      1,
		RefineMinContext: 5,
	})
	st := memory.NewCatalogMemStorage()
	mock := &mockAIClient{
		discover: map[string][]string{
			"WidgetStore saves widgets.": {"WidgetStore"},
		},
		drafts: map[string]mockDraft{
			"WidgetStore|WidgetStore saves widgets.": {},
		},
		failures: map[string]error{
			"WidgetStore|WidgetStore saves widgets.": ai.Malformed("not json", "garbage", nil),
		},
		refines: map[string]mockDraft{
			"WidgetStore": {
				fields:     draftFields{Purpose: "Saves widgets."},
				confidence: 0.5,
			},
		},
	}

	docs := sentenceDocs("WidgetStore saves widgets.")
	index, err := client.BuildCatalog(context.Background(), docs, "catalog", mock, st)
	if err != nil {
		t.Fatalf("BuildCatalog() error = %v", err)
	}

	widget := modulesByName(index)["WidgetStore"]
	if widget == nil {
		t.Fatal("WidgetStore missing from index")
	}
	if want := []string{"Saves widgets."}; !reflect.DeepEqual(widget.Fields["purpose"], want) {
		t.Errorf("purpose = %v, want %v", widget.Fields["purpose"], want)
	}
	if index.Meta.FailedDrafts != 1 {
		t.Errorf("meta failed drafts = %d, want 1", index.Meta.FailedDrafts)
	}
	if index.Meta.RefinedModuleCount != 1 {
		t.Errorf("meta refined modules = %d, want 1", index.Meta.RefinedModuleCount)
	}
}

func sentenceDocs(texts ...string) []loader.Document {
	docs := make([]loader.Document, 0, len(texts))
	for i, text := range texts {
		docs = append(docs, loader.NewTextDocument(loader.NewDocumentParams{
			ID:     fmt.Sprintf("doc-%d", i+1),
			Path:   fmt.Sprintf("doc-%d.txt", i+1),
			Loader: &textLoader{text: text},
		}))
	}
	return docs
}

func modulesByName(index *common.SummaryIndex) map[string]*common.Module {
	out := make(map[string]*common.Module, len(index.Modules))
	for _, m := range index.Modules {
		out[m.Name] = m
	}
	return out
}

// edgeSet renders edges as sorted "from->to:kind" strings over module names
// so graphs from different runs can be compared.
func edgeSet(index *common.SummaryIndex) []string {
	nameByID := make(map[string]string, len(index.Modules))
	for id, m := range index.Modules {
		nameByID[id] = m.Name
	}
	out := make([]string, 0, len(index.Graph.Edges))
	for _, edge := range index.Graph.Edges {
		out = append(out, fmt.Sprintf("%s->%s:%s", nameByID[edge.From], nameByID[edge.To], edge.Kind))
	}
	sort.Strings(out)
	return out
}

// summarizeIndex renders each module as a name-keyed string of its aliases,
// fields, and evidence chunk texts. Chunk ids differ between runs, so
// evidence is compared by text.
func summarizeIndex(t *testing.T, index *common.SummaryIndex, st store.CatalogStorage) map[string]string {
	t.Helper()

	chunks, err := st.ListChunks(context.Background())
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	textByID := make(map[string]string, len(chunks))
	for _, chunk := range chunks {
		textByID[chunk.ID] = chunk.Text
	}

	out := make(map[string]string, len(index.Modules))
	for _, m := range index.Modules {
		aliases := append([]string(nil), m.Aliases...)
		sort.Strings(aliases)

		fields := make([]string, 0, len(m.Fields))
		for name, values := range m.Fields {
			fields = append(fields, name+"="+strings.Join(values, ";"))
		}
		sort.Strings(fields)

		evidence := make([]string, 0, len(m.Evidence))
		for _, id := range m.Evidence {
			evidence = append(evidence, textByID[id])
		}
		sort.Strings(evidence)

		out[m.Name] = strings.Join(aliases, ",") + " | " + strings.Join(fields, ",") + " | " + strings.Join(evidence, " ~ ")
	}
	return out
}

type mockDraft struct {
	fields       draftFields
	dependencies []draftDependency
	confidence   float64
}

// mockAIClient serves canned discovery and drafting answers matched against
// the chunk text inside the prompt. Failures, transient errors, unavailable
// embeddings, and mid-run cancellation are injected per call key.
type mockAIClient struct {
	mu sync.Mutex

	// discover maps a chunk text to the module names reported for it.
	discover map[string][]string
	// drafts maps "<module>|<chunk text>" to the canned drafting answer.
	drafts map[string]mockDraft
	// refines maps a module name to the canned refinement answer.
	refines map[string]mockDraft

	// failures maps a discovery chunk text or drafting key to a permanent
	// error; transient maps the same keys to a number of retryable failures
	// served before the canned answer.
	failures  map[string]error
	transient map[string]int

	embedUnavailable bool
	// embedVector, when set, is returned for every embedding request
	// instead of the derived bag-of-words vector.
	embedVector []float32

	embedCalls      int
	completionCalls int

	// cancelAfter triggers cancel once that many completion calls were
	// made; 0 disables.
	cancelAfter int
	cancel      context.CancelFunc
}

func (m *mockAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (m *mockAIClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.completionCalls++
	calls := m.completionCalls
	cancelAfter, cancel := m.cancelAfter, m.cancel
	m.mu.Unlock()

	if cancelAfter > 0 && calls >= cancelAfter && cancel != nil {
		cancel()
		return ctx.Err()
	}

	switch name {
	case "discover_modules":
		res, ok := out.(*discoverResponse)
		if !ok {
			return fmt.Errorf("unexpected output type %T for %s", out, name)
		}
		section := chunkTextSection(prompt)
		for fragment, names := range m.discover {
			if !strings.Contains(section, fragment) {
				continue
			}
			if err := m.takeFailure(fragment); err != nil {
				return err
			}
			res.Modules = append([]string(nil), names...)
			return nil
		}
		return nil

	case "draft_module_attributes":
		res, ok := out.(*draftResponse)
		if !ok {
			return fmt.Errorf("unexpected output type %T for %s", out, name)
		}
		module := promptModule(prompt)
		section := chunkTextSection(prompt)
		for key, spec := range m.drafts {
			specModule, fragment, found := strings.Cut(key, "|")
			if !found || specModule != module || !strings.Contains(section, fragment) {
				continue
			}
			if err := m.takeFailure(key); err != nil {
				return err
			}
			res.Fields = spec.fields
			res.Dependencies = append([]draftDependency(nil), spec.dependencies...)
			res.Confidence = spec.confidence
			return nil
		}
		return nil

	case "refine_module_attributes":
		res, ok := out.(*draftResponse)
		if !ok {
			return fmt.Errorf("unexpected output type %T for %s", out, name)
		}
		module := promptModule(prompt)
		if spec, found := m.refines[module]; found {
			res.Fields = spec.fields
			res.Dependencies = append([]draftDependency(nil), spec.dependencies...)
			res.Confidence = spec.confidence
		}
		return nil
	}

	return fmt.Errorf("unexpected completion %q", name)
}

func (m *mockAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedCalls++
	if m.embedUnavailable {
		return nil, ai.ErrEmbeddingUnavailable
	}
	if m.embedVector != nil {
		return m.embedVector, nil
	}
	return embedText(string(input)), nil
}

func (m *mockAIClient) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error {
	return nil
}

func (m *mockAIClient) ResetMetrics() {}

func (m *mockAIClient) GetMetrics() ai.ModelMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ai.ModelMetrics{TotalTokens: m.completionCalls}
}

func (m *mockAIClient) takeFailure(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.transient[key]; n > 0 {
		m.transient[key] = n - 1
		return ai.Transient(fmt.Errorf("upstream hiccup"))
	}
	if err, ok := m.failures[key]; ok {
		return err
	}
	return nil
}

// chunkTextSection isolates the chunk text between the prompt's chunk and
// context headings, so canned answers never match against retrieved context.
func chunkTextSection(prompt string) string {
	_, after, ok := strings.Cut(prompt, "## Chunk Text")
	if !ok {
		return prompt
	}
	section, _, _ := strings.Cut(after, "## Retrieved Context")
	return section
}

// promptModule extracts the module name from a drafting or refinement
// prompt.
func promptModule(prompt string) string {
	_, after, ok := strings.Cut(prompt, "**Module:** [")
	if !ok {
		return ""
	}
	module, _, _ := strings.Cut(after, "]")
	return module
}

// embedText derives a deterministic bag-of-words vector, so similar texts
// score similar without a real embedding backend.
func embedText(text string) []float32 {
	vec := make([]float32, 8)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,:;!?")))
		vec[h.Sum32()%8]++
	}
	return vec
}
