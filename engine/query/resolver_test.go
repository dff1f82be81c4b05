package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/FinSightAI/finsight-mvp/engine/domain"
	"github.com/FinSightAI/finsight-mvp/engine/semantic"
	"github.com/FinSightAI/finsight-mvp/engine/symbols"
)

// --- mocks ---

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embedding(_ context.Context, _ string) ([]float32, error) {
	return m.vec, m.err
}

type mockExtractor struct {
	entities []domain.Entity
	err      error
}

func (m *mockExtractor) Extract(_ context.Context, _ string) ([]domain.Entity, error) {
	return m.entities, m.err
}

type mockSearcher struct {
	neighbors  []semantic.Neighbor
	scores     map[int64]float64
	err        error
	scoreErr   error
	lastK      int
	lastScored []int64
}

func (m *mockSearcher) Nearest(_ context.Context, _ []float32, k int, _ bool) ([]semantic.Neighbor, error) {
	m.lastK = k
	return m.neighbors, m.err
}

func (m *mockSearcher) SimilarityByIDs(_ context.Context, _ []float32, ids []int64) (map[int64]float64, error) {
	m.lastScored = ids
	if m.scoreErr != nil {
		return nil, m.scoreErr
	}
	out := make(map[int64]float64, len(ids))
	for _, id := range ids {
		if s, ok := m.scores[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

type mockStore struct {
	articles map[int64]domain.Article
	byEntity map[string][]int64 // "type|value" -> ids
	bySymbol map[string][]int64
	entities map[int64][]domain.Entity
	impacts  map[int64][]domain.StockImpact
	storeErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		articles: make(map[int64]domain.Article),
		byEntity: make(map[string][]int64),
		bySymbol: make(map[string][]int64),
		entities: make(map[int64][]domain.Entity),
		impacts:  make(map[int64][]domain.StockImpact),
	}
}

func (m *mockStore) addArticle(id int64, ts time.Time, dup bool) {
	m.articles[id] = domain.Article{ID: id, Title: "a", Content: "c", Timestamp: ts, IsDuplicate: dup}
}

func (m *mockStore) Articles(_ context.Context, ids []int64) (map[int64]domain.Article, error) {
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	out := make(map[int64]domain.Article, len(ids))
	for _, id := range ids {
		if a, ok := m.articles[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (m *mockStore) ArticleIDsByEntity(_ context.Context, typ domain.EntityType, value string) ([]int64, error) {
	return m.byEntity[string(typ)+"|"+value], nil
}

func (m *mockStore) ArticleIDsBySymbol(_ context.Context, symbol string) ([]int64, error) {
	return m.bySymbol[symbol], nil
}

func (m *mockStore) EntitiesByArticle(_ context.Context, id int64) ([]domain.Entity, error) {
	return m.entities[id], nil
}

func (m *mockStore) ImpactsByArticle(_ context.Context, id int64) ([]domain.StockImpact, error) {
	return m.impacts[id], nil
}

func newResolver(ex *mockExtractor, se *mockSearcher, st *mockStore) *Resolver {
	return New(&mockEmbedder{vec: []float32{1, 0}}, ex, se, st, symbols.Default(), DefaultOptions(), nil)
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// --- tests ---

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		entities []domain.Entity
		want     domain.QueryType
	}{
		{"company wins over all", []domain.Entity{
			{Type: domain.EntityRegulator, Value: "RBI"},
			{Type: domain.EntitySector, Value: "Banking"},
			{Type: domain.EntityCompany, Value: "HDFC Bank"},
		}, domain.QueryCompany},
		{"sector wins over regulator", []domain.Entity{
			{Type: domain.EntityRegulator, Value: "RBI"},
			{Type: domain.EntitySector, Value: "Banking"},
		}, domain.QuerySector},
		{"regulator alone", []domain.Entity{
			{Type: domain.EntityRegulator, Value: "SEBI"},
		}, domain.QueryRegulator},
		{"person and event fall to theme", []domain.Entity{
			{Type: domain.EntityPerson, Value: "Someone"},
			{Type: domain.EntityEvent, Value: "merger"},
		}, domain.QueryTheme},
		{"no entities", nil, domain.QueryTheme},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.entities); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve_TooShort(t *testing.T) {
	r := newResolver(&mockExtractor{}, &mockSearcher{}, newMockStore())
	if _, err := r.Resolve(context.Background(), "ab"); !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestResolve_ThemeQuery(t *testing.T) {
	st := newMockStore()
	st.addArticle(1, now, false)
	st.addArticle(2, now, false)
	se := &mockSearcher{neighbors: []semantic.Neighbor{
		{ArticleID: 1, Similarity: 0.82},
		{ArticleID: 2, Similarity: 0.78},
	}}
	r := newResolver(&mockExtractor{}, se, st)

	resp, err := r.Resolve(context.Background(), "market sentiment today")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.QueryType != domain.QueryTheme {
		t.Errorf("type = %v, want theme", resp.QueryType)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].Article.ID != 1 {
		t.Errorf("highest similarity must rank first, got id %d", resp.Results[0].Article.ID)
	}
	if se.lastK != TopK {
		t.Errorf("candidate fetch k = %d, want %d", se.lastK, TopK)
	}
}

func TestResolve_PureSemanticBelowThresholdDropped(t *testing.T) {
	st := newMockStore()
	st.addArticle(1, now, false)
	st.addArticle(2, now, false)
	se := &mockSearcher{neighbors: []semantic.Neighbor{
		{ArticleID: 1, Similarity: 0.76},
		{ArticleID: 2, Similarity: 0.74}, // in the rescue window but nothing rescues it
	}}
	r := newResolver(&mockExtractor{}, se, st)

	resp, err := r.Resolve(context.Background(), "market sentiment today")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Article.ID != 1 {
		t.Errorf("expected only article 1, got %v", resp.Results)
	}
}

func TestResolve_EntityMatchRescuesBorderline(t *testing.T) {
	st := newMockStore()
	st.addArticle(1, now, false)
	st.byEntity["company|HDFC Bank"] = []int64{1}
	se := &mockSearcher{neighbors: []semantic.Neighbor{
		{ArticleID: 1, Similarity: 0.72}, // below 0.75, inside the 0.05 window
	}}
	ex := &mockExtractor{entities: []domain.Entity{
		{Type: domain.EntityCompany, Value: "HDFC Bank", Confidence: 0.95},
	}}
	r := newResolver(ex, se, st)

	resp, err := r.Resolve(context.Background(), "HDFC Bank latest news")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("borderline entity match must be rescued, got %d results", len(resp.Results))
	}

	got := resp.Results[0]
	wantScore := 0.72*1.0 + 0.1
	if diff := got.Score - wantScore; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("score = %v, want %v", got.Score, wantScore)
	}
	if len(got.Reasons) != 2 {
		t.Errorf("expected semantic+entity reasons, got %v", got.Reasons)
	}
}

func TestResolve_BelowWindowNeverEnters(t *testing.T) {
	st := newMockStore()
	st.addArticle(1, now, false)
	se := &mockSearcher{neighbors: []semantic.Neighbor{
		{ArticleID: 1, Similarity: 0.69},
	}}
	r := newResolver(&mockExtractor{}, se, st)

	resp, err := r.Resolve(context.Background(), "market sentiment today")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("similarity below threshold-epsilon must not enter, got %v", resp.Results)
	}
}

func TestResolve_EntityOnlyCandidate(t *testing.T) {
	st := newMockStore()
	st.addArticle(5, now, false)
	st.byEntity["company|HDFC Bank"] = []int64{5}
	ex := &mockExtractor{entities: []domain.Entity{
		{Type: domain.EntityCompany, Value: "HDFC Bank", Confidence: 0.95},
	}}
	r := newResolver(ex, &mockSearcher{}, st)

	resp, err := r.Resolve(context.Background(), "HDFC Bank latest news")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("entity-only article must appear, got %d results", len(resp.Results))
	}
	got := resp.Results[0]
	if got.Similarity != 0 {
		t.Errorf("similarity = %v, want 0 for entity-only", got.Similarity)
	}
	if diff := got.Score - 0.1; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("score = %v, want the entity bonus 0.1", got.Score)
	}
	if len(got.Reasons) != 1 || got.Reasons[0] != domain.MatchEntity {
		t.Errorf("reasons = %v, want [entity]", got.Reasons)
	}
}

func TestResolve_EntityBonusCapped(t *testing.T) {
	st := newMockStore()
	st.addArticle(1, now, false)
	// Four distinct entity matches on the same article; bonus caps at 0.3.
	ex := &mockExtractor{entities: []domain.Entity{
		{Type: domain.EntityCompany, Value: "HDFC Bank", Confidence: 0.95},
		{Type: domain.EntityCompany, Value: "ICICI Bank", Confidence: 0.95},
		{Type: domain.EntitySector, Value: "Banking", Confidence: 0.85},
		{Type: domain.EntityRegulator, Value: "RBI", Confidence: 0.95},
	}}
	for _, k := range []string{"company|HDFC Bank", "company|ICICI Bank", "sector|Banking", "regulator|RBI"} {
		st.byEntity[k] = []int64{1}
	}
	se := &mockSearcher{neighbors: []semantic.Neighbor{{ArticleID: 1, Similarity: 0.80}}}
	r := newResolver(ex, se, st)

	resp, err := r.Resolve(context.Background(), "HDFC ICICI banking RBI")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 0.80 + 0.3
	if diff := resp.Results[0].Score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("score = %v, want %v (bonus capped)", resp.Results[0].Score, want)
	}
}

func TestResolve_CompanyExpandsToSectorSiblings(t *testing.T) {
	st := newMockStore()
	st.addArticle(1, now, false) // direct HDFC article
	st.addArticle(2, now, false) // ICICI article, reachable only by expansion
	st.byEntity["company|HDFC Bank"] = []int64{1}
	st.bySymbol["ICICIBANK"] = []int64{2}
	se := &mockSearcher{
		neighbors: []semantic.Neighbor{{ArticleID: 1, Similarity: 0.85}},
		scores:    map[int64]float64{2: 0.6},
	}
	ex := &mockExtractor{entities: []domain.Entity{
		{Type: domain.EntityCompany, Value: "HDFC Bank", Confidence: 0.95},
	}}
	r := newResolver(ex, se, st)

	resp, err := r.Resolve(context.Background(), "HDFC Bank latest news")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.QueryType != domain.QueryCompany {
		t.Fatalf("type = %v, want company", resp.QueryType)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected direct + expansion results, got %d", len(resp.Results))
	}

	if resp.Results[0].Article.ID != 1 {
		t.Errorf("direct match must rank first, got %d", resp.Results[0].Article.ID)
	}
	exp := resp.Results[1]
	if exp.Article.ID != 2 {
		t.Fatalf("expansion article missing, got %v", exp)
	}
	if len(exp.Reasons) != 1 || exp.Reasons[0] != domain.MatchExpansion {
		t.Errorf("reasons = %v, want [expansion]", exp.Reasons)
	}
	// Expansion-only articles carry their own similarity, decayed.
	if exp.Similarity != 0.6 {
		t.Errorf("expansion similarity = %v, want 0.6", exp.Similarity)
	}
	want := 0.6 * ExpansionDecay
	if diff := exp.Score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expansion score = %v, want %v", exp.Score, want)
	}
	if len(se.lastScored) != 1 || se.lastScored[0] != 2 {
		t.Errorf("expansion scoring asked for %v, want [2]", se.lastScored)
	}
}

func TestResolve_ExpansionDecayOrdersEntries(t *testing.T) {
	st := newMockStore()
	st.addArticle(1, now, false) // direct RBI article
	st.addArticle(2, now, false) // expansion, closer to the query
	st.addArticle(3, now, false) // expansion, farther from the query
	st.byEntity["regulator|RBI"] = []int64{1}
	st.bySymbol["HDFCBANK"] = []int64{2}
	st.bySymbol["ICICIBANK"] = []int64{3}
	se := &mockSearcher{
		neighbors: []semantic.Neighbor{{ArticleID: 1, Similarity: 0.80}},
		scores:    map[int64]float64{2: 0.9, 3: 0.5},
	}
	ex := &mockExtractor{entities: []domain.Entity{
		{Type: domain.EntityRegulator, Value: "RBI", Confidence: 0.95},
	}}
	r := newResolver(ex, se, st)

	resp, err := r.Resolve(context.Background(), "RBI policy impact on banks")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.Results))
	}
	// Direct 0.80+0.1 bonus, then 0.9*0.7, then 0.5*0.7: the decay ranks
	// expansion entries among themselves and below an equal direct match.
	got := []int64{resp.Results[0].Article.ID, resp.Results[1].Article.ID, resp.Results[2].Article.ID}
	want := []int64{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if diff := resp.Results[1].Score - 0.9*ExpansionDecay; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("decayed score = %v, want %v", resp.Results[1].Score, 0.9*ExpansionDecay)
	}
}

func TestResolve_ExpansionScoringError(t *testing.T) {
	st := newMockStore()
	st.addArticle(1, now, false)
	st.byEntity["company|HDFC Bank"] = []int64{1}
	st.bySymbol["ICICIBANK"] = []int64{2}
	se := &mockSearcher{
		neighbors: []semantic.Neighbor{{ArticleID: 1, Similarity: 0.85}},
		scoreErr:  domain.ErrIndexUnavailable,
	}
	ex := &mockExtractor{entities: []domain.Entity{
		{Type: domain.EntityCompany, Value: "HDFC Bank", Confidence: 0.95},
	}}
	r := newResolver(ex, se, st)

	_, err := r.Resolve(context.Background(), "HDFC Bank latest news")
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Errorf("expected index error to surface, got %v", err)
	}
}

func TestResolve_ExpansionNeverOutranksDirect(t *testing.T) {
	st := newMockStore()
	st.addArticle(1, now, false)
	st.addArticle(2, now, false)
	st.byEntity["sector|Banking"] = []int64{1}
	st.bySymbol["HDFCBANK"] = []int64{2}
	se := &mockSearcher{neighbors: []semantic.Neighbor{
		{ArticleID: 1, Similarity: 0.80},
		{ArticleID: 2, Similarity: 0.80},
	}}
	ex := &mockExtractor{entities: []domain.Entity{
		{Type: domain.EntitySector, Value: "Banking", Confidence: 0.85},
	}}
	r := newResolver(ex, se, st)

	resp, err := r.Resolve(context.Background(), "banking sector outlook")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	// Article 2 was already a semantic candidate, so expansion must not
	// down-weight it: both keep similarity 0.80, but 1 carries the entity bonus.
	if resp.Results[0].Article.ID != 1 {
		t.Errorf("entity-matched article must rank first, got %d", resp.Results[0].Article.ID)
	}
	if resp.Results[1].Similarity != 0.80 {
		t.Errorf("existing candidate lost its similarity: %v", resp.Results[1].Similarity)
	}
}

func TestResolve_RegulatorFansOut(t *testing.T) {
	st := newMockStore()
	st.addArticle(1, now, false)
	st.addArticle(2, now.Add(-time.Hour), false)
	st.byEntity["regulator|RBI"] = []int64{1}
	st.bySymbol["HDFCBANK"] = []int64{2}
	se := &mockSearcher{neighbors: []semantic.Neighbor{
		{ArticleID: 1, Similarity: 0.88},
	}}
	ex := &mockExtractor{entities: []domain.Entity{
		{Type: domain.EntityRegulator, Value: "RBI", Confidence: 0.95},
	}}
	r := newResolver(ex, se, st)

	resp, err := r.Resolve(context.Background(), "RBI policy impact on banks")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.QueryType != domain.QueryRegulator {
		t.Errorf("type = %v, want regulator", resp.QueryType)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("regulator expansion must pull in bank articles, got %d", len(resp.Results))
	}
}

func TestResolve_BoundsResults(t *testing.T) {
	st := newMockStore()
	var neighbors []semantic.Neighbor
	for i := int64(1); i <= 20; i++ {
		st.addArticle(i, now.Add(time.Duration(i)*time.Minute), false)
		neighbors = append(neighbors, semantic.Neighbor{ArticleID: i, Similarity: 0.99 - float64(i)*0.005})
	}
	se := &mockSearcher{neighbors: neighbors}
	r := newResolver(&mockExtractor{}, se, st)

	resp, err := r.Resolve(context.Background(), "market sentiment today")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != MaxResults {
		t.Fatalf("expected %d results, got %d", MaxResults, len(resp.Results))
	}
	for i := 1; i < len(resp.Results); i++ {
		if resp.Results[i].Score > resp.Results[i-1].Score {
			t.Errorf("scores must be non-increasing at %d", i)
		}
	}
}

func TestResolve_SkipsDuplicates(t *testing.T) {
	st := newMockStore()
	st.addArticle(1, now, false)
	st.addArticle(2, now, true)
	se := &mockSearcher{neighbors: []semantic.Neighbor{
		{ArticleID: 1, Similarity: 0.85},
		{ArticleID: 2, Similarity: 0.95},
	}}
	r := newResolver(&mockExtractor{}, se, st)

	resp, err := r.Resolve(context.Background(), "market sentiment today")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, res := range resp.Results {
		if res.Article.IsDuplicate {
			t.Errorf("duplicate article %d leaked into results", res.Article.ID)
		}
	}
	if len(resp.Results) != 1 {
		t.Errorf("expected only the canonical article, got %d", len(resp.Results))
	}
}

func TestResolve_TieBreaksByRecencyThenID(t *testing.T) {
	st := newMockStore()
	st.addArticle(1, now.Add(-time.Hour), false)
	st.addArticle(2, now, false)
	st.addArticle(3, now, false)
	se := &mockSearcher{neighbors: []semantic.Neighbor{
		{ArticleID: 1, Similarity: 0.85},
		{ArticleID: 2, Similarity: 0.85},
		{ArticleID: 3, Similarity: 0.85},
	}}
	r := newResolver(&mockExtractor{}, se, st)

	resp, err := r.Resolve(context.Background(), "market sentiment today")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := []int64{resp.Results[0].Article.ID, resp.Results[1].Article.ID, resp.Results[2].Article.ID}
	want := []int64{2, 3, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestResolve_AttachmentsOnlyOnResults(t *testing.T) {
	st := newMockStore()
	st.addArticle(1, now, false)
	st.entities[1] = []domain.Entity{{Type: domain.EntityCompany, Value: "HDFC Bank", Confidence: 0.95}}
	st.impacts[1] = []domain.StockImpact{{ArticleID: 1, Symbol: "HDFCBANK", Confidence: 1.0, Type: domain.ImpactDirect}}
	se := &mockSearcher{neighbors: []semantic.Neighbor{{ArticleID: 1, Similarity: 0.85}}}
	r := newResolver(&mockExtractor{}, se, st)

	resp, err := r.Resolve(context.Background(), "market sentiment today")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results[0].Entities) != 1 || len(resp.Results[0].Impacts) != 1 {
		t.Errorf("result must carry stored entities and impacts: %+v", resp.Results[0])
	}
}

func TestResolve_SearchError(t *testing.T) {
	se := &mockSearcher{err: domain.ErrIndexUnavailable}
	r := newResolver(&mockExtractor{}, se, newMockStore())

	_, err := r.Resolve(context.Background(), "market sentiment today")
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Errorf("expected index error to surface, got %v", err)
	}
}

func TestResolve_EmbedError(t *testing.T) {
	r := New(&mockEmbedder{err: domain.ErrEmbeddingService}, &mockExtractor{}, &mockSearcher{}, newMockStore(), symbols.Default(), DefaultOptions(), nil)
	_, err := r.Resolve(context.Background(), "market sentiment today")
	if !errors.Is(err, domain.ErrEmbeddingService) {
		t.Errorf("expected embedding error to surface, got %v", err)
	}
}
