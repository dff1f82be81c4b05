// Package query resolves free-text queries into ranked, entity-aware result
// sets. Resolution is a single pass of ordered stages: classify, semantic
// search, entity filter, hierarchical expansion, rank and bound.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/FinSightAI/finsight-mvp/engine/domain"
	"github.com/FinSightAI/finsight-mvp/engine/semantic"
	"github.com/FinSightAI/finsight-mvp/engine/symbols"
	"github.com/FinSightAI/finsight-mvp/pkg/fn"
)

// Policy constants.
const (
	// TopK bounds the semantic candidate fetch before filtering.
	TopK = 50
	// SimilarityThreshold is the floor for pure semantic matches.
	SimilarityThreshold = 0.75
	// RescueEpsilon is how far below the threshold an entity match can rescue
	// a borderline semantic score.
	RescueEpsilon = 0.05
	// ExpansionDecay down-weights hierarchical expansion results so direct
	// matches never rank below expansion-only matches of equal similarity.
	ExpansionDecay = 0.7
	// EntityBonus is added once per matching entity, capped at BonusCap.
	EntityBonus = 0.1
	BonusCap    = 0.3
	// MaxResults bounds the returned list.
	MaxResults = 10
)

// Embedder provides the query embedding.
type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}

// Extractor provides the query's entities. It returns an empty slice, never
// an error, when the text simply contains no entities.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]domain.Entity, error)
}

// Searcher abstracts the similarity index lookup.
type Searcher interface {
	Nearest(ctx context.Context, embedding []float32, k int, excludeDuplicates bool) ([]semantic.Neighbor, error)
	SimilarityByIDs(ctx context.Context, embedding []float32, ids []int64) (map[int64]float64, error)
}

// ArticleReader is the slice of the relational store the resolver needs.
type ArticleReader interface {
	Articles(ctx context.Context, ids []int64) (map[int64]domain.Article, error)
	ArticleIDsByEntity(ctx context.Context, typ domain.EntityType, value string) ([]int64, error)
	ArticleIDsBySymbol(ctx context.Context, symbol string) ([]int64, error)
	EntitiesByArticle(ctx context.Context, articleID int64) ([]domain.Entity, error)
	ImpactsByArticle(ctx context.Context, articleID int64) ([]domain.StockImpact, error)
}

// Options configures resolution policy. Zero values fall back to the policy
// constants above.
type Options struct {
	TopK                int
	SimilarityThreshold float64
	RescueEpsilon       float64
	ExpansionDecay      float64
	EntityBonus         float64
	BonusCap            float64
	MaxResults          int
}

// DefaultOptions returns the default policy.
func DefaultOptions() Options {
	return Options{
		TopK:                TopK,
		SimilarityThreshold: SimilarityThreshold,
		RescueEpsilon:       RescueEpsilon,
		ExpansionDecay:      ExpansionDecay,
		EntityBonus:         EntityBonus,
		BonusCap:            BonusCap,
		MaxResults:          MaxResults,
	}
}

// Response is the resolved result set for one query.
type Response struct {
	Query     string               `json:"query"`
	QueryType domain.QueryType     `json:"query_type"`
	Entities  []domain.Entity      `json:"entities"`
	Results   []domain.QueryResult `json:"results"`
}

// Resolver runs the query resolution stages.
type Resolver struct {
	embed   Embedder
	extract Extractor
	search  Searcher
	store   ArticleReader
	table   *symbols.Table
	opts    Options
	logger  *slog.Logger
}

// New creates a Resolver.
func New(embed Embedder, extract Extractor, search Searcher, store ArticleReader, table *symbols.Table, opts Options, logger *slog.Logger) *Resolver {
	if opts.TopK <= 0 {
		opts.TopK = TopK
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = SimilarityThreshold
	}
	if opts.RescueEpsilon <= 0 {
		opts.RescueEpsilon = RescueEpsilon
	}
	if opts.ExpansionDecay <= 0 {
		opts.ExpansionDecay = ExpansionDecay
	}
	if opts.EntityBonus <= 0 {
		opts.EntityBonus = EntityBonus
	}
	if opts.BonusCap <= 0 {
		opts.BonusCap = BonusCap
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = MaxResults
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		embed:   embed,
		extract: extract,
		search:  search,
		store:   store,
		table:   table,
		opts:    opts,
		logger:  logger,
	}
}

// candidate accumulates one article's evidence across stages.
type candidate struct {
	similarity    float64
	weight        float64 // 1.0 direct, ExpansionDecay for expansion-only
	entityMatches int
	semantic      bool
	entity        bool
	expansion     bool
}

// Resolve runs the full pipeline for one query string.
func (r *Resolver) Resolve(ctx context.Context, text string) (*Response, error) {
	if err := domain.ValidateQuery(text); err != nil {
		return nil, err
	}

	// NER and query embedding are independent read-only calls; issue them
	// concurrently.
	type extracted struct{ entities []domain.Entity }
	type embedded struct{ vec []float32 }
	pair := fn.FanOut(
		func() fn.Result[any] {
			ents, err := r.extract.Extract(ctx, text)
			if err != nil {
				return fn.Err[any](fmt.Errorf("query: extract: %w: %v", domain.ErrExtraction, err))
			}
			return fn.Ok[any](extracted{entities: ents})
		},
		func() fn.Result[any] {
			vec, err := r.embed.Embedding(ctx, text)
			if err != nil {
				return fn.Err[any](fmt.Errorf("query: embed: %w", err))
			}
			return fn.Ok[any](embedded{vec: vec})
		},
	)
	exRes, err := pair[0].Unwrap()
	if err != nil {
		return nil, err
	}
	emRes, err := pair[1].Unwrap()
	if err != nil {
		return nil, err
	}
	entities := exRes.(extracted).entities
	queryVec := emRes.(embedded).vec

	// Stage 1: classify by strict priority.
	queryType := Classify(entities)

	// Stage 2: semantic search. Everything at or above threshold−ε survives
	// to filtering; the rescue window is decided in stage 3.
	neighbors, err := r.search.Nearest(ctx, queryVec, r.opts.TopK, true)
	if err != nil {
		return nil, fmt.Errorf("query: semantic search: %w", err)
	}
	cands := make(map[int64]*candidate)
	for _, n := range neighbors {
		if n.Similarity < r.opts.SimilarityThreshold-r.opts.RescueEpsilon {
			continue
		}
		cands[n.ArticleID] = &candidate{
			similarity: n.Similarity,
			weight:     1.0,
			semantic:   true,
		}
	}

	// Stage 3: entity filter.
	if queryType != domain.QueryTheme {
		if err := r.applyEntityFilter(ctx, entities, cands); err != nil {
			return nil, err
		}
	}
	// Pure semantic matches below the hard threshold are dropped; an entity
	// match rescues only the borderline window.
	for id, c := range cands {
		if c.similarity < r.opts.SimilarityThreshold && c.entityMatches == 0 {
			delete(cands, id)
		}
	}

	// Stage 4: hierarchical expansion.
	if queryType != domain.QueryTheme {
		if err := r.expand(ctx, queryType, entities, queryVec, cands); err != nil {
			return nil, err
		}
	}

	// Stage 5: rank and bound.
	results, err := r.rank(ctx, cands)
	if err != nil {
		return nil, err
	}

	r.logger.Info("query resolved",
		"type", queryType,
		"entities", len(entities),
		"results", len(results),
	)
	return &Response{
		Query:     text,
		QueryType: queryType,
		Entities:  entities,
		Results:   results,
	}, nil
}

// Classify determines the query type from extracted entities using a strict
// priority order: company, then sector, then regulator, else theme. Empty
// extraction is not an error; it falls through to theme.
func Classify(entities []domain.Entity) domain.QueryType {
	has := make(map[domain.EntityType]bool, len(entities))
	for _, e := range entities {
		has[e.Type] = true
	}
	switch {
	case has[domain.EntityCompany]:
		return domain.QueryCompany
	case has[domain.EntitySector]:
		return domain.QuerySector
	case has[domain.EntityRegulator]:
		return domain.QueryRegulator
	default:
		return domain.QueryTheme
	}
}

// applyEntityFilter boosts candidates whose stored entities match the query's
// entity values. Entity-matched candidates are never dropped for a borderline
// similarity; articles found only by entity enter with zero similarity and
// full weight.
func (r *Resolver) applyEntityFilter(ctx context.Context, entities []domain.Entity, cands map[int64]*candidate) error {
	for _, e := range entities {
		switch e.Type {
		case domain.EntityCompany, domain.EntitySector, domain.EntityRegulator:
		default:
			continue
		}
		ids, err := r.store.ArticleIDsByEntity(ctx, e.Type, e.Value)
		if err != nil {
			return fmt.Errorf("query: entity filter %s=%q: %w", e.Type, e.Value, err)
		}
		for _, id := range ids {
			c, ok := cands[id]
			if !ok {
				c = &candidate{weight: 1.0}
				cands[id] = c
			}
			c.entity = true
			c.entityMatches++
		}
	}
	return nil
}

// expand widens the candidate set along the entity hierarchy: company→its
// sector's constituents, sector→its constituent companies, regulator→its
// targets. Expansion entries carry their real similarity to the query, scored
// against the index by id, down-weighted by ExpansionDecay; an article
// already present as a direct match keeps its full weight.
func (r *Resolver) expand(ctx context.Context, queryType domain.QueryType, entities []domain.Entity, queryVec []float32, cands map[int64]*candidate) error {
	var symbolSet []string
	for _, e := range entities {
		switch {
		case queryType == domain.QueryCompany && e.Type == domain.EntityCompany:
			res, ok := r.table.ResolveCompany(e.Value)
			if !ok {
				continue
			}
			sector, ok := r.table.SectorOf(res.Symbol)
			if !ok {
				continue
			}
			for _, s := range r.table.Constituents(sector) {
				if s != res.Symbol {
					symbolSet = append(symbolSet, s)
				}
			}
		case queryType == domain.QuerySector && e.Type == domain.EntitySector:
			symbolSet = append(symbolSet, r.table.Constituents(e.Value)...)
		case queryType == domain.QueryRegulator && e.Type == domain.EntityRegulator:
			symbolSet = append(symbolSet, r.table.RegulatorTargets(e.Value)...)
		}
	}

	var added []int64
	for _, symbol := range fn.Unique(symbolSet) {
		ids, err := r.store.ArticleIDsBySymbol(ctx, symbol)
		if err != nil {
			return fmt.Errorf("query: expansion for %s: %w", symbol, err)
		}
		for _, id := range ids {
			if c, ok := cands[id]; ok {
				c.expansion = true
				continue
			}
			cands[id] = &candidate{
				weight:    r.opts.ExpansionDecay,
				expansion: true,
			}
			added = append(added, id)
		}
	}
	if len(added) == 0 {
		return nil
	}

	// Expansion-only entries rank by their own similarity to the query,
	// decayed. Articles missing from the index keep similarity zero.
	scores, err := r.search.SimilarityByIDs(ctx, queryVec, added)
	if err != nil {
		return fmt.Errorf("query: score expansion: %w", err)
	}
	for _, id := range added {
		if sim, ok := scores[id]; ok {
			cands[id].similarity = sim
		}
	}
	return nil
}

// rank computes composite scores, fetches article rows and attachments, sorts
// and truncates. Composite = similarity × weight + min(matches, cap/bonus) ×
// bonus; ties break by newer timestamp, then lower article id.
func (r *Resolver) rank(ctx context.Context, cands map[int64]*candidate) ([]domain.QueryResult, error) {
	if len(cands) == 0 {
		return []domain.QueryResult{}, nil
	}

	ids := make([]int64, 0, len(cands))
	for id := range cands {
		ids = append(ids, id)
	}
	articles, err := r.store.Articles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("query: fetch articles: %w", err)
	}

	results := make([]domain.QueryResult, 0, len(cands))
	for id, c := range cands {
		a, ok := articles[id]
		if !ok || a.IsDuplicate {
			continue
		}
		bonus := float64(c.entityMatches) * r.opts.EntityBonus
		if bonus > r.opts.BonusCap {
			bonus = r.opts.BonusCap
		}
		score := c.similarity*c.weight + bonus

		var reasons []domain.MatchReason
		if c.semantic {
			reasons = append(reasons, domain.MatchSemantic)
		}
		if c.entity {
			reasons = append(reasons, domain.MatchEntity)
		}
		if c.expansion {
			reasons = append(reasons, domain.MatchExpansion)
		}
		results = append(results, domain.QueryResult{
			Article:    a,
			Score:      score,
			Similarity: c.similarity,
			Reasons:    reasons,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ti, tj := results[i].Article.Timestamp, results[j].Article.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return results[i].Article.ID < results[j].Article.ID
	})
	if len(results) > r.opts.MaxResults {
		results = results[:r.opts.MaxResults]
	}

	// Attach entities and impacts only for the bounded result page.
	for i := range results {
		id := results[i].Article.ID
		ents, err := r.store.EntitiesByArticle(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("query: entities for %d: %w", id, err)
		}
		imps, err := r.store.ImpactsByArticle(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("query: impacts for %d: %w", id, err)
		}
		results[i].Entities = ents
		results[i].Impacts = imps
	}
	return results, nil
}
