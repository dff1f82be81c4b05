// Package domain defines core domain types, constants, and validation for the
// FinSight engine pipeline. It acts as the validation gate at pipeline entry points.
package domain

import "time"

// Article represents a financial news article. Immutable once stored, except
// for the duplicate flag and reference, which are set exactly once at
// ingestion decision time.
type Article struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Content     string    `json:"content" db:"content"`
	Source      string    `json:"source" db:"source"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	IsDuplicate bool      `json:"is_duplicate" db:"is_duplicate"`
	DuplicateOf *int64    `json:"duplicate_of,omitempty" db:"duplicate_of"`
}

// EntityType classifies extracted entities.
type EntityType string

const (
	EntityCompany   EntityType = "company"
	EntitySector    EntityType = "sector"
	EntityRegulator EntityType = "regulator"
	EntityPerson    EntityType = "person"
	EntityEvent     EntityType = "event"
)

// ValidEntityTypes is the set of recognised entity types. Unknown types are
// rejected at the boundary.
var ValidEntityTypes = map[EntityType]bool{
	EntityCompany: true, EntitySector: true, EntityRegulator: true,
	EntityPerson: true, EntityEvent: true,
}

// Entity is a typed value extracted from an article or query, attached to
// exactly one source text for the duration of one pipeline run.
type Entity struct {
	Type       EntityType `json:"type" db:"entity_type"`
	Value      string     `json:"value" db:"entity_value"`
	Confidence float64    `json:"confidence" db:"confidence"`
}

// ImpactType classifies how a stock is affected by an article.
type ImpactType string

const (
	ImpactDirect     ImpactType = "direct"
	ImpactSector     ImpactType = "sector"
	ImpactRegulatory ImpactType = "regulatory"
)

// StockImpact is derived from one entity plus the mapping policy. Confidence
// is a deterministic function of the source entity's confidence and impact
// type, so it is always reproducible from its inputs.
type StockImpact struct {
	ArticleID  int64      `json:"article_id" db:"article_id"`
	Symbol     string     `json:"symbol" db:"stock_symbol"`
	Confidence float64    `json:"confidence" db:"confidence"`
	Type       ImpactType `json:"type" db:"impact_type"`
}

// QueryType classifies a resolved query's intent.
type QueryType string

const (
	QueryCompany   QueryType = "company"
	QuerySector    QueryType = "sector"
	QueryRegulator QueryType = "regulator"
	QueryTheme     QueryType = "theme"
)

// MatchReason explains why a result entered the candidate set.
type MatchReason string

const (
	MatchSemantic  MatchReason = "semantic"
	MatchEntity    MatchReason = "entity"
	MatchExpansion MatchReason = "expansion"
)

// QueryResult is one ranked entry in a query response. Ordering is a
// first-class attribute: lists are sorted by descending composite score, ties
// broken by newer timestamp, then lower article id.
type QueryResult struct {
	Article    Article       `json:"article"`
	Score      float64       `json:"score"`
	Similarity float64       `json:"similarity"`
	Reasons    []MatchReason `json:"reasons"`
	Entities   []Entity      `json:"entities,omitempty"`
	Impacts    []StockImpact `json:"impacts,omitempty"`
}
