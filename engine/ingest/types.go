package ingest

import (
	"github.com/FinSightAI/finsight-mvp/engine/dedup"
	"github.com/FinSightAI/finsight-mvp/engine/domain"
	"github.com/FinSightAI/finsight-mvp/engine/impact"
)

// Incoming is a raw article submitted for ingestion.
type Incoming struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp,omitempty"` // unix seconds; zero means now
}

// Checked carries the article through the pipeline after the duplicate
// decision. The run context is threaded value-wise from stage to stage; no
// stage mutates shared state.
type Checked struct {
	Article domain.Article
	Verdict dedup.Verdict
}

// Enriched adds extraction and mapping results to a checked article.
type Enriched struct {
	Checked
	Entities    []domain.Entity
	Impacts     []domain.StockImpact
	Diagnostics impact.Diagnostics
}

// Outcome is the terminal result of one ingestion run.
type Outcome struct {
	ArticleID   int64   `json:"article_id"`
	IsDuplicate bool    `json:"is_duplicate"`
	DuplicateOf int64   `json:"duplicate_of,omitempty"`
	Similarity  float64 `json:"similarity"`
	Entities    int     `json:"entities"`
	Impacts     int     `json:"impacts"`
	Unresolved  int     `json:"unresolved"`
}
