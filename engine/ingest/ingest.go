// Package ingest provides the article-ingestion pipeline: validation,
// duplicate decision, entity extraction, impact mapping, and storage, run as
// an explicit ordered sequence of stages over an immutable run context.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/FinSightAI/finsight-mvp/engine/dedup"
	"github.com/FinSightAI/finsight-mvp/engine/domain"
	"github.com/FinSightAI/finsight-mvp/engine/impact"
	"github.com/FinSightAI/finsight-mvp/engine/semantic"
	"github.com/FinSightAI/finsight-mvp/pkg/fn"
	"github.com/FinSightAI/finsight-mvp/pkg/metrics"
)

const (
	// Subject is the NATS subject for incoming articles.
	Subject = "engine.articles"
	// DLQSubject is the dead letter queue for articles that keep failing.
	DLQSubject = "engine.articles.dlq"
	// MaxRetries before an article goes to the DLQ.
	MaxRetries = 3
)

// Extractor provides article entities. Absence of entities returns an empty
// slice, never an error.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]domain.Entity, error)
}

// Checker makes the duplicate decision.
type Checker interface {
	Check(ctx context.Context, article domain.Article) (dedup.Verdict, error)
}

// Writer is the slice of the relational store the pipeline needs. The
// beforeCommit hook runs inside the open transaction with the assigned id; a
// hook error must roll the write back.
type Writer interface {
	SaveArticle(ctx context.Context, a domain.Article, entities []domain.Entity, impacts []domain.StockImpact, beforeCommit func(id int64) error) (int64, error)
}

// Indexer upserts article vectors into the similarity index.
type Indexer interface {
	Upsert(ctx context.Context, rec semantic.Record) error
}

// Deps holds the external collaborators for the ingestion pipeline.
type Deps struct {
	Checker   Checker
	Extractor Extractor
	Mapper    *impact.Mapper
	Store     Writer
	Index     Indexer
	Logger    *slog.Logger
	Metrics   *metrics.Registry
}

// NewValidate returns the validation stage.
func NewValidate() fn.Stage[Incoming, domain.Article] {
	return func(_ context.Context, in Incoming) fn.Result[domain.Article] {
		ts := time.Now().UTC()
		if in.Timestamp > 0 {
			ts = time.Unix(in.Timestamp, 0).UTC()
		}
		a := domain.Article{
			Title:     in.Title,
			Content:   in.Content,
			Source:    in.Source,
			Timestamp: ts,
		}
		if err := domain.ValidateArticle(a); err != nil {
			return fn.Err[domain.Article](err)
		}
		return fn.Ok(a)
	}
}

// NewCheck returns the duplicate-decision stage. An unreachable index fails
// the run: ingestion never proceeds as "not duplicate" on an index error.
func NewCheck(checker Checker) fn.Stage[domain.Article, Checked] {
	return func(ctx context.Context, a domain.Article) fn.Result[Checked] {
		verdict, err := checker.Check(ctx, a)
		if err != nil {
			return fn.Err[Checked](err)
		}
		if verdict.IsDuplicate {
			a.IsDuplicate = true
			dup := verdict.DuplicateOf
			a.DuplicateOf = &dup
		}
		return fn.Ok(Checked{Article: a, Verdict: verdict})
	}
}

// NewEnrich returns the extraction and impact-mapping stage. Duplicates keep
// their extracted entities for queryability but get no impact records.
func NewEnrich(extractor Extractor, mapper *impact.Mapper) fn.Stage[Checked, Enriched] {
	return func(ctx context.Context, c Checked) fn.Result[Enriched] {
		text := c.Article.Title + "\n" + c.Article.Content
		entities, err := extractor.Extract(ctx, text)
		if err != nil {
			return fn.Err[Enriched](fmt.Errorf("ingest: extract: %w: %v", domain.ErrExtraction, err))
		}
		for _, e := range entities {
			if err := domain.ValidateEntity(e); err != nil {
				return fn.Err[Enriched](fmt.Errorf("ingest: entity rejected: %w", err))
			}
		}

		out := Enriched{Checked: c, Entities: entities}
		if !c.Article.IsDuplicate {
			// ArticleID is not assigned yet; the store rewrites it on save.
			out.Impacts, out.Diagnostics = mapper.MapEntities(entities, 0)
		}
		return fn.Ok(out)
	}
}

// NewStore returns the storage stage: one transactional write to the
// relational store with the vector upsert inside the open transaction. A
// failed SQL write or index upsert rolls everything back, so a retried
// message never leaves an unindexed article row behind.
func NewStore(store Writer, index Indexer) fn.Stage[Enriched, Outcome] {
	return func(ctx context.Context, e Enriched) fn.Result[Outcome] {
		id, err := store.SaveArticle(ctx, e.Article, e.Entities, e.Impacts, func(id int64) error {
			return index.Upsert(ctx, semantic.Record{
				ArticleID:   id,
				Embedding:   e.Verdict.Embedding,
				Title:       e.Article.Title,
				Source:      e.Article.Source,
				IsDuplicate: e.Article.IsDuplicate,
			})
		})
		if err != nil {
			return fn.Err[Outcome](err)
		}

		out := Outcome{
			ArticleID:   id,
			IsDuplicate: e.Article.IsDuplicate,
			Similarity:  e.Verdict.Similarity,
			Entities:    len(e.Entities),
			Impacts:     len(e.Impacts),
			Unresolved:  e.Diagnostics.Count(),
		}
		if e.Article.DuplicateOf != nil {
			out.DuplicateOf = *e.Article.DuplicateOf
		}
		return fn.Ok(out)
	}
}

// LoggedTap returns a stage that logs entry and exit with duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Debug("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Debug("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline composes the full ingestion pipeline:
// Validate → Check → Enrich → Store.
func NewPipeline(deps Deps) fn.Stage[Incoming, Outcome] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	validated := fn.Then(LoggedTap[Incoming]("validate", log), fn.TracedStage("ingest.validate", NewValidate()))
	checked := fn.Then(validated, fn.Then(LoggedTap[domain.Article]("dedup", log), fn.TracedStage("ingest.dedup", NewCheck(deps.Checker))))
	enriched := fn.Then(checked, fn.Then(LoggedTap[Checked]("enrich", log), fn.TracedStage("ingest.enrich", NewEnrich(deps.Extractor, deps.Mapper))))
	stored := fn.Then(enriched, fn.Then(LoggedTap[Enriched]("store", log), fn.TracedStage("ingest.store", NewStore(deps.Store, deps.Index))))
	return stored
}

// dlqMessage is published to the DLQ on repeated failure. ID correlates the
// DLQ entry with the failure logs.
type dlqMessage struct {
	ID      string   `json:"id"`
	Article Incoming `json:"article"`
	Error   string   `json:"error"`
	Retries int      `json:"retries"`
}

// StartConsumer subscribes the ingestion pipeline to the articles subject
// with retry and DLQ support.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	reg := deps.Metrics
	if reg == nil {
		reg = metrics.New()
	}
	articlesTotal := reg.Counter("ingest_articles_total", "Articles ingested")
	duplicatesTotal := reg.Counter("ingest_duplicates_total", "Articles flagged duplicate")
	impactsTotal := reg.Counter("ingest_impacts_total", "Stock impact records produced")
	failuresTotal := reg.Counter("ingest_failures_total", "Pipeline runs that ended in error")
	dlqTotal := reg.Counter("ingest_dlq_total", "Articles sent to the dead letter queue")

	return nc.Subscribe(Subject, func(msg *nats.Msg) {
		var in Incoming
		if err := json.Unmarshal(msg.Data, &in); err != nil {
			log.Error("ingest: unmarshal failed", "error", err)
			return
		}

		ctx := context.Background()

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		result := pipeline(ctx, in)
		if result.IsErr() {
			_, pipeErr := result.Unwrap()
			retries++
			failuresTotal.Inc()
			log.Error("ingest: pipeline failed",
				"error", pipeErr,
				"title", in.Title,
				"retry", retries,
			)

			if retries >= MaxRetries {
				dlqTotal.Inc()
				dlq := dlqMessage{ID: uuid.NewString(), Article: in, Error: pipeErr.Error(), Retries: retries}
				data, _ := json.Marshal(dlq)
				if err := nc.Publish(DLQSubject, data); err != nil {
					log.Error("ingest: DLQ publish failed", "error", err)
				} else {
					log.Warn("ingest: sent to DLQ", "dlq_id", dlq.ID, "title", in.Title)
				}
			} else {
				retryMsg := nats.NewMsg(Subject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
				if err := nc.PublishMsg(retryMsg); err != nil {
					log.Error("ingest: retry publish failed", "error", err)
				}
			}
		} else {
			out, _ := result.Unwrap()
			articlesTotal.Inc()
			if out.IsDuplicate {
				duplicatesTotal.Inc()
			}
			impactsTotal.Add(int64(out.Impacts))
			log.Info("ingest: success",
				"article_id", out.ArticleID,
				"duplicate", out.IsDuplicate,
				"impacts", out.Impacts,
			)
		}

		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}
