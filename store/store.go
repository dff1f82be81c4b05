// Package store provides the Postgres-backed relational store for articles,
// their extracted entities, and stock impacts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/FinSightAI/finsight-mvp/engine/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store wraps a Postgres connection pool.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres at dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: ping: %w: %v", domain.ErrStoreUnavailable, err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool, for tests.
func NewWithDB(db *sqlx.DB) *Store { return &Store{db: db} }

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

// Ensure applies the schema idempotently.
func (s *Store) Ensure(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	return nil
}

// SaveArticle writes an article together with its entities and impacts in a
// single transaction and returns the assigned id. Ingestion failures abort
// the whole write: there are no partial article rows. A non-nil beforeCommit
// runs with the assigned id while the transaction is still open; if it
// returns an error the transaction rolls back and nothing is persisted.
func (s *Store) SaveArticle(ctx context.Context, a domain.Article, entities []domain.Entity, impacts []domain.StockImpact, beforeCommit func(id int64) error) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w: %v", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	query, args, err := psql.Insert("news_articles").
		Columns("title", "content", "source", "timestamp", "is_duplicate", "duplicate_of").
		Values(a.Title, a.Content, a.Source, a.Timestamp, a.IsDuplicate, a.DuplicateOf).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("store: build article insert: %w", err)
	}
	var id int64
	if err := tx.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("store: insert article: %w", err)
	}

	if len(entities) > 0 {
		ins := psql.Insert("entities").Columns("article_id", "entity_type", "entity_value", "confidence")
		for _, e := range entities {
			ins = ins.Values(id, e.Type, e.Value, e.Confidence)
		}
		query, args, err = ins.ToSql()
		if err != nil {
			return 0, fmt.Errorf("store: build entity insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("store: insert entities: %w", err)
		}
	}

	if len(impacts) > 0 {
		ins := psql.Insert("stock_impacts").Columns("article_id", "stock_symbol", "confidence", "impact_type")
		for _, im := range impacts {
			ins = ins.Values(id, im.Symbol, im.Confidence, im.Type)
		}
		query, args, err = ins.ToSql()
		if err != nil {
			return 0, fmt.Errorf("store: build impact insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("store: insert impacts: %w", err)
		}
	}

	if beforeCommit != nil {
		if err := beforeCommit(id); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return id, nil
}

// Article fetches one article by id.
func (s *Store) Article(ctx context.Context, id int64) (domain.Article, error) {
	query, args, err := psql.
		Select("id", "title", "content", "source", "timestamp", "is_duplicate", "duplicate_of").
		From("news_articles").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Article{}, fmt.Errorf("store: build article select: %w", err)
	}
	var a domain.Article
	if err := s.db.GetContext(ctx, &a, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Article{}, ErrNotFound
		}
		return domain.Article{}, fmt.Errorf("store: get article %d: %w", id, err)
	}
	return a, nil
}

// Articles fetches several articles by id, keyed by id. Missing ids are
// simply absent from the result.
func (s *Store) Articles(ctx context.Context, ids []int64) (map[int64]domain.Article, error) {
	if len(ids) == 0 {
		return map[int64]domain.Article{}, nil
	}
	query, args, err := psql.
		Select("id", "title", "content", "source", "timestamp", "is_duplicate", "duplicate_of").
		From("news_articles").
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build articles select: %w", err)
	}
	var rows []domain.Article
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: get articles: %w", err)
	}
	out := make(map[int64]domain.Article, len(rows))
	for _, a := range rows {
		out[a.ID] = a
	}
	return out, nil
}

// ArticleIDsByEntity returns ids of non-duplicate articles carrying an entity
// with the given type and value.
func (s *Store) ArticleIDsByEntity(ctx context.Context, typ domain.EntityType, value string) ([]int64, error) {
	query, args, err := psql.
		Select("DISTINCT e.article_id").
		From("entities e").
		Join("news_articles a ON a.id = e.article_id").
		Where(sq.Eq{"e.entity_type": typ, "a.is_duplicate": false}).
		Where("lower(e.entity_value) = lower(?)", value).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build entity lookup: %w", err)
	}
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("store: ids by entity %s=%q: %w", typ, value, err)
	}
	return ids, nil
}

// ArticleIDsBySymbol returns ids of non-duplicate articles with an impact on
// the given stock symbol.
func (s *Store) ArticleIDsBySymbol(ctx context.Context, symbol string) ([]int64, error) {
	query, args, err := psql.
		Select("DISTINCT i.article_id").
		From("stock_impacts i").
		Join("news_articles a ON a.id = i.article_id").
		Where(sq.Eq{"i.stock_symbol": symbol, "a.is_duplicate": false}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build symbol lookup: %w", err)
	}
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("store: ids by symbol %q: %w", symbol, err)
	}
	return ids, nil
}

// EntitiesByArticle returns the entities stored for an article.
func (s *Store) EntitiesByArticle(ctx context.Context, articleID int64) ([]domain.Entity, error) {
	query, args, err := psql.
		Select("entity_type", "entity_value", "confidence").
		From("entities").
		Where(sq.Eq{"article_id": articleID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build entities select: %w", err)
	}
	var out []domain.Entity
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("store: entities for article %d: %w", articleID, err)
	}
	return out, nil
}

// ImpactsByArticle returns the stock impacts stored for an article.
func (s *Store) ImpactsByArticle(ctx context.Context, articleID int64) ([]domain.StockImpact, error) {
	query, args, err := psql.
		Select("article_id", "stock_symbol", "confidence", "impact_type").
		From("stock_impacts").
		Where(sq.Eq{"article_id": articleID}).
		OrderBy("confidence DESC", "stock_symbol").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build impacts select: %w", err)
	}
	var out []domain.StockImpact
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("store: impacts for article %d: %w", articleID, err)
	}
	return out, nil
}
