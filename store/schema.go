package store

// Schema bootstrap statements, applied idempotently by Ensure.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS news_articles (
		id            BIGSERIAL PRIMARY KEY,
		title         VARCHAR(500) NOT NULL,
		content       TEXT NOT NULL,
		source        VARCHAR(200) NOT NULL DEFAULT '',
		timestamp     TIMESTAMPTZ NOT NULL DEFAULT now(),
		is_duplicate  BOOLEAN NOT NULL DEFAULT FALSE,
		duplicate_of  BIGINT REFERENCES news_articles(id),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_article_timestamp ON news_articles (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_article_is_duplicate ON news_articles (is_duplicate)`,

	`CREATE TABLE IF NOT EXISTS entities (
		id            BIGSERIAL PRIMARY KEY,
		article_id    BIGINT NOT NULL REFERENCES news_articles(id) ON DELETE CASCADE,
		entity_type   VARCHAR(50) NOT NULL,
		entity_value  VARCHAR(200) NOT NULL,
		confidence    DOUBLE PRECISION NOT NULL DEFAULT 0.9,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entity_type_value ON entities (entity_type, entity_value)`,
	`CREATE INDEX IF NOT EXISTS idx_entity_article ON entities (article_id)`,

	`CREATE TABLE IF NOT EXISTS stock_impacts (
		id            BIGSERIAL PRIMARY KEY,
		article_id    BIGINT NOT NULL REFERENCES news_articles(id) ON DELETE CASCADE,
		stock_symbol  VARCHAR(20) NOT NULL,
		confidence    DOUBLE PRECISION NOT NULL,
		impact_type   VARCHAR(50) NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_impact_symbol ON stock_impacts (stock_symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_impact_article ON stock_impacts (article_id)`,
}
