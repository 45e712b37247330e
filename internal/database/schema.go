package database

var schema = []string{
	`CREATE TABLE IF NOT EXISTS scrape_runs (
		id          UUID PRIMARY KEY,
		status      TEXT NOT NULL,
		stop_reason TEXT NOT NULL DEFAULT '',
		pages       INTEGER NOT NULL DEFAULT 0,
		raw_records INTEGER NOT NULL DEFAULT 0,
		products    INTEGER NOT NULL DEFAULT 0,
		images_saved   INTEGER NOT NULL DEFAULT 0,
		images_skipped INTEGER NOT NULL DEFAULT 0,
		images_failed  INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT '',
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		sku         TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		image_url   TEXT NOT NULL DEFAULT '',
		stock       TEXT NOT NULL DEFAULT '',
		kdv         TEXT NOT NULL DEFAULT '',
		birim       TEXT NOT NULL DEFAULT '',
		price       DOUBLE PRECISION NOT NULL DEFAULT 0,
		currency    TEXT NOT NULL,
		last_run_id UUID NOT NULL,
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_event (
		id             UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		payload        JSONB NOT NULL,
		target_stream  TEXT NOT NULL,
		status         TEXT NOT NULL,
		retry_count    INTEGER NOT NULL DEFAULT 0,
		error_message  TEXT,
		created_at     TIMESTAMPTZ NOT NULL,
		processed_at   TIMESTAMPTZ,
		next_retry_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_event_pending
		ON outbox_event (status, next_retry_at, created_at)`,
}
