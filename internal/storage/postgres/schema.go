package postgres

// schema is applied on every connect; all statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	id            TEXT PRIMARY KEY,
	date_z        TEXT NOT NULL,
	registration  TEXT NOT NULL,
	aircraft_type TEXT NOT NULL DEFAULT '',
	operator      TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT 'unknown',
	airport_icao  TEXT NOT NULL DEFAULT '',
	airport_iata  TEXT NOT NULL DEFAULT '',
	country       TEXT NOT NULL DEFAULT '',
	region        TEXT NOT NULL DEFAULT '',
	lat           DOUBLE PRECISION,
	lon           DOUBLE PRECISION,
	fatalities    INTEGER,
	injuries      INTEGER,
	summary       TEXT NOT NULL DEFAULT '',
	narrative     TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	UNIQUE(date_z, registration)
);

CREATE INDEX IF NOT EXISTS idx_events_date ON events(date_z);
CREATE INDEX IF NOT EXISTS idx_events_registration ON events(registration);

CREATE TABLE IF NOT EXISTS event_sources (
	id          BIGSERIAL PRIMARY KEY,
	event_id    TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	source_name TEXT NOT NULL,
	url         TEXT NOT NULL DEFAULT '',
	fetched_at  TEXT NOT NULL,
	checksum    TEXT NOT NULL DEFAULT '',
	UNIQUE(event_id, source_name, url, checksum)
);

CREATE INDEX IF NOT EXISTS idx_event_sources_event ON event_sources(event_id);

CREATE TABLE IF NOT EXISTS config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
