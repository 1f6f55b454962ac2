package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the valueflow store.
var Migrations = migrate.NewGroup("valueflow")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_valueflow_graph",
			Version: "20260301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS valueflow_resources (
    id                    TEXT PRIMARY KEY,
    name                  TEXT NOT NULL DEFAULT '',
    resource_type_id      TEXT NOT NULL DEFAULT '',
    context_agent         TEXT NOT NULL DEFAULT '',
    quantity              TEXT NOT NULL DEFAULT '0',
    unit                  TEXT NOT NULL DEFAULT '',
    value_per_unit        TEXT NOT NULL DEFAULT '0',
    value_per_unit_of_use TEXT NOT NULL DEFAULT '0',
    stage_id              TEXT NOT NULL DEFAULT '',
    exchange_stage_id     TEXT NOT NULL DEFAULT '',
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS valueflow_processes (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL DEFAULT '',
    process_type_id TEXT NOT NULL DEFAULT '',
    context_agent   TEXT NOT NULL DEFAULT '',
    start_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    end_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS valueflow_exchanges (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL DEFAULT '',
    exchange_type_id TEXT NOT NULL DEFAULT '',
    context_agent    TEXT NOT NULL DEFAULT '',
    date             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS valueflow_events (
    id               TEXT PRIMARY KEY,
    type             TEXT NOT NULL,
    date             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    from_agent       TEXT NOT NULL DEFAULT '',
    to_agent         TEXT NOT NULL DEFAULT '',
    context_agent    TEXT NOT NULL DEFAULT '',
    resource_id      TEXT NOT NULL DEFAULT '',
    resource_type_id TEXT NOT NULL DEFAULT '',
    process_id       TEXT NOT NULL DEFAULT '',
    exchange_id      TEXT NOT NULL DEFAULT '',
    quantity         TEXT NOT NULL DEFAULT '0',
    unit             TEXT NOT NULL DEFAULT '',
    value            TEXT NOT NULL DEFAULT '0',
    unit_value       TEXT NOT NULL DEFAULT '0',
    price            TEXT NOT NULL DEFAULT '0',
    stage_id         TEXT NOT NULL DEFAULT '',
    is_contribution  BOOLEAN NOT NULL DEFAULT FALSE,
    is_to_distribute BOOLEAN NOT NULL DEFAULT FALSE,
    note             TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_valueflow_events_resource ON valueflow_events (resource_id, date);
CREATE INDEX IF NOT EXISTS idx_valueflow_events_process ON valueflow_events (process_id, date);
CREATE INDEX IF NOT EXISTS idx_valueflow_events_exchange ON valueflow_events (exchange_id, date);
CREATE INDEX IF NOT EXISTS idx_valueflow_events_context ON valueflow_events (context_agent, date);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS valueflow_events;
DROP TABLE IF EXISTS valueflow_exchanges;
DROP TABLE IF EXISTS valueflow_processes;
DROP TABLE IF EXISTS valueflow_resources;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_valueflow_value_equations",
			Version: "20260301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS valueflow_value_equations (
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL DEFAULT '',
    description         TEXT NOT NULL DEFAULT '',
    context_agent       TEXT NOT NULL DEFAULT '',
    percentage_behavior TEXT NOT NULL DEFAULT 'straight',
    live                BOOLEAN NOT NULL DEFAULT FALSE,
    buckets             JSONB NOT NULL DEFAULT '[]',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_valueflow_ve_context ON valueflow_value_equations (context_agent, live);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS valueflow_value_equations`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_valueflow_claims",
			Version: "20260301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS valueflow_claims (
    id                TEXT PRIMARY KEY,
    value_equation_id TEXT NOT NULL DEFAULT '',
    bucket_rule_id    TEXT NOT NULL DEFAULT '',
    event_id          TEXT NOT NULL,
    rule_type         TEXT NOT NULL,
    has_agent         TEXT NOT NULL DEFAULT '',
    against_agent     TEXT NOT NULL DEFAULT '',
    context_agent     TEXT NOT NULL DEFAULT '',
    value             TEXT NOT NULL DEFAULT '0',
    original_value    TEXT NOT NULL DEFAULT '0',
    claim_date        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_valueflow_claims_event_rule ON valueflow_claims (event_id, bucket_rule_id);
CREATE INDEX IF NOT EXISTS idx_valueflow_claims_has_agent ON valueflow_claims (has_agent);
CREATE INDEX IF NOT EXISTS idx_valueflow_claims_context ON valueflow_claims (context_agent);

CREATE TABLE IF NOT EXISTS valueflow_claim_events (
    id                    TEXT PRIMARY KEY,
    claim_id              TEXT NOT NULL REFERENCES valueflow_claims (id),
    event_id              TEXT NOT NULL DEFAULT '',
    distribution_event_id TEXT NOT NULL DEFAULT '',
    direction             TEXT NOT NULL,
    value                 TEXT NOT NULL DEFAULT '0',
    date                  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_valueflow_claim_events_claim ON valueflow_claim_events (claim_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS valueflow_claim_events;
DROP TABLE IF EXISTS valueflow_claims;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_valueflow_distributions",
			Version: "20260301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS valueflow_distributions (
    id                TEXT PRIMARY KEY,
    value_equation_id TEXT NOT NULL DEFAULT '',
    context_agent     TEXT NOT NULL DEFAULT '',
    date              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    currency          TEXT NOT NULL DEFAULT '',
    amount            TEXT NOT NULL DEFAULT '0',
    distributed       TEXT NOT NULL DEFAULT '0',
    undistributed     TEXT NOT NULL DEFAULT '0',
    income_event_ids  JSONB NOT NULL DEFAULT '[]',
    snapshot          JSONB NOT NULL DEFAULT '{}',
    disbursement      JSONB,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_valueflow_dist_ve ON valueflow_distributions (value_equation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_valueflow_dist_context ON valueflow_distributions (context_agent, created_at);

CREATE TABLE IF NOT EXISTS valueflow_distribution_events (
    id              TEXT PRIMARY KEY,
    distribution_id TEXT NOT NULL REFERENCES valueflow_distributions (id),
    from_agent      TEXT NOT NULL DEFAULT '',
    to_agent        TEXT NOT NULL,
    quantity        TEXT NOT NULL DEFAULT '0',
    date            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    claim_event_ids JSONB NOT NULL DEFAULT '[]',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_valueflow_dist_events_dist ON valueflow_distribution_events (distribution_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS valueflow_distribution_events;
DROP TABLE IF EXISTS valueflow_distributions;
`)
				return err
			},
		},
	)
}
