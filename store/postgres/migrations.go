package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the lien journal.
var Migrations = migrate.NewGroup("lien")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_lien_events",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS lien_events (
    seq         BIGINT PRIMARY KEY,
    id          TEXT NOT NULL,
    op_id       TEXT NOT NULL,
    kind        TEXT NOT NULL,
    claim_id    BIGINT NOT NULL DEFAULT 0,
    actor       TEXT NOT NULL DEFAULT '',
    from_addr   TEXT NOT NULL DEFAULT '',
    to_addr     TEXT NOT NULL DEFAULT '',
    amount      BIGINT NOT NULL DEFAULT 0,
    face_value  BIGINT NOT NULL DEFAULT 0,
    maturity    BIGINT NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_lien_events_id ON lien_events (id);
CREATE INDEX IF NOT EXISTS idx_lien_events_op_id ON lien_events (op_id);
CREATE INDEX IF NOT EXISTS idx_lien_events_claim ON lien_events (claim_id, seq);
CREATE INDEX IF NOT EXISTS idx_lien_events_actor ON lien_events (actor, seq);
CREATE INDEX IF NOT EXISTS idx_lien_events_kind ON lien_events (kind, seq);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS lien_events`)
				return err
			},
		},
	)
}
