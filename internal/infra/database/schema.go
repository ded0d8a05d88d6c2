package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements create the feed tables, the delivery history and the insert triggers that
// publish each new row on a per-recipient channel (see ChannelName).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS recipients (
		id               TEXT PRIMARY KEY,
		email            TEXT NOT NULL,
		telegram_chat_id BIGINT NOT NULL UNIQUE,
		display_name     TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS invitations (
		id            BIGSERIAL PRIMARY KEY,
		invitee_email TEXT NOT NULL,
		title         TEXT NOT NULL,
		body          TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL DEFAULT 'pending',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS invitations_pending_idx ON invitations (invitee_email) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         BIGSERIAL PRIMARY KEY,
		user_id    TEXT NOT NULL,
		title      TEXT NOT NULL,
		body       TEXT NOT NULL DEFAULT '',
		read       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_unread_idx ON notifications (user_id) WHERE NOT read`,
	`CREATE TABLE IF NOT EXISTS delivery_history (
		id            BIGSERIAL PRIMARY KEY,
		recipient_id  TEXT NOT NULL,
		candidate_id  TEXT NOT NULL,
		title         TEXT NOT NULL,
		body          TEXT NOT NULL,
		target_screen TEXT NOT NULL,
		category      TEXT NOT NULL,
		silent        BOOLEAN NOT NULL,
		delivered_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS delivery_history_recipient_idx ON delivery_history (recipient_id, delivered_at DESC)`,
	`CREATE OR REPLACE FUNCTION notify_feed_insert() RETURNS trigger AS $$
	DECLARE
		recipient TEXT;
	BEGIN
		IF TG_TABLE_NAME = 'invitations' THEN
			IF NEW.status <> 'pending' THEN
				RETURN NEW;
			END IF;
			recipient := NEW.invitee_email;
		ELSE
			IF NEW.read THEN
				RETURN NEW;
			END IF;
			recipient := NEW.user_id;
		END IF;
		-- A payload over the NOTIFY limit must not abort the insert; polling covers the row.
		BEGIN
			PERFORM pg_notify(
				'feed_' || md5(TG_TABLE_NAME || ':' || recipient),
				json_build_object(
					'id', NEW.id::text,
					'title', NEW.title,
					'body', NEW.body,
					'recipient', recipient,
					'created_at', NEW.created_at
				)::text
			);
		EXCEPTION WHEN OTHERS THEN
			RAISE WARNING 'notify_feed_insert: % (%.%)', SQLERRM, TG_TABLE_NAME, NEW.id;
		END;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS invitations_notify_insert ON invitations`,
	`CREATE TRIGGER invitations_notify_insert AFTER INSERT ON invitations
		FOR EACH ROW EXECUTE FUNCTION notify_feed_insert()`,
	`DROP TRIGGER IF EXISTS notifications_notify_insert ON notifications`,
	`CREATE TRIGGER notifications_notify_insert AFTER INSERT ON notifications
		FOR EACH ROW EXECUTE FUNCTION notify_feed_insert()`,
}

// InitSchema creates the tables and triggers if they do not exist. It is safe to run on every start.
func InitSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}
	return nil
}
