package sys

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	_ "github.com/mattn/go-sqlite3"
)

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS play_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			source_url TEXT NOT NULL,
			title TEXT NOT NULL,
			uploader TEXT,
			requested_by TEXT,
			duration_seconds INTEGER DEFAULT 0,
			played_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_play_history_guild
			ON play_history (guild_id, played_at DESC)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Play history ---

type PlayRecord struct {
	ID          int64
	GuildID     snowflake.ID
	SourceURL   string
	Title       string
	Uploader    string
	RequestedBy string
	Duration    time.Duration
	PlayedAt    time.Time
}

func AddPlayRecord(ctx context.Context, r *PlayRecord) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO play_history (guild_id, source_url, title, uploader, requested_by, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.GuildID.String(), r.SourceURL, r.Title, r.Uploader, r.RequestedBy, int(r.Duration.Seconds()))
	return err
}

func GetRecentPlays(ctx context.Context, guildID snowflake.ID, limit int) ([]*PlayRecord, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT id, guild_id, source_url, title, uploader, requested_by, duration_seconds, played_at
		FROM play_history WHERE guild_id = ? ORDER BY played_at DESC LIMIT ?
	`, guildID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*PlayRecord
	for rows.Next() {
		r := &PlayRecord{}
		var gid string
		var uploader, requestedBy sql.NullString
		var durationSecs int
		if err := rows.Scan(&r.ID, &gid, &r.SourceURL, &r.Title, &uploader, &requestedBy, &durationSecs, &r.PlayedAt); err != nil {
			return nil, err
		}
		r.GuildID, _ = snowflake.Parse(gid)
		r.Uploader = uploader.String
		r.RequestedBy = requestedBy.String
		r.Duration = time.Duration(durationSecs) * time.Second
		records = append(records, r)
	}
	return records, rows.Err()
}

func GetPlayCount(ctx context.Context, guildID snowflake.ID) (int, error) {
	var count int
	err := DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM play_history WHERE guild_id = ?", guildID.String()).Scan(&count)
	return count, err
}
