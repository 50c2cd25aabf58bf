package storage

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
)

// DB — общий доступ к базе процесса. Выделенные соединения для
// конкретных сессий выдаёт NewSessionStore.
type DB struct {
	Conn *sql.DB
}

func NewDB(conn *sql.DB) *DB {
	return &DB{Conn: conn}
}

// InitSchema создаёт таблицы sessions и entities, если их ещё нет.
func (db *DB) InitSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS sessions (
			id SERIAL PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			dc_id INTEGER NOT NULL DEFAULT 0,
			server_address TEXT NOT NULL DEFAULT '',
			port INTEGER NOT NULL DEFAULT 0,
			auth_key BYTEA,
			user_id BIGINT
		);
		CREATE TABLE IF NOT EXISTS entities (
			id SERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			entity_id BIGINT NOT NULL,
			access_hash BIGINT NOT NULL DEFAULT 0,
			username TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			UNIQUE (session_id, entity_id)
		);
		CREATE INDEX IF NOT EXISTS entities_session_username_idx
			ON entities (session_id, username);
	`
	_, err := db.Conn.ExecContext(ctx, schema)
	return err
}

// AuthorizedSessionIDs возвращает идентификаторы всех сессий с
// заполненным user_id — кандидатов на восстановление при старте.
func (db *DB) AuthorizedSessionIDs(ctx context.Context) ([]string, error) {
	rows, err := db.Conn.QueryContext(ctx, `SELECT session_id FROM sessions WHERE user_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
