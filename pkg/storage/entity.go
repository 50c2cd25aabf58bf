package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gaigemini/telegram-hub/models"
)

// UpsertEntities сохраняет пакет сущностей одной транзакцией: либо
// записываются все, либо ни одной. Повторная встреча сущности обновляет
// изменяемые поля существующей строки вместо создания дубликата.
func (s *SessionStore) UpsertEntities(ctx context.Context, entities []models.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	return s.withConn(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, e := range entities {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO entities (session_id, entity_id, access_hash, username, phone, display_name, kind)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (session_id, entity_id) DO UPDATE SET
					access_hash = EXCLUDED.access_hash,
					username = EXCLUDED.username,
					phone = EXCLUDED.phone,
					display_name = EXCLUDED.display_name
			`, s.sessionID, e.EntityID, e.AccessHash, e.Username, e.Phone, e.DisplayName, e.Kind); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

// Entity ищет сущность сессии по её Telegram ID.
func (s *SessionStore) Entity(ctx context.Context, entityID int64) (*models.Entity, error) {
	return s.entityByQuery(ctx, `
		SELECT id, session_id, entity_id, access_hash, username, phone, display_name, kind
		FROM entities
		WHERE session_id = $1 AND entity_id = $2
	`, entityID)
}

// EntityByUsername ищет сущность сессии по имени пользователя.
func (s *SessionStore) EntityByUsername(ctx context.Context, username string) (*models.Entity, error) {
	return s.entityByQuery(ctx, `
		SELECT id, session_id, entity_id, access_hash, username, phone, display_name, kind
		FROM entities
		WHERE session_id = $1 AND username = $2
	`, username)
}

func (s *SessionStore) entityByQuery(ctx context.Context, query string, arg any) (*models.Entity, error) {
	var e models.Entity
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, query, s.sessionID, arg)
		return row.Scan(&e.ID, &e.SessionID, &e.EntityID, &e.AccessHash, &e.Username, &e.Phone, &e.DisplayName, &e.Kind)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
