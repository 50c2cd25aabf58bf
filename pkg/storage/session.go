package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log"
	"net"
	"sync"

	"github.com/gaigemini/telegram-hub/models"
)

// ErrNotFound возвращается, когда запись сессии или сущности отсутствует.
var ErrNotFound = errors.New("запись не найдена")

// SessionStore обслуживает данные одной сессии через выделенное
// соединение с базой. Одно соединение на сессию гарантирует, что записи
// этой сессии не перемешиваются на уровне хранилища. Если соединение
// протухло (база закрыла его по простою), операция повторяется один раз
// на свежем соединении; повторная ошибка отдаётся вызывающему.
type SessionStore struct {
	db        *sql.DB
	sessionID string

	mu     sync.Mutex
	conn   *sql.Conn
	closed bool
}

// NewSessionStore выдаёт хранилище с выделенным соединением для сессии.
func (db *DB) NewSessionStore(ctx context.Context, sessionID string) (*SessionStore, error) {
	conn, err := db.Conn.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &SessionStore{db: db.Conn, sessionID: sessionID, conn: conn}, nil
}

// SessionID возвращает идентификатор обслуживаемой сессии.
func (s *SessionStore) SessionID() string { return s.sessionID }

// Close освобождает выделенное соединение. Повторный вызов безопасен.
func (s *SessionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// brokenConn распознаёт ошибки, после которых имеет смысл взять новое
// соединение: драйвер пометил его негодным либо сервер разорвал связь.
func brokenConn(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// withConn выполняет операцию на выделенном соединении и один раз
// повторяет её на новом соединении, если старое оказалось негодным.
func (s *SessionStore) withConn(ctx context.Context, op func(*sql.Conn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sql.ErrConnDone
	}

	err := op(s.conn)
	if err == nil || !brokenConn(err) {
		return err
	}

	log.Printf("[STORAGE] сессия %s: соединение с БД потеряно, переоткрываем: %v", s.sessionID, err)
	_ = s.conn.Close()
	conn, cerr := s.db.Conn(ctx)
	if cerr != nil {
		// Новое соединение получить не удалось, отдаём исходную ошибку.
		return err
	}
	s.conn = conn
	return op(s.conn)
}

// Load читает запись сессии. Отсутствие записи — ErrNotFound.
func (s *SessionStore) Load(ctx context.Context) (*models.Session, error) {
	var rec models.Session
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var (
			authKey []byte
			userID  sql.NullInt64
		)
		row := conn.QueryRowContext(ctx, `
			SELECT id, session_id, dc_id, server_address, port, auth_key, user_id
			FROM sessions
			WHERE session_id = $1
		`, s.sessionID)
		if err := row.Scan(&rec.ID, &rec.SessionID, &rec.DCID, &rec.ServerAddress, &rec.Port, &authKey, &userID); err != nil {
			return err
		}
		rec.AuthKey = authKey
		if userID.Valid {
			rec.UserID = &userID.Int64
		}
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save сохраняет запись сессии целиком (вставка либо обновление).
func (s *SessionStore) Save(ctx context.Context, rec *models.Session) error {
	var userID sql.NullInt64
	if rec.UserID != nil {
		userID = sql.NullInt64{Int64: *rec.UserID, Valid: true}
	}
	return s.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO sessions (session_id, dc_id, server_address, port, auth_key, user_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (session_id) DO UPDATE SET
				dc_id = EXCLUDED.dc_id,
				server_address = EXCLUDED.server_address,
				port = EXCLUDED.port,
				auth_key = EXCLUDED.auth_key,
				user_id = EXCLUDED.user_id
		`, rec.SessionID, rec.DCID, rec.ServerAddress, rec.Port, rec.AuthKey, userID)
		return err
	})
}

// Delete удаляет запись сессии вместе со всеми её сущностями.
// Обе таблицы чистятся в одной транзакции.
func (s *SessionStore) Delete(ctx context.Context) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE session_id = $1`, s.sessionID); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = $1`, s.sessionID); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}
