// Package mtproto — боевая реализация протокольного клиента хаба поверх
// gotd/td. Ядро знает только интерфейс telegram.Client; всё, что связано
// с MTProto, живёт здесь.
package mtproto

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net"
	"strconv"

	hub "github.com/gaigemini/telegram-hub/pkg/telegram"

	"github.com/gotd/td/session"
)

// sessionBlob — конверт, в котором gotd сериализует состояние сессии.
// Мы раскладываем его по структурированным колонкам адаптера и собираем
// обратно при загрузке; соль не храним, клиент передоговаривает её сам.
type sessionBlob struct {
	Version int
	Data    sessionBlobData
}

type sessionBlobData struct {
	DC        int
	Addr      string
	AuthKey   []byte
	AuthKeyID []byte
	Salt      int64
}

const sessionBlobVersion = 1

// adapterStorage реализует session.Storage gotd поверх адаптера сессии:
// учётные данные подключения живут в таблице sessions, а не в файле.
type adapterStorage struct {
	adapter *hub.SessionAdapter
}

// LoadSession собирает конверт gotd из сохранённых полей сессии.
// Пока ключа авторизации нет, сессия для клиента не существует.
func (s *adapterStorage) LoadSession(_ context.Context) ([]byte, error) {
	key := s.adapter.AuthKey()
	if len(key) == 0 {
		return nil, session.ErrNotFound
	}

	blob := sessionBlob{
		Version: sessionBlobVersion,
		Data: sessionBlobData{
			DC:        s.adapter.DCID(),
			Addr:      net.JoinHostPort(s.adapter.ServerAddress(), strconv.Itoa(s.adapter.Port())),
			AuthKey:   key,
			AuthKeyID: authKeyID(key),
		},
	}
	return json.Marshal(blob)
}

// StoreSession разбирает конверт и сохраняет изменившиеся поля через
// адаптер. Ключ сравнивается с текущим: замена ключа сбрасывает
// известную личность, поэтому писать его на каждое обновление нельзя.
func (s *adapterStorage) StoreSession(ctx context.Context, data []byte) error {
	var blob sessionBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return fmt.Errorf("разбор сессии gotd: %w", err)
	}

	if blob.Data.Addr != "" {
		host, portStr, err := net.SplitHostPort(blob.Data.Addr)
		if err != nil {
			return fmt.Errorf("адрес дата-центра %q: %w", blob.Data.Addr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("порт дата-центра %q: %w", portStr, err)
		}
		if blob.Data.DC != s.adapter.DCID() || host != s.adapter.ServerAddress() || port != s.adapter.Port() {
			if err := s.adapter.SetDC(ctx, blob.Data.DC, host, port); err != nil {
				return err
			}
		}
	}

	if len(blob.Data.AuthKey) > 0 && !bytes.Equal(blob.Data.AuthKey, s.adapter.AuthKey()) {
		if err := s.adapter.SetAuthKey(ctx, blob.Data.AuthKey); err != nil {
			return err
		}
	}
	return nil
}

// authKeyID — идентификатор ключа: младшие восемь байт SHA-1.
func authKeyID(key []byte) []byte {
	sum := sha1.Sum(key)
	return sum[12:20]
}
