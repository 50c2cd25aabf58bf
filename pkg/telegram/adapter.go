package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/gaigemini/telegram-hub/models"
	"github.com/gaigemini/telegram-hub/pkg/storage"

	"github.com/gotd/td/tg"
)

// SelfReference — литеральная ссылка на собственную учётную запись сессии.
const SelfReference = "self"

// SessionAdapter — поверхность сохранения, от которой зависит протокольный
// клиент: учётные данные подключения и кеш сущностей одной сессии.
// Поля держатся в памяти и синхронно записываются в хранилище при каждом
// изменении, чтобы перезапуск процесса ничего не терял.
type SessionAdapter struct {
	store SessionStore

	mu  sync.Mutex
	rec models.Session
}

// NewSessionAdapter загружает состояние сессии из хранилища.
// Отсутствие записи не ошибка: адаптер начинает с пустых полей, запись
// появится при первом сохранении учётных данных.
func NewSessionAdapter(ctx context.Context, store SessionStore) (*SessionAdapter, error) {
	a := &SessionAdapter{store: store, rec: models.Session{SessionID: store.SessionID()}}
	rec, err := store.Load(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, storageUnavailable(err)
	}
	if rec != nil {
		a.rec = *rec
	}
	return a, nil
}

func (a *SessionAdapter) SessionID() string { return a.store.SessionID() }

func (a *SessionAdapter) DCID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec.DCID
}

func (a *SessionAdapter) ServerAddress() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec.ServerAddress
}

func (a *SessionAdapter) Port() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec.Port
}

// AuthKey возвращает копию ключа авторизации (nil, если его ещё нет).
func (a *SessionAdapter) AuthKey() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.rec.AuthKey) == 0 {
		return nil
	}
	key := make([]byte, len(a.rec.AuthKey))
	copy(key, a.rec.AuthKey)
	return key
}

// UserID возвращает ID владельца сессии либо nil до авторизации.
func (a *SessionAdapter) UserID() *int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rec.UserID == nil {
		return nil
	}
	id := *a.rec.UserID
	return &id
}

// SetDC запоминает привязку сессии к дата-центру и сразу сохраняет её.
func (a *SessionAdapter) SetDC(ctx context.Context, dcID int, addr string, port int) error {
	a.mu.Lock()
	a.rec.DCID = dcID
	a.rec.ServerAddress = addr
	a.rec.Port = port
	rec := a.rec
	a.mu.Unlock()
	return a.persist(ctx, rec)
}

// SetAuthKey заменяет ключ авторизации. Прежний владелец при этом
// забывается: новый ключ означает новую (пока неизвестную) личность.
func (a *SessionAdapter) SetAuthKey(ctx context.Context, key []byte) error {
	a.mu.Lock()
	a.rec.AuthKey = append([]byte(nil), key...)
	a.rec.UserID = nil
	rec := a.rec
	a.mu.Unlock()
	return a.persist(ctx, rec)
}

// SetUserID фиксирует личность после успешного входа.
func (a *SessionAdapter) SetUserID(ctx context.Context, userID int64) error {
	a.mu.Lock()
	a.rec.UserID = &userID
	rec := a.rec
	a.mu.Unlock()
	return a.persist(ctx, rec)
}

func (a *SessionAdapter) persist(ctx context.Context, rec models.Session) error {
	if err := a.store.Save(ctx, &rec); err != nil {
		return storageUnavailable(err)
	}
	return nil
}

// ResolveLocal строит адресуемый peer по ссылке "self", числовому ID или
// username, пользуясь только локальными данными. Промах — всегда ошибка
// ErrorNotFound, а не пустой результат: протокольный клиент по этой
// ошибке решает, идти ли за сущностью в сеть.
func (a *SessionAdapter) ResolveLocal(ctx context.Context, ref string) (tg.InputPeerClass, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, invalidInput("пустая ссылка на чат")
	}

	if ref == SelfReference {
		// До авторизации собственной личности нет — отвечаем ошибкой,
		// а не пустым значением.
		if a.UserID() == nil {
			return nil, notFound("сессия %s ещё не авторизована, self недоступен", a.SessionID())
		}
		return &tg.InputPeerSelf{}, nil
	}

	var (
		ent *models.Entity
		err error
	)
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		ent, err = a.store.Entity(ctx, id)
	} else {
		ent, err = a.store.EntityByUsername(ctx, strings.TrimPrefix(ref, "@"))
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound("сущность %q не найдена в кеше сессии %s", ref, a.SessionID())
	}
	if err != nil {
		return nil, storageUnavailable(err)
	}
	return inputPeer(ent)
}

// inputPeer выбирает форму адресации по виду сущности.
func inputPeer(ent *models.Entity) (tg.InputPeerClass, error) {
	switch ent.Kind {
	case models.KindUser:
		return &tg.InputPeerUser{UserID: ent.EntityID, AccessHash: ent.AccessHash}, nil
	case models.KindGroup:
		return &tg.InputPeerChat{ChatID: ent.EntityID}, nil
	case models.KindChannel:
		return &tg.InputPeerChannel{ChannelID: ent.EntityID, AccessHash: ent.AccessHash}, nil
	default:
		return nil, notFound("сущность %d имеет неизвестный вид %q", ent.EntityID, ent.Kind)
	}
}

// Absorb раскладывает пакет объектов Telegram по видам и сохраняет их в
// кеш одной транзакцией. Объекты нераспознанных видов (удалённые и
// недоступные чаты) молча пропускаются. К моменту возврата пакет либо
// полностью закоммичен, либо полностью откатан.
func (a *SessionAdapter) Absorb(ctx context.Context, batch PeerBatch) error {
	var ents []models.Entity
	for _, raw := range batch.Users {
		user, ok := raw.(*tg.User)
		if !ok {
			continue
		}
		ents = append(ents, models.Entity{
			EntityID:    user.ID,
			AccessHash:  user.AccessHash,
			Username:    user.Username,
			Phone:       user.Phone,
			DisplayName: strings.TrimSpace(user.FirstName + " " + user.LastName),
			Kind:        models.KindUser,
		})
	}
	for _, raw := range batch.Chats {
		switch chat := raw.(type) {
		case *tg.Chat:
			ents = append(ents, models.Entity{
				EntityID:    chat.ID,
				DisplayName: chat.Title,
				Kind:        models.KindGroup,
			})
		case *tg.Channel:
			ents = append(ents, models.Entity{
				EntityID:    chat.ID,
				AccessHash:  chat.AccessHash,
				Username:    chat.Username,
				DisplayName: chat.Title,
				Kind:        models.KindChannel,
			})
		}
	}
	if len(ents) == 0 {
		return nil
	}
	if err := a.store.UpsertEntities(ctx, ents); err != nil {
		return storageUnavailable(err)
	}
	return nil
}

// Close освобождает соединение хранилища. Повторные вызовы безопасны.
func (a *SessionAdapter) Close() error {
	return a.store.Close()
}

// Destroy удаляет запись сессии и все её сущности.
func (a *SessionAdapter) Destroy(ctx context.Context) error {
	if err := a.store.Delete(ctx); err != nil {
		return storageUnavailable(err)
	}
	a.mu.Lock()
	a.rec = models.Session{SessionID: a.store.SessionID()}
	a.mu.Unlock()
	return nil
}
