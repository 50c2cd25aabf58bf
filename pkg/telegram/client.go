package telegram

import (
	"context"

	"github.com/gaigemini/telegram-hub/models"

	"github.com/gotd/td/tg"
)

// Client — узкий контракт протокольного клиента, который потребляет ядро.
// Транспорт, шифрование и кадрирование протокола скрыты за ним; боевой
// вариант поверх gotd/td живёт в подпакете mtproto, тесты подставляют фейк.
type Client interface {
	// Connect поднимает сетевое подключение; повторный вызов при живом
	// подключении — no-op. Disconnect обязан доводить разрыв до конца
	// даже на ошибочных путях и допускает повторные вызовы.
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	// SendCode запрашивает код подтверждения и возвращает code hash,
	// без которого код нельзя предъявить.
	SendCode(ctx context.Context, phone string) (string, error)

	// SignIn предъявляет код. Требование второго фактора — не ошибка,
	// а состояние результата; ошибкой остаётся только отказ.
	SignIn(ctx context.Context, phone, code, codeHash string) (*SignInResult, error)
	SignInPassword(ctx context.Context, password string) (*SignInResult, error)

	// Self запрашивает собственную учётную запись; провал означает,
	// что авторизация отсутствует либо отозвана.
	Self(ctx context.Context) (*models.Entity, error)

	ResolveUsername(ctx context.Context, username string) (PeerBatch, error)
	LookupID(ctx context.Context, id int64) (PeerBatch, error)
	Contacts(ctx context.Context) (PeerBatch, error)
	Dialogs(ctx context.Context, limit int) (PeerBatch, error)
	SendMessage(ctx context.Context, peer tg.InputPeerClass, text string) error
}

// SignInStatus — исход предъявления кода или пароля.
type SignInStatus int

const (
	SignInAuthorized    SignInStatus = iota + 1 // Вход завершён
	SignInPasswordNeeded                        // Аккаунт защищён вторым фактором
)

// SignInResult — явный вариантный результат входа вместо исключения
// "нужен пароль", на которое опирался бы вызывающий.
type SignInResult struct {
	Status SignInStatus
	User   *models.Entity // Заполнен только при SignInAuthorized
}

// PeerBatch — пакет объектов собеседников из ответа Telegram, как их
// отдаёт протокольный клиент. Absorb принимает его напрямую, без
// изготовления поддельных событий ради переиспользования кода.
type PeerBatch struct {
	Users []tg.UserClass
	Chats []tg.ChatClass
}

// Empty сообщает, что пакет не содержит ни одного объекта.
func (b PeerBatch) Empty() bool { return len(b.Users) == 0 && len(b.Chats) == 0 }

// SessionStore — контракт долговременного хранилища одной сессии.
// Реализуется storage.SessionStore; тесты используют память.
type SessionStore interface {
	SessionID() string
	Load(ctx context.Context) (*models.Session, error)
	Save(ctx context.Context, rec *models.Session) error
	Delete(ctx context.Context) error
	UpsertEntities(ctx context.Context, entities []models.Entity) error
	Entity(ctx context.Context, entityID int64) (*models.Entity, error)
	EntityByUsername(ctx context.Context, username string) (*models.Entity, error)
	Close() error
}

// SessionLister перечисляет сессии, подлежащие восстановлению при старте.
type SessionLister interface {
	AuthorizedSessionIDs(ctx context.Context) ([]string, error)
}

// StoreFactory открывает хранилище с выделенным соединением для сессии.
type StoreFactory func(ctx context.Context, sessionID string) (SessionStore, error)

// ClientFactory собирает протокольный клиент, привязанный к адаптеру сессии.
type ClientFactory func(sessionID string, adapter *SessionAdapter) (Client, error)
