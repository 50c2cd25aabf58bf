package telegram

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultOpTimeout ограничивает сетевые операции, если срок не задан явно.
const DefaultOpTimeout = 30 * time.Second

// Handle — пара "живой протокольный клиент + его адаптер сессии".
// На session_id существует не более одного Handle, владеет им реестр.
type Handle struct {
	SessionID string
	Client    Client
	Adapter   *SessionAdapter
}

// Registry — таблица живых клиентов процесса. Создаётся при старте и
// передаётся обработчикам явно, без глобального состояния. Создание,
// подключение и разрыв для одного session_id взаимно исключены: два
// одновременных логина одного аккаунта не породят два соединения.
type Registry struct {
	stores  StoreFactory
	clients ClientFactory
	timeout time.Duration

	mu      sync.Mutex
	handles map[string]*Handle
	locks   map[string]*sync.Mutex
}

func NewRegistry(stores StoreFactory, clients ClientFactory, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	return &Registry{
		stores:  stores,
		clients: clients,
		timeout: timeout,
		handles: make(map[string]*Handle),
		locks:   make(map[string]*sync.Mutex),
	}
}

// sessionLock выдаёт мьютекс конкретной сессии, создавая его при первом
// обращении. Блокировка ожидающая: конкурирующий запрос дождётся
// завершения чужой операции и увидит уже созданный Handle.
func (r *Registry) sessionLock(sessionID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[sessionID] = lock
	}
	return lock
}

func (r *Registry) handle(sessionID string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[sessionID]
}

// opCtx ограничивает сетевую операцию таймаутом реестра.
func (r *Registry) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// GetOrCreate возвращает существующий Handle либо собирает новый:
// хранилище с выделенным соединением, адаптер поверх него и протокольный
// клиент, привязанный к адаптеру. Сеть при этом не трогается.
func (r *Registry) GetOrCreate(ctx context.Context, sessionID string) (*Handle, error) {
	lock := r.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if h := r.handle(sessionID); h != nil {
		return h, nil
	}

	log.Printf("[REGISTRY] создаём клиента для сессии %s", sessionID)
	store, err := r.stores(ctx, sessionID)
	if err != nil {
		return nil, storageUnavailable(err)
	}
	adapter, err := NewSessionAdapter(ctx, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	client, err := r.clients(sessionID, adapter)
	if err != nil {
		_ = adapter.Close()
		return nil, connectionFailed(err, "не удалось создать клиента для сессии %s", sessionID)
	}

	h := &Handle{SessionID: sessionID, Client: client, Adapter: adapter}
	r.mu.Lock()
	r.handles[sessionID] = h
	r.mu.Unlock()
	return h, nil
}

// EnsureConnected поднимает сетевое подключение Handle. Отсутствие
// Handle — ошибка. Неудачное или зависшее подключение не оставляет
// полуживого клиента: Handle разбирается целиком.
func (r *Registry) EnsureConnected(ctx context.Context, sessionID string) error {
	lock := r.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	h := r.handle(sessionID)
	if h == nil {
		return notFound("для сессии %s нет клиента", sessionID)
	}
	if h.Client.IsConnected() {
		return nil
	}

	opCtx, cancel := r.opCtx(ctx)
	defer cancel()
	if err := h.Client.Connect(opCtx); err != nil {
		log.Printf("[REGISTRY] сессия %s: подключение не удалось: %v", sessionID, err)
		r.teardown(ctx, h)
		if kind := KindOf(err); kind != 0 {
			return err
		}
		return connectionFailed(err, "не удалось подключить сессию %s", sessionID)
	}
	return nil
}

// IsAuthenticated отвечает, авторизована ли сессия с точки зрения
// Telegram. Любая неудача — от отсутствия Handle до отозванного ключа —
// превращается в false, наружу ошибка не уходит.
func (r *Registry) IsAuthenticated(ctx context.Context, sessionID string) bool {
	if r.handle(sessionID) == nil {
		return false
	}
	if err := r.EnsureConnected(ctx, sessionID); err != nil {
		return false
	}
	h := r.handle(sessionID)
	if h == nil {
		return false
	}

	opCtx, cancel := r.opCtx(ctx)
	defer cancel()
	if _, err := h.Client.Self(opCtx); err != nil {
		log.Printf("[REGISTRY] сессия %s: проверка авторизации не прошла: %v", sessionID, err)
		return false
	}
	return true
}

// Disconnect разрывает подключение, закрывает хранилище адаптера и
// убирает Handle из таблицы. Для незнакомой сессии это no-op.
func (r *Registry) Disconnect(ctx context.Context, sessionID string) {
	lock := r.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	h := r.handle(sessionID)
	if h == nil {
		return
	}
	r.teardown(ctx, h)
}

// teardown доводит разбор Handle до конца на любом пути: сначала сеть,
// затем хранилище, затем запись в таблице. Ошибки только логируются,
// чтобы разбор не останавливался на полпути.
func (r *Registry) teardown(ctx context.Context, h *Handle) {
	if h.Client.IsConnected() {
		opCtx, cancel := r.opCtx(ctx)
		if err := h.Client.Disconnect(opCtx); err != nil {
			log.Printf("[REGISTRY] сессия %s: ошибка при разрыве: %v", h.SessionID, err)
		}
		cancel()
	}
	if err := h.Adapter.Close(); err != nil {
		log.Printf("[REGISTRY] сессия %s: ошибка закрытия хранилища: %v", h.SessionID, err)
	}
	r.mu.Lock()
	delete(r.handles, h.SessionID)
	r.mu.Unlock()
	log.Printf("[REGISTRY] сессия %s отключена", h.SessionID)
}

// DestroySession навсегда удаляет сессию: разрывает подключение и
// стирает запись сессии вместе с кешем сущностей.
func (r *Registry) DestroySession(ctx context.Context, sessionID string) error {
	lock := r.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if h := r.handle(sessionID); h != nil {
		if err := h.Adapter.Destroy(ctx); err != nil {
			return err
		}
		r.teardown(ctx, h)
		return nil
	}

	// Живого клиента нет — удаляем напрямую через хранилище.
	store, err := r.stores(ctx, sessionID)
	if err != nil {
		return storageUnavailable(err)
	}
	defer func() { _ = store.Close() }()
	if err := store.Delete(ctx); err != nil {
		return storageUnavailable(err)
	}
	return nil
}

// SessionIDs возвращает идентификаторы всех живых Handle.
func (r *Registry) SessionIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	return ids
}

// CloseAll разбирает все Handle; вызывается при остановке процесса.
func (r *Registry) CloseAll(ctx context.Context) {
	for _, id := range r.SessionIDs() {
		r.Disconnect(ctx, id)
	}
}
