package telegram

import (
	"context"
	"errors"
	"sync"

	"github.com/gaigemini/telegram-hub/models"
	"github.com/gaigemini/telegram-hub/pkg/storage"

	"github.com/gotd/td/tg"
)

// memStore — хранилище сессии в памяти с семантикой SQL-слоя:
// upsert сущностей обновляет изменяемые поля существующей записи.
type memStore struct {
	id string

	mu      sync.Mutex
	rec     *models.Session
	ents    map[int64]models.Entity
	loadErr error
	saveErr error
	closed  int
	saves   int
}

func newMemStore(id string) *memStore {
	return &memStore{id: id, ents: make(map[int64]models.Entity)}
}

func (m *memStore) SessionID() string { return m.id }

func (m *memStore) Load(context.Context) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.rec == nil {
		return nil, storage.ErrNotFound
	}
	rec := *m.rec
	return &rec, nil
}

func (m *memStore) Save(_ context.Context, rec *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *rec
	m.rec = &cp
	return nil
}

func (m *memStore) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = nil
	m.ents = make(map[int64]models.Entity)
	return nil
}

func (m *memStore) UpsertEntities(_ context.Context, entities []models.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entities {
		if old, ok := m.ents[e.EntityID]; ok {
			old.AccessHash = e.AccessHash
			old.Username = e.Username
			old.Phone = e.Phone
			old.DisplayName = e.DisplayName
			m.ents[e.EntityID] = old
			continue
		}
		e.SessionID = m.id
		m.ents[e.EntityID] = e
	}
	return nil
}

func (m *memStore) Entity(_ context.Context, entityID int64) (*models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.ents[entityID]; ok {
		return &e, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) EntityByUsername(_ context.Context, username string) (*models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.ents {
		if e.Username == username {
			return &e, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// fakeClient — протокольный клиент со сценарием, заданным полями.
// Каждый вызов фиксируется в calls.
type fakeClient struct {
	mu        sync.Mutex
	connected bool
	calls     map[string]int

	connectErr error

	codeHash    string
	sendCodeErr error

	signInRes *SignInResult
	signInErr error

	passwordRes *SignInResult
	passwordErr error

	self    *models.Entity
	selfErr error

	resolveBatch PeerBatch
	resolveErr   error

	lookupBatch PeerBatch
	lookupErr   error

	contactsBatch PeerBatch
	contactsErr   error

	dialogsBatch PeerBatch
	dialogsErr   error

	sendErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{calls: make(map[string]int)}
}

func (f *fakeClient) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeClient) Connect(context.Context) error {
	f.record("connect")
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Disconnect(context.Context) error {
	f.record("disconnect")
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) SendCode(_ context.Context, _ string) (string, error) {
	f.record("sendCode")
	return f.codeHash, f.sendCodeErr
}

func (f *fakeClient) SignIn(_ context.Context, _, _, _ string) (*SignInResult, error) {
	f.record("signIn")
	return f.signInRes, f.signInErr
}

func (f *fakeClient) SignInPassword(_ context.Context, _ string) (*SignInResult, error) {
	f.record("signInPassword")
	return f.passwordRes, f.passwordErr
}

func (f *fakeClient) Self(context.Context) (*models.Entity, error) {
	f.record("self")
	return f.self, f.selfErr
}

func (f *fakeClient) ResolveUsername(_ context.Context, _ string) (PeerBatch, error) {
	f.record("resolveUsername")
	return f.resolveBatch, f.resolveErr
}

func (f *fakeClient) LookupID(_ context.Context, _ int64) (PeerBatch, error) {
	f.record("lookupID")
	return f.lookupBatch, f.lookupErr
}

func (f *fakeClient) Contacts(context.Context) (PeerBatch, error) {
	f.record("contacts")
	return f.contactsBatch, f.contactsErr
}

func (f *fakeClient) Dialogs(_ context.Context, _ int) (PeerBatch, error) {
	f.record("dialogs")
	return f.dialogsBatch, f.dialogsErr
}

func (f *fakeClient) SendMessage(_ context.Context, _ tg.InputPeerClass, _ string) error {
	f.record("sendMessage")
	return f.sendErr
}

// testEnv — реестр с фабриками поверх памяти и фейковых клиентов.
type testEnv struct {
	reg     *Registry
	stores  map[string]*memStore
	clients map[string]*fakeClient
	mu      sync.Mutex

	storeOpens int
}

func newTestEnv() *testEnv {
	env := &testEnv{
		stores:  make(map[string]*memStore),
		clients: make(map[string]*fakeClient),
	}
	storeFactory := func(_ context.Context, sessionID string) (SessionStore, error) {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.storeOpens++
		st, ok := env.stores[sessionID]
		if !ok {
			st = newMemStore(sessionID)
			env.stores[sessionID] = st
		}
		return st, nil
	}
	clientFactory := func(sessionID string, _ *SessionAdapter) (Client, error) {
		env.mu.Lock()
		defer env.mu.Unlock()
		cl, ok := env.clients[sessionID]
		if !ok {
			cl = newFakeClient()
			env.clients[sessionID] = cl
		}
		return cl, nil
	}
	env.reg = NewRegistry(storeFactory, clientFactory, 0)
	return env
}

// client подготавливает фейкового клиента сессии до первого обращения.
func (e *testEnv) client(sessionID string) *fakeClient {
	e.mu.Lock()
	defer e.mu.Unlock()
	cl, ok := e.clients[sessionID]
	if !ok {
		cl = newFakeClient()
		e.clients[sessionID] = cl
	}
	return cl
}

func (e *testEnv) store(sessionID string) *memStore {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.stores[sessionID]
	if !ok {
		st = newMemStore(sessionID)
		e.stores[sessionID] = st
	}
	return st
}

// fakeLister — источник сессий для восстановления.
type fakeLister struct {
	ids []string
	err error
}

func (l fakeLister) AuthorizedSessionIDs(context.Context) ([]string, error) {
	return l.ids, l.err
}

var errNetwork = errors.New("сеть недоступна")
