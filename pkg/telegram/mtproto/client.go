package mtproto

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"

	"github.com/gaigemini/telegram-hub/models"
	hub "github.com/gaigemini/telegram-hub/pkg/telegram"

	"golang.org/x/net/proxy"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

// Options — параметры сборки клиента одной сессии.
type Options struct {
	APIID     int
	APIHash   string
	SessionID string
	Adapter   *hub.SessionAdapter

	// SOCKS5-прокси для исходящих подключений; пустой адрес — без прокси.
	ProxyAddr     string
	ProxyLogin    string
	ProxyPassword string

	// OnMessage вызывается для каждого входящего сообщения; nil допустим.
	OnMessage func(models.MessageEvent)
}

// Client — реализация hub.Client поверх gotd/td. Подключение живёт в
// фоновой горутине с циклом Run; Connect ждёт готовности, Disconnect
// останавливает цикл и дожидается его завершения.
type Client struct {
	sessionID string
	adapter   *hub.SessionAdapter
	onMessage func(models.MessageEvent)

	tclient *telegram.Client
	api     *tg.Client

	mu        sync.Mutex
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewClient(o Options) (*Client, error) {
	if o.APIID == 0 || o.APIHash == "" {
		return nil, fmt.Errorf("не заданы api_id/api_hash")
	}
	if o.Adapter == nil {
		return nil, fmt.Errorf("клиенту нужен адаптер сессии")
	}

	c := &Client{
		sessionID: o.SessionID,
		adapter:   o.Adapter,
		onMessage: o.OnMessage,
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		return c.handleMessage(ctx, e, u.Message)
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		return c.handleMessage(ctx, e, u.Message)
	})

	opts := telegram.Options{
		SessionStorage: &adapterStorage{adapter: o.Adapter},
		UpdateHandler:  dispatcher,
	}
	if o.ProxyAddr != "" {
		var pauth *proxy.Auth
		if o.ProxyLogin != "" || o.ProxyPassword != "" {
			pauth = &proxy.Auth{User: o.ProxyLogin, Password: o.ProxyPassword}
		}
		d, err := proxy.SOCKS5("tcp", o.ProxyAddr, pauth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("proxy dialer: %w", err)
		}
		dialer, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("proxy dialer missing context")
		}
		opts.Resolver = dcs.Plain(dcs.PlainOptions{Dial: dialer.DialContext})
		log.Printf("[PROXY] сессия %s выходит через %s", o.SessionID, o.ProxyAddr)
	}

	c.tclient = telegram.NewClient(o.APIID, o.APIHash, opts)
	c.api = c.tclient.API()
	return c, nil
}

// Connect запускает фоновый цикл клиента и ждёт готовности подключения.
// Повторный вызов при живом подключении ничего не делает.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan struct{})
	errc := make(chan error, 1)

	go func() {
		defer close(done)
		errc <- c.tclient.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ctx.Done():
		cancel()
		<-done
		return classify(ctx.Err())
	case err := <-errc:
		cancel()
		return classify(err)
	case <-ready:
	}

	c.cancel = cancel
	c.done = done
	c.connected = true

	// Если цикл упадёт сам (сеть, отзыв ключа), помечаем клиента
	// отключённым, чтобы реестр переподключил его при следующем запросе.
	go func() {
		<-done
		c.mu.Lock()
		if c.done == done {
			c.connected = false
			c.cancel = nil
			c.done = nil
		}
		c.mu.Unlock()
	}()

	log.Printf("[MTPROTO] сессия %s подключена", c.sessionID)
	return nil
}

// Disconnect останавливает фоновый цикл и дожидается его выхода.
// Для отключённого клиента это no-op.
func (c *Client) Disconnect(_ context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.connected = false
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	log.Printf("[MTPROTO] сессия %s отключена", c.sessionID)
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendCode запрашивает код подтверждения для номера.
func (c *Client) SendCode(ctx context.Context, phone string) (string, error) {
	sentCode, err := c.tclient.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return "", classify(err)
	}
	sent, ok := sentCode.(*tg.AuthSentCode)
	if !ok {
		return "", fmt.Errorf("неожиданный тип ответа на запрос кода: %T", sentCode)
	}
	return sent.PhoneCodeHash, nil
}

// SignIn предъявляет код. Требование пароля — состояние результата.
func (c *Client) SignIn(ctx context.Context, phone, code, codeHash string) (*hub.SignInResult, error) {
	a, err := c.tclient.Auth().SignIn(ctx, phone, code, codeHash)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordAuthNeeded) {
			return &hub.SignInResult{Status: hub.SignInPasswordNeeded}, nil
		}
		return nil, classify(err)
	}
	return c.authorized(ctx, a)
}

// SignInPassword предъявляет пароль второго фактора.
func (c *Client) SignInPassword(ctx context.Context, password string) (*hub.SignInResult, error) {
	a, err := c.tclient.Auth().Password(ctx, password)
	if err != nil {
		return nil, classify(err)
	}
	return c.authorized(ctx, a)
}

// authorized превращает ответ Telegram об успешном входе в результат
// ядра и сразу кладёт собственную учётную запись в кеш сущностей.
func (c *Client) authorized(ctx context.Context, a *tg.AuthAuthorization) (*hub.SignInResult, error) {
	user, ok := a.User.(*tg.User)
	if !ok {
		return nil, fmt.Errorf("неожиданный тип пользователя: %T", a.User)
	}
	if err := c.adapter.Absorb(ctx, hub.PeerBatch{Users: []tg.UserClass{user}}); err != nil {
		log.Printf("[MTPROTO] сессия %s: не удалось закешировать себя: %v", c.sessionID, err)
	}
	return &hub.SignInResult{Status: hub.SignInAuthorized, User: userEntity(user)}, nil
}

// Self запрашивает собственную учётную запись сессии.
func (c *Client) Self(ctx context.Context) (*models.Entity, error) {
	user, err := c.tclient.Self(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return userEntity(user), nil
}

// ResolveUsername спрашивает Telegram про username и возвращает весь
// пакет объектов из ответа.
func (c *Client) ResolveUsername(ctx context.Context, username string) (hub.PeerBatch, error) {
	resolved, err := c.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return hub.PeerBatch{}, classify(err)
	}
	return hub.PeerBatch{Users: resolved.Users, Chats: resolved.Chats}, nil
}

// LookupID запрашивает пользователя по числовому ID без access hash.
// Срабатывает для ботов и уже знакомых аккаунтов.
func (c *Client) LookupID(ctx context.Context, id int64) (hub.PeerBatch, error) {
	users, err := c.api.UsersGetUsers(ctx, []tg.InputUserClass{&tg.InputUser{UserID: id}})
	if err != nil {
		return hub.PeerBatch{}, classify(err)
	}
	return hub.PeerBatch{Users: users}, nil
}

// Contacts возвращает список контактов аккаунта.
func (c *Client) Contacts(ctx context.Context) (hub.PeerBatch, error) {
	res, err := c.api.ContactsGetContacts(ctx, 0)
	if err != nil {
		return hub.PeerBatch{}, classify(err)
	}
	contacts, ok := res.(*tg.ContactsContacts)
	if !ok {
		// ContactsContactsNotModified без хеша не приходит, но на всякий
		// случай отвечаем пустым пакетом.
		return hub.PeerBatch{}, nil
	}
	return hub.PeerBatch{Users: contacts.Users}, nil
}

// Dialogs возвращает собеседников из недавних диалогов, не больше limit.
func (c *Client) Dialogs(ctx context.Context, limit int) (hub.PeerBatch, error) {
	res, err := c.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		Limit:      limit,
		OffsetPeer: &tg.InputPeerEmpty{},
	})
	if err != nil {
		return hub.PeerBatch{}, classify(err)
	}
	dialogs, ok := res.AsModified()
	if !ok {
		return hub.PeerBatch{}, nil
	}
	return hub.PeerBatch{Users: dialogs.GetUsers(), Chats: dialogs.GetChats()}, nil
}

// SendMessage отправляет текстовое сообщение адресату.
func (c *Client) SendMessage(ctx context.Context, peer tg.InputPeerClass, text string) error {
	_, err := c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: rand.Int63(),
	})
	return classify(err)
}

// handleMessage поглощает сущности из обновления и отдаёт событие
// входящего сообщения наружу.
func (c *Client) handleMessage(ctx context.Context, e tg.Entities, raw tg.MessageClass) error {
	batch := entitiesBatch(e)
	if !batch.Empty() {
		if err := c.adapter.Absorb(ctx, batch); err != nil {
			log.Printf("[MTPROTO] сессия %s: не удалось сохранить сущности обновления: %v", c.sessionID, err)
		}
	}

	msg, ok := raw.(*tg.Message)
	if !ok || c.onMessage == nil {
		return nil
	}
	if msg.Out {
		// Собственные исходящие сообщения вебхуку не нужны.
		return nil
	}

	event := models.MessageEvent{
		SessionID: c.sessionID,
		Text:      msg.Message,
	}
	switch peer := msg.PeerID.(type) {
	case *tg.PeerUser:
		event.PeerID = peer.UserID
		event.PeerKind = models.KindUser
	case *tg.PeerChat:
		event.PeerID = peer.ChatID
		event.PeerKind = models.KindGroup
	case *tg.PeerChannel:
		event.PeerID = peer.ChannelID
		event.PeerKind = models.KindChannel
	}
	if from, ok := msg.GetFromID(); ok {
		if u, ok := from.(*tg.PeerUser); ok {
			event.SenderID = u.UserID
		}
	} else if event.PeerKind == models.KindUser {
		// В личной переписке отправитель совпадает с собеседником.
		event.SenderID = event.PeerID
	}
	if owner := c.adapter.UserID(); owner != nil {
		event.OwnerID = *owner
	}

	c.onMessage(event)
	return nil
}

func entitiesBatch(e tg.Entities) hub.PeerBatch {
	var batch hub.PeerBatch
	for _, u := range e.Users {
		batch.Users = append(batch.Users, u)
	}
	for _, ch := range e.Chats {
		batch.Chats = append(batch.Chats, ch)
	}
	for _, ch := range e.Channels {
		batch.Chats = append(batch.Chats, ch)
	}
	return batch
}

func userEntity(user *tg.User) *models.Entity {
	return &models.Entity{
		EntityID:    user.ID,
		AccessHash:  user.AccessHash,
		Username:    user.Username,
		Phone:       user.Phone,
		DisplayName: strings.TrimSpace(user.FirstName + " " + user.LastName),
		Kind:        models.KindUser,
	}
}

// classify переводит ошибки Telegram в таксономию ядра. Неопознанные
// ошибки уходят как есть, реестр завернёт их при необходимости.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &hub.Error{Kind: hub.ErrorRateLimited, Message: "Telegram ограничил частоту запросов", RetryAfter: wait, Err: err}
	}
	switch {
	case tgerr.Is(err, "PHONE_NUMBER_INVALID", "PHONE_NUMBER_BANNED", "PHONE_NUMBER_FLOOD"):
		return &hub.Error{Kind: hub.ErrorInvalidInput, Message: "Telegram не принял номер телефона", Err: err}
	case tgerr.Is(err, "PHONE_CODE_INVALID", "PHONE_CODE_EXPIRED", "PHONE_CODE_EMPTY"):
		return &hub.Error{Kind: hub.ErrorAuthRejected, Message: "код подтверждения не принят", Err: err}
	case tgerr.Is(err, "PASSWORD_HASH_INVALID"):
		return &hub.Error{Kind: hub.ErrorAuthRejected, Message: "пароль не принят", Err: err}
	case tgerr.Is(err, "AUTH_KEY_UNREGISTERED", "AUTH_KEY_INVALID", "SESSION_REVOKED", "SESSION_EXPIRED", "USER_DEACTIVATED"):
		return &hub.Error{Kind: hub.ErrorAuthRejected, Message: "авторизация сессии отозвана", Err: err}
	case tgerr.Is(err, "USERNAME_NOT_OCCUPIED", "USERNAME_INVALID"):
		return &hub.Error{Kind: hub.ErrorNotFound, Message: "username не существует", Err: err}
	}
	return err
}
