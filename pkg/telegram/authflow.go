package telegram

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
)

// loginStage — этап незавершённого входа.
type loginStage int

const (
	stageCode     loginStage = iota + 1 // Ждём код подтверждения
	stagePassword                       // Ждём пароль второго фактора
)

// pendingLogin — короткоживущая связка незавершённого входа. Живёт
// только в памяти процесса: после перезапуска вход начинается заново.
type pendingLogin struct {
	Phone    string
	CodeHash string
	Stage    loginStage
}

// StartOutcome — итог запроса кода.
type StartOutcome struct {
	AlreadyAuthorized bool   // Сессия уже залогинена, код не запрашивался
	CodeHash          string // Хеш кода для последующего подтверждения
}

// LoginFlow ведёт сессию по состояниям входа:
// аноним → код запрошен → (вход | нужен пароль) → авторизован.
// Невосстановимые сбои разбирают Handle, чтобы следующая попытка
// начиналась с чистого клиента; неверный пароль Handle сохраняет.
type LoginFlow struct {
	reg *Registry

	mu      sync.Mutex
	pending map[string]pendingLogin
}

func NewLoginFlow(reg *Registry) *LoginFlow {
	return &LoginFlow{reg: reg, pending: make(map[string]pendingLogin)}
}

func (f *LoginFlow) pendingFor(sessionID string) (pendingLogin, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pending[sessionID]
	return p, ok
}

func (f *LoginFlow) setPending(sessionID string, p pendingLogin) {
	f.mu.Lock()
	f.pending[sessionID] = p
	f.mu.Unlock()
}

func (f *LoginFlow) clearPending(sessionID string) {
	f.mu.Lock()
	delete(f.pending, sessionID)
	f.mu.Unlock()
}

// StartLogin запрашивает код подтверждения для номера. Для уже
// авторизованной сессии отвечает сразу, не обращаясь к сети.
func (f *LoginFlow) StartLogin(ctx context.Context, sessionID, phone string) (*StartOutcome, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" || strings.Trim(phone, "+0123456789 ") != "" {
		return nil, invalidInput("некорректный номер телефона %q", phone)
	}

	h, err := f.reg.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Авторитетный признак входа — сохранённый user_id. Сетевой вызов
	// здесь не нужен и не делается.
	if h.Adapter.UserID() != nil {
		log.Printf("[AUTH] сессия %s уже авторизована, код не запрашиваем", sessionID)
		return &StartOutcome{AlreadyAuthorized: true}, nil
	}

	if err := f.reg.EnsureConnected(ctx, sessionID); err != nil {
		return nil, err
	}

	opCtx, cancel := f.reg.opCtx(ctx)
	defer cancel()
	codeHash, err := h.Client.SendCode(opCtx, phone)
	if err != nil {
		// Неверный номер, флуд-бан и прочие сбои запроса кода
		// оставляют сессию без живого клиента.
		log.Printf("[AUTH] сессия %s: запрос кода не удался: %v", sessionID, err)
		f.reg.Disconnect(ctx, sessionID)
		f.clearPending(sessionID)
		if KindOf(err) != 0 {
			return nil, err
		}
		return nil, connectionFailed(err, "не удалось запросить код для сессии %s", sessionID)
	}

	f.setPending(sessionID, pendingLogin{Phone: phone, CodeHash: codeHash, Stage: stageCode})
	log.Printf("[AUTH] сессия %s: код отправлен на %s", sessionID, phone)
	return &StartOutcome{CodeHash: codeHash}, nil
}

// SubmitCode предъявляет код подтверждения. Требование второго фактора —
// не ошибка: состояние входа сохраняется, вызывающий получает
// SignInPasswordNeeded и продолжает через SubmitPassword.
func (f *LoginFlow) SubmitCode(ctx context.Context, sessionID, code string) (*SignInResult, error) {
	p, ok := f.pendingFor(sessionID)
	if !ok || p.Stage != stageCode {
		return nil, notFound("для сессии %s нет ожидающего кода, начните вход заново", sessionID)
	}

	h, err := f.reg.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := f.reg.EnsureConnected(ctx, sessionID); err != nil {
		return nil, err
	}

	opCtx, cancel := f.reg.opCtx(ctx)
	defer cancel()
	res, err := h.Client.SignIn(opCtx, p.Phone, code, p.CodeHash)
	if err != nil {
		// Неверный код невосстановим: следующая попытка начинается
		// с нового запроса кода на чистом клиенте.
		log.Printf("[AUTH] сессия %s: код отклонён: %v", sessionID, err)
		f.reg.Disconnect(ctx, sessionID)
		f.clearPending(sessionID)
		if KindOf(err) != 0 {
			return nil, err
		}
		return nil, connectionFailed(err, "не удалось подтвердить код для сессии %s", sessionID)
	}

	if res.Status == SignInPasswordNeeded {
		p.Stage = stagePassword
		f.setPending(sessionID, p)
		log.Printf("[AUTH] сессия %s: требуется пароль второго фактора", sessionID)
		return res, nil
	}

	if err := h.Adapter.SetUserID(ctx, res.User.EntityID); err != nil {
		return nil, err
	}
	f.clearPending(sessionID)
	log.Printf("[AUTH] сессия %s авторизована как %d", sessionID, res.User.EntityID)
	return res, nil
}

// SubmitPassword предъявляет пароль второго фактора. Неверный пароль не
// разбирает Handle: пользователь может попробовать ещё раз.
func (f *LoginFlow) SubmitPassword(ctx context.Context, sessionID, password string) (*SignInResult, error) {
	p, ok := f.pendingFor(sessionID)
	if !ok || p.Stage != stagePassword {
		return nil, notFound("сессия %s не ожидает пароль", sessionID)
	}

	h, err := f.reg.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := f.reg.EnsureConnected(ctx, sessionID); err != nil {
		return nil, err
	}

	opCtx, cancel := f.reg.opCtx(ctx)
	defer cancel()
	res, err := h.Client.SignInPassword(opCtx, password)
	if err != nil {
		log.Printf("[AUTH] сессия %s: пароль отклонён: %v", sessionID, err)
		var e *Error
		if errors.As(err, &e) && e.Kind == ErrorAuthRejected {
			// Пароль можно ввести повторно, клиент остаётся живым.
			e.Hint = AdviceRetry
			return nil, e
		}
		if KindOf(err) != 0 {
			return nil, err
		}
		return nil, connectionFailed(err, "не удалось проверить пароль для сессии %s", sessionID)
	}

	if err := h.Adapter.SetUserID(ctx, res.User.EntityID); err != nil {
		return nil, err
	}
	f.clearPending(sessionID)
	log.Printf("[AUTH] сессия %s авторизована как %d", sessionID, res.User.EntityID)
	return res, nil
}
