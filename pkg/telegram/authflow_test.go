package telegram

import (
	"context"
	"testing"

	"github.com/gaigemini/telegram-hub/models"
)

func TestStartLoginAlreadyAuthorizedSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	flow := NewLoginFlow(env.reg)

	// Сессия уже авторизована в хранилище.
	st := env.store("s1")
	userID := int64(42)
	st.rec = &models.Session{SessionID: "s1", AuthKey: []byte{1}, UserID: &userID}

	out, err := flow.StartLogin(ctx, "s1", "+79990001122")
	if err != nil {
		t.Fatalf("StartLogin: %v", err)
	}
	if !out.AlreadyAuthorized {
		t.Fatalf("ожидался ответ 'уже авторизована'")
	}
	cl := env.client("s1")
	if cl.callCount("sendCode") != 0 || cl.callCount("connect") != 0 {
		t.Fatalf("для авторизованной сессии не должно быть сетевых вызовов: %v", cl.calls)
	}
}

func TestStartLoginRejectsMalformedPhone(t *testing.T) {
	env := newTestEnv()
	flow := NewLoginFlow(env.reg)
	_, err := flow.StartLogin(context.Background(), "s1", "не телефон")
	if KindOf(err) != ErrorInvalidInput {
		t.Fatalf("ожидалась ошибка ErrorInvalidInput, получено: %v", err)
	}
}

func TestStartLoginFailureLeavesNoHandle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	flow := NewLoginFlow(env.reg)
	env.client("s1").sendCodeErr = invalidInput("Telegram не принял номер телефона")

	_, err := flow.StartLogin(ctx, "s1", "+79990001122")
	if KindOf(err) != ErrorInvalidInput {
		t.Fatalf("ожидалась ошибка ErrorInvalidInput, получено: %v", err)
	}
	if env.reg.handle("s1") != nil {
		t.Fatalf("после неудачного запроса кода Handle должен быть разобран")
	}
}

func TestSubmitCodeWithoutPending(t *testing.T) {
	env := newTestEnv()
	flow := NewLoginFlow(env.reg)
	_, err := flow.SubmitCode(context.Background(), "s1", "12345")
	if KindOf(err) != ErrorNotFound {
		t.Fatalf("код без запроса должен давать ErrorNotFound, получено: %v", err)
	}
}

func TestSubmitCodeSuccess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	flow := NewLoginFlow(env.reg)

	cl := env.client("s1")
	cl.codeHash = "hash123"
	cl.signInRes = &SignInResult{Status: SignInAuthorized, User: &models.Entity{EntityID: 42, Kind: models.KindUser}}

	if _, err := flow.StartLogin(ctx, "s1", "+79990001122"); err != nil {
		t.Fatalf("StartLogin: %v", err)
	}
	res, err := flow.SubmitCode(ctx, "s1", "12345")
	if err != nil {
		t.Fatalf("SubmitCode: %v", err)
	}
	if res.Status != SignInAuthorized {
		t.Fatalf("ожидался успешный вход, получено: %v", res.Status)
	}

	// Личность сохранена, короткоживущая связка очищена.
	h := env.reg.handle("s1")
	if h == nil || h.Adapter.UserID() == nil || *h.Adapter.UserID() != 42 {
		t.Fatalf("user_id не сохранён после входа")
	}
	if _, ok := flow.pendingFor("s1"); ok {
		t.Fatalf("pending не очищен после входа")
	}
}

func TestSubmitCodeRejectedTearsDown(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	flow := NewLoginFlow(env.reg)

	cl := env.client("s1")
	cl.codeHash = "hash123"
	cl.signInErr = authRejected(nil, "код подтверждения не принят")

	if _, err := flow.StartLogin(ctx, "s1", "+79990001122"); err != nil {
		t.Fatalf("StartLogin: %v", err)
	}
	_, err := flow.SubmitCode(ctx, "s1", "00000")
	if KindOf(err) != ErrorAuthRejected {
		t.Fatalf("ожидалась ошибка ErrorAuthRejected, получено: %v", err)
	}
	if env.reg.handle("s1") != nil {
		t.Fatalf("неверный код должен разбирать Handle")
	}
	if _, ok := flow.pendingFor("s1"); ok {
		t.Fatalf("pending должен быть очищен после неверного кода")
	}
}

func TestSecondFactorFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	flow := NewLoginFlow(env.reg)

	cl := env.client("s1")
	cl.codeHash = "hash123"
	cl.signInRes = &SignInResult{Status: SignInPasswordNeeded}

	if _, err := flow.StartLogin(ctx, "s1", "+79990001122"); err != nil {
		t.Fatalf("StartLogin: %v", err)
	}
	res, err := flow.SubmitCode(ctx, "s1", "12345")
	if err != nil {
		t.Fatalf("SubmitCode: %v", err)
	}
	if res.Status != SignInPasswordNeeded {
		t.Fatalf("ожидалось требование пароля")
	}
	// Handle и связка сохраняются до предъявления пароля.
	if env.reg.handle("s1") == nil {
		t.Fatalf("Handle разобран при требовании второго фактора")
	}

	// Неверный пароль: Handle остаётся, рекомендация — повторить шаг.
	cl.passwordErr = authRejected(nil, "пароль не принят")
	_, err = flow.SubmitPassword(ctx, "s1", "wrong")
	coreErr, ok := err.(*Error)
	if !ok || coreErr.Kind != ErrorAuthRejected || coreErr.Advice() != AdviceRetry {
		t.Fatalf("ожидался ErrorAuthRejected с рекомендацией retry, получено: %v", err)
	}
	if env.reg.handle("s1") == nil {
		t.Fatalf("неверный пароль не должен разбирать Handle")
	}

	// Верный пароль завершает вход.
	cl.passwordErr = nil
	cl.passwordRes = &SignInResult{Status: SignInAuthorized, User: &models.Entity{EntityID: 42, Kind: models.KindUser}}
	res, err = flow.SubmitPassword(ctx, "s1", "correct")
	if err != nil {
		t.Fatalf("SubmitPassword: %v", err)
	}
	if res.Status != SignInAuthorized {
		t.Fatalf("ожидался успешный вход")
	}
	if _, ok := flow.pendingFor("s1"); ok {
		t.Fatalf("pending не очищен после входа")
	}
}

func TestSubmitPasswordWithoutSecondFactorState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	flow := NewLoginFlow(env.reg)

	cl := env.client("s1")
	cl.codeHash = "hash123"
	if _, err := flow.StartLogin(ctx, "s1", "+79990001122"); err != nil {
		t.Fatalf("StartLogin: %v", err)
	}

	// Пароль до кода — нарушение порядка состояний.
	_, err := flow.SubmitPassword(ctx, "s1", "pass")
	if KindOf(err) != ErrorNotFound {
		t.Fatalf("ожидалась ошибка ErrorNotFound, получено: %v", err)
	}
}
