package telegram

import (
	"context"
	"sync"
	"testing"
)

func TestGetOrCreateConcurrent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	const workers = 16
	handles := make([]*Handle, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := env.reg.GetOrCreate(ctx, "s1")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	// Все конкуренты обязаны получить один и тот же Handle,
	// хранилище открывается ровно один раз.
	for i := 1; i < workers; i++ {
		if handles[i] != handles[0] {
			t.Fatalf("конкурентные вызовы создали разные Handle")
		}
	}
	if env.storeOpens != 1 {
		t.Fatalf("хранилище открыто %d раз вместо одного", env.storeOpens)
	}
}

func TestEnsureConnectedWithoutHandle(t *testing.T) {
	env := newTestEnv()
	err := env.reg.EnsureConnected(context.Background(), "ghost")
	if KindOf(err) != ErrorNotFound {
		t.Fatalf("ожидалась ошибка ErrorNotFound, получено: %v", err)
	}
}

func TestEnsureConnectedFailureTearsDown(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.client("s1").connectErr = errNetwork

	if _, err := env.reg.GetOrCreate(ctx, "s1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	err := env.reg.EnsureConnected(ctx, "s1")
	if KindOf(err) != ErrorConnectionFailed {
		t.Fatalf("ожидалась ошибка ErrorConnectionFailed, получено: %v", err)
	}

	// Полуживой Handle не остаётся: запись убрана, хранилище закрыто.
	if env.reg.handle("s1") != nil {
		t.Fatalf("Handle пережил неудачное подключение")
	}
	if env.store("s1").closed == 0 {
		t.Fatalf("хранилище не закрыто при разборе Handle")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	if _, err := env.reg.GetOrCreate(ctx, "s1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := env.reg.EnsureConnected(ctx, "s1"); err != nil {
		t.Fatalf("EnsureConnected: %v", err)
	}

	env.reg.Disconnect(ctx, "s1")
	if env.reg.handle("s1") != nil {
		t.Fatalf("Handle не убран после Disconnect")
	}
	if env.client("s1").IsConnected() {
		t.Fatalf("клиент остался подключённым")
	}

	// Повторный и посторонний Disconnect — no-op без паники и ошибок.
	env.reg.Disconnect(ctx, "s1")
	env.reg.Disconnect(ctx, "никогда-не-существовала")
}

func TestIsAuthenticatedNeverFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	// Нет Handle — false.
	if env.reg.IsAuthenticated(ctx, "s1") {
		t.Fatalf("несуществующая сессия не может быть авторизована")
	}

	// Self с ошибкой — false, не ошибка.
	cl := env.client("s2")
	cl.selfErr = errNetwork
	if _, err := env.reg.GetOrCreate(ctx, "s2"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if env.reg.IsAuthenticated(ctx, "s2") {
		t.Fatalf("сбой проверки личности должен давать false")
	}

	// Успешный Self — true, подключение поднимается по пути.
	cl2 := env.client("s3")
	cl2.selfErr = nil
	if _, err := env.reg.GetOrCreate(ctx, "s3"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !env.reg.IsAuthenticated(ctx, "s3") {
		t.Fatalf("живая сессия должна считаться авторизованной")
	}
	if !cl2.IsConnected() {
		t.Fatalf("IsAuthenticated не поднял подключение")
	}
}

func TestDestroySessionWithoutHandle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	st := env.store("s1")
	a := newTestAdapter(t, st)
	if err := a.SetAuthKey(ctx, []byte{1}); err != nil {
		t.Fatalf("SetAuthKey: %v", err)
	}

	if err := env.reg.DestroySession(ctx, "s1"); err != nil {
		t.Fatalf("DestroySession: %v", err)
	}
	if st.rec != nil {
		t.Fatalf("запись сессии пережила уничтожение")
	}
}
