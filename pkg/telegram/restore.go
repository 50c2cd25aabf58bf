package telegram

import (
	"context"
	"log"
)

// RestoreAll восстанавливает живые подключения для всех сессий с
// сохранённой авторизацией. Сессия считается восстановленной, только
// если подключение поднялось и Telegram подтвердил личность; любой сбой
// разбирает Handle, но запись в базе остаётся для ручного повтора.
// Возвращает число подключённых и проверенных сессий.
func RestoreAll(ctx context.Context, lister SessionLister, reg *Registry) (int, error) {
	ids, err := lister.AuthorizedSessionIDs(ctx)
	if err != nil {
		return 0, storageUnavailable(err)
	}
	if len(ids) == 0 {
		log.Printf("[RESTORE] авторизованных сессий нет")
		return 0, nil
	}

	restored := 0
	for _, id := range ids {
		if _, err := reg.GetOrCreate(ctx, id); err != nil {
			log.Printf("[RESTORE] сессия %s: клиент не создан: %v", id, err)
			continue
		}
		if err := reg.EnsureConnected(ctx, id); err != nil {
			// EnsureConnected уже разобрал Handle.
			log.Printf("[RESTORE] сессия %s: подключение не удалось: %v", id, err)
			continue
		}

		h := reg.handle(id)
		if h == nil {
			continue
		}
		opCtx, cancel := reg.opCtx(ctx)
		_, err := h.Client.Self(opCtx)
		cancel()
		if err != nil {
			// Ключ отозван либо сеть подвела: живой сессии нет.
			log.Printf("[RESTORE] сессия %s: личность не подтверждена: %v", id, err)
			reg.Disconnect(ctx, id)
			continue
		}

		restored++
		log.Printf("[RESTORE] сессия %s восстановлена", id)
	}

	log.Printf("[RESTORE] восстановлено %d из %d сессий", restored, len(ids))
	return restored, nil
}
