package telegram

import (
	"context"
	"log"
	"strconv"
	"strings"

	"github.com/gaigemini/telegram-hub/models"

	"github.com/gotd/td/tg"
)

// DialogScanLimit ограничивает число недавних диалогов, просматриваемых
// последней стратегией поиска.
const DialogScanLimit = 100

// Resolver ищет сущность по неоднозначной ссылке: числовому ID,
// @username или телефону. Стратегии пробуются по порядку до первого
// успеха: локальный кеш, разрешение username у Telegram, прямой запрос
// по числовому ID, перебор контактов, перебор недавних диалогов.
// Каждая сетевая находка сразу поглощается в кеш, поэтому повторный
// поиск той же ссылки обходится без сканирований.
type Resolver struct {
	reg *Registry
}

func NewResolver(reg *Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Resolve возвращает адресуемый peer для ссылки в рамках сессии.
func (r *Resolver) Resolve(ctx context.Context, sessionID, ref string) (tg.InputPeerClass, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, invalidInput("пустая ссылка на чат")
	}

	h, err := r.reg.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := r.reg.EnsureConnected(ctx, sessionID); err != nil {
		return nil, err
	}

	// Сначала локальный кеш: попадание не требует ни одного сетевого вызова.
	peer, err := h.Adapter.ResolveLocal(ctx, ref)
	if err == nil {
		return peer, nil
	}
	if KindOf(err) != ErrorNotFound {
		return nil, err
	}

	id, numeric := parseNumericRef(ref)

	if !numeric && !looksLikePhone(ref) {
		// Ссылка похожа на username — спрашиваем Telegram напрямую.
		if peer, ok := r.tryBatch(ctx, h, ref, func(opCtx context.Context) (PeerBatch, error) {
			return h.Client.ResolveUsername(opCtx, strings.TrimPrefix(ref, "@"))
		}); ok {
			return peer, nil
		}
	}

	if numeric {
		// Принудительный запрос по числовому ID.
		if peer, ok := r.tryBatch(ctx, h, ref, func(opCtx context.Context) (PeerBatch, error) {
			return h.Client.LookupID(opCtx, id)
		}); ok {
			return peer, nil
		}
	}

	// Линейный перебор списка контактов.
	if peer, ok := r.tryBatch(ctx, h, ref, func(opCtx context.Context) (PeerBatch, error) {
		return h.Client.Contacts(opCtx)
	}); ok {
		return peer, nil
	}

	// Последний шанс — ограниченный перебор недавних диалогов.
	if peer, ok := r.tryBatch(ctx, h, ref, func(opCtx context.Context) (PeerBatch, error) {
		return h.Client.Dialogs(opCtx, DialogScanLimit)
	}); ok {
		return peer, nil
	}

	return nil, notFound("сущность %q не найдена для сессии %s", ref, sessionID)
}

// tryBatch выполняет одну сетевую стратегию: получает пакет объектов,
// ищет в нём совпадение и при находке поглощает пакет в кеш перед
// возвратом. Сбой стратегии не прерывает поиск.
func (r *Resolver) tryBatch(ctx context.Context, h *Handle, ref string, fetch func(context.Context) (PeerBatch, error)) (tg.InputPeerClass, bool) {
	opCtx, cancel := r.reg.opCtx(ctx)
	defer cancel()

	batch, err := fetch(opCtx)
	if err != nil {
		log.Printf("[RESOLVER] сессия %s: стратегия для %q не сработала: %v", h.SessionID, ref, err)
		return nil, false
	}
	ent := matchInBatch(batch, ref)
	if ent == nil {
		return nil, false
	}
	if err := h.Adapter.Absorb(ctx, batch); err != nil {
		log.Printf("[RESOLVER] сессия %s: не удалось сохранить пакет сущностей: %v", h.SessionID, err)
		return nil, false
	}
	peer, err := inputPeer(ent)
	if err != nil {
		return nil, false
	}
	return peer, true
}

// matchInBatch ищет в пакете объект, соответствующий ссылке.
func matchInBatch(batch PeerBatch, ref string) *models.Entity {
	id, numeric := parseNumericRef(ref)
	username := strings.TrimPrefix(ref, "@")
	phone := normalizePhone(ref)

	for _, raw := range batch.Users {
		user, ok := raw.(*tg.User)
		if !ok {
			continue
		}
		switch {
		case numeric && user.ID == id,
			user.Username != "" && strings.EqualFold(user.Username, username),
			phone != "" && normalizePhone(user.Phone) == phone:
			return &models.Entity{
				EntityID:   user.ID,
				AccessHash: user.AccessHash,
				Username:   user.Username,
				Phone:      user.Phone,
				Kind:       models.KindUser,
			}
		}
	}
	for _, raw := range batch.Chats {
		switch chat := raw.(type) {
		case *tg.Chat:
			if numeric && chat.ID == id {
				return &models.Entity{EntityID: chat.ID, Kind: models.KindGroup}
			}
		case *tg.Channel:
			if (numeric && chat.ID == id) || (chat.Username != "" && strings.EqualFold(chat.Username, username)) {
				return &models.Entity{
					EntityID:   chat.ID,
					AccessHash: chat.AccessHash,
					Username:   chat.Username,
					Kind:       models.KindChannel,
				}
			}
		}
	}
	return nil
}

func parseNumericRef(ref string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(ref), 10, 64)
	return id, err == nil
}

// looksLikePhone отличает телефон от username: телефон начинается с '+'
// и состоит из цифр.
func looksLikePhone(ref string) bool {
	if !strings.HasPrefix(ref, "+") {
		return false
	}
	return strings.Trim(ref[1:], "0123456789 ") == ""
}

func normalizePhone(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" || strings.Trim(s, "0123456789") != "" {
		return ""
	}
	return s
}
