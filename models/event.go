package models

// MessageEvent — плоское описание входящего сообщения для вебхука.
// Подпись и доставка выполняются внешним сервисом, ядро только
// формирует это значение.
type MessageEvent struct {
	SessionID  string `json:"session_id"`  // Канал вебхука — идентификатор сессии
	PeerID     int64  `json:"peer_id"`     // Чат, в котором появилось сообщение
	PeerKind   string `json:"peer_kind"`   // user / group / channel
	SenderID   int64  `json:"sender_id"`   // Автор сообщения
	Text       string `json:"text"`        // Текст сообщения
	OwnerID    int64  `json:"owner_id"`    // Владелец сессии (user_id аккаунта)
}
