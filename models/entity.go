package models

// Виды сущностей Telegram. Вид определяет форму адресации при отправке:
// пользователю и каналу нужен access_hash, обычной группе — только ID.
const (
	KindUser    = "user"
	KindGroup   = "group"
	KindChannel = "channel"
)

// Entity — закешированные сведения об одном собеседнике сессии.
// На пару (SessionID, EntityID) приходится не более одной записи,
// повторные появления сущности обновляют изменяемые поля.
type Entity struct {
	ID          int    `json:"id"`
	SessionID   string `json:"session_id"`
	EntityID    int64  `json:"entity_id"`
	AccessHash  int64  `json:"access_hash"`
	Username    string `json:"username"`
	Phone       string `json:"phone"`
	DisplayName string `json:"display_name"`
	Kind        string `json:"kind"`
}
