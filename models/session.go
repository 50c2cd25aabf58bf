package models

// Session хранит учётные данные подключения одного арендуемого аккаунта.
// AuthKey пустой, пока аккаунт не прошёл авторизацию; UserID заполняется
// только после успешного входа и служит признаком "аккаунт залогинен".
type Session struct {
	ID            int    `json:"id"`             // Уникальный идентификатор записи
	SessionID     string `json:"session_id"`     // Внешний ключ сессии, задаётся клиентом API
	DCID          int    `json:"dc_id"`          // Номер дата-центра Telegram
	ServerAddress string `json:"server_address"` // Адрес сервера дата-центра
	Port          int    `json:"port"`           // Порт сервера
	AuthKey       []byte `json:"-"`              // Ключ авторизации, в ответы API не попадает
	UserID        *int64 `json:"user_id"`        // ID пользователя Telegram после входа
}

// Authorized сообщает, считается ли сессия залогиненной.
// Признаком служит именно UserID: ключ может существовать и у
// недоавторизованной сессии (после привязки к дата-центру).
func (s *Session) Authorized() bool {
	return s != nil && s.UserID != nil
}
