// Package telegram содержит ядро хаба: хранение учётных данных сессий,
// реестр живых клиентов, машину состояний авторизации, восстановление
// сессий при старте и поиск сущностей. Сам протокольный клиент
// подключается через узкий интерфейс Client и живёт в подпакете mtproto.
package telegram

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind классифицирует ошибки ядра для слоя HTTP-обработчиков.
type ErrorKind int

const (
	ErrorInvalidInput ErrorKind = iota + 1 // Некорректный телефон или ссылка на чат
	ErrorRateLimited                       // Telegram попросил подождать (FLOOD_WAIT)
	ErrorAuthRejected                      // Неверный код либо пароль
	ErrorNotFound                          // Сессия или сущность отсутствует
	ErrorStorageUnavailable                // База недоступна даже после повторной попытки
	ErrorConnectionFailed                  // Сетевое подключение к Telegram не удалось
)

// Advice подсказывает пользователю, что делать после ошибки.
type Advice string

const (
	AdviceRetry        Advice = "retry"         // Повторить тот же шаг
	AdviceRestartLogin Advice = "restart_login" // Начать вход заново
	AdviceFatal        Advice = "fatal"         // Без ручного вмешательства не обойтись
)

// Error — структурированная ошибка ядра. Наружу уходит вид, человекочитаемое
// сообщение и рекомендация; сырые трассировки через эту границу не проходят.
type Error struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration // Для ErrorRateLimited — сколько ждать
	Hint       Advice        // Пустое значение — рекомендация по виду ошибки
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Advice возвращает рекомендацию: явную, если она задана, иначе по виду.
func (e *Error) Advice() Advice {
	if e.Hint != "" {
		return e.Hint
	}
	switch e.Kind {
	case ErrorRateLimited, ErrorStorageUnavailable, ErrorConnectionFailed:
		return AdviceRetry
	case ErrorInvalidInput, ErrorAuthRejected:
		return AdviceRestartLogin
	default:
		return AdviceFatal
	}
}

// KindOf извлекает вид ошибки; для нетипизированных ошибок возвращает 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func invalidInput(format string, args ...any) *Error {
	return newError(ErrorInvalidInput, nil, format, args...)
}

func notFound(format string, args ...any) *Error {
	return newError(ErrorNotFound, nil, format, args...)
}

func authRejected(err error, format string, args ...any) *Error {
	return newError(ErrorAuthRejected, err, format, args...)
}

func rateLimited(wait time.Duration, err error) *Error {
	e := newError(ErrorRateLimited, err, "Telegram ограничил частоту запросов")
	e.RetryAfter = wait
	return e
}

func storageUnavailable(err error) *Error {
	return newError(ErrorStorageUnavailable, err, "хранилище сессий недоступно")
}

func connectionFailed(err error, format string, args ...any) *Error {
	return newError(ErrorConnectionFailed, err, format, args...)
}
