package domain

import (
	"errors"
	"fmt"
)

// ErrorKind — стабильный машиночитаемый тип ошибки для клиентов API.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation" // Ошибка клиента, мутаций не было
	KindNotFound   ErrorKind = "not_found"  // Агент/политика/заявка не найдены (или заявка уже решена)
	KindInternal   ErrorKind = "internal"   // Неожиданный сбой, детали только в логах
)

// Error — типизированная ошибка ядра.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func ValidationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFoundError(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InternalError оборачивает причину. Message уходит клиенту, Err: только в лог.
func InternalError(err error, message string) error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf возвращает тип ошибки. Любая нетипизированная ошибка считается внутренней.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage — то, что можно показать клиенту без утечки внутренностей.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
