package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
)

// Error представляет ошибку панели с кодом, деталями и, для лимитов, временем ожидания
type Error struct {
	Code       ErrorCode       `json:"code"`
	Message    string          `json:"message"`
	Details    string          `json:"details,omitempty"`
	RetryAfter int             `json:"retry_after,omitempty"`
	Cause      error           `json:"-"`
	Context    context.Context `json:"-"`
}

// ErrorCode представляет код ошибки
type ErrorCode string

// Общие коды ошибок
const (
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrValidation   ErrorCode = "VALIDATION_ERROR"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrForbidden    ErrorCode = "FORBIDDEN"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrConflict     ErrorCode = "CONFLICT"
)

// Коды подсистемы сессий и лимитов
const (
	ErrInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	ErrStoreUnavailable   ErrorCode = "STORE_UNAVAILABLE"
	ErrRateLimitExceeded  ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrPolicyNotFound     ErrorCode = "POLICY_NOT_FOUND"
	ErrIPBlocked          ErrorCode = "IP_BLOCKED"
)

// Error возвращает сообщение об ошибке
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap возвращает причину ошибки
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду
func (e *Error) Is(target error) bool {
	if targetError, ok := target.(*Error); ok {
		return e.Code == targetError.Code
	}
	return false
}

// New создает новую ошибку
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap оборачивает существующую ошибку
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// RateLimited создает ошибку превышения лимита с временем ожидания в секундах
func RateLimited(message string, retryAfter int) *Error {
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &Error{
		Code:       ErrRateLimitExceeded,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// Unavailable оборачивает сбой хранилища
func Unavailable(err error, component string) *Error {
	return &Error{
		Code:    ErrStoreUnavailable,
		Message: component + " store unavailable",
		Cause:   err,
	}
}

// WithDetails добавляет детали к ошибке
func (e *Error) WithDetails(details string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Details = details
	return &cp
}

// WithContext добавляет контекст к ошибке
func (e *Error) WithContext(ctx context.Context) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Context = ctx
	return &cp
}

// HasCode проверяет, содержит ли цепочка ошибок ошибку с указанным кодом
func HasCode(err error, code ErrorCode) bool {
	var target *Error
	for err != nil {
		if !stderrors.As(err, &target) {
			return false
		}
		if target.Code == code {
			return true
		}
		err = target.Cause
	}
	return false
}

// As извлекает *Error из цепочки
func As(err error) (*Error, bool) {
	var target *Error
	if stderrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// HTTPStatus возвращает соответствующий HTTP статус для ошибки
func (e *Error) HTTPStatus() int {
	if e == nil {
		return http.StatusOK
	}

	switch e.Code {
	case ErrNotFound, ErrPolicyNotFound:
		return http.StatusNotFound
	case ErrValidation:
		return http.StatusBadRequest
	case ErrUnauthorized, ErrInvalidCredentials, ErrSessionNotFound:
		return http.StatusUnauthorized
	case ErrForbidden, ErrIPBlocked:
		return http.StatusForbidden
	case ErrConflict:
		return http.StatusConflict
	case ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetUserMessage возвращает сообщение для пользователя панели (испанский)
// Для превышения лимита возвращается Message, так как оно уже содержит время ожидания
func (e *Error) GetUserMessage() string {
	if e == nil {
		return ""
	}

	if e.Context != nil {
		if localizedMsg, ok := e.Context.Value(localizedMessageKey{}).(string); ok {
			return localizedMsg
		}
	}

	switch e.Code {
	case ErrRateLimitExceeded:
		if e.Message != "" {
			return e.Message
		}
		return "Límite de solicitudes excedido."
	case ErrInvalidCredentials:
		return "Usuario o contraseña incorrectos"
	case ErrSessionNotFound, ErrUnauthorized:
		return "No autenticado"
	case ErrIPBlocked:
		return "Tu IP ha sido bloqueada debido a actividad sospechosa."
	case ErrStoreUnavailable:
		return "Servicio temporalmente no disponible. Intenta nuevamente en unos minutos."
	case ErrPolicyNotFound:
		return "Límite no configurado"
	case ErrNotFound:
		return "Recurso no encontrado"
	case ErrValidation:
		return "Datos inválidos"
	case ErrForbidden:
		return "Acceso denegado"
	case ErrConflict:
		return "Conflicto de datos"
	case ErrInternal:
		return "Error interno del servidor"
	default:
		return "Ocurrió un error"
	}
}

// WriteHTTP записывает ошибку в ответ в едином JSON формате
// Для RATE_LIMIT_EXCEEDED выставляет заголовок Retry-After
func WriteHTTP(w http.ResponseWriter, err error) {
	customErr, ok := As(err)
	if !ok {
		customErr = Wrap(err, ErrInternal, "internal error")
	}

	response := map[string]interface{}{
		"ok": false,
		"error": map[string]interface{}{
			"code":    customErr.Code,
			"message": customErr.GetUserMessage(),
			"details": customErr.Details,
		},
	}

	if customErr.Code == ErrRateLimitExceeded {
		w.Header().Set("Retry-After", strconv.Itoa(customErr.RetryAfter))
		response["retry_after"] = customErr.RetryAfter
		if customErr.Details != "" {
			response["retry_after_formatted"] = customErr.Details
		}
	}

	jsonData, jsonErr := json.Marshal(response)
	w.Header().Set("Content-Type", "application/json")
	if jsonErr != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"ok":false,"error":{"code":"INTERNAL_ERROR","message":"Error interno del servidor"}}`))
		return
	}

	w.WriteHeader(customErr.HTTPStatus())
	w.Write(jsonData)
}

// errorContextKey ключ для хранения ошибки в контексте
type errorContextKey struct{}

// localizedMessageKey ключ для локализованного сообщения
type localizedMessageKey struct{}

// WithError добавляет ошибку в контекст
func WithError(ctx context.Context, err *Error) context.Context {
	return context.WithValue(ctx, errorContextKey{}, err)
}

// GetError извлекает ошибку из контекста
func GetError(ctx context.Context) *Error {
	if err, ok := ctx.Value(errorContextKey{}).(*Error); ok {
		return err
	}
	return nil
}

// WithLocalizedMessage добавляет локализованное сообщение в контекст
func WithLocalizedMessage(ctx context.Context, localizedMessage string) context.Context {
	return context.WithValue(ctx, localizedMessageKey{}, localizedMessage)
}
