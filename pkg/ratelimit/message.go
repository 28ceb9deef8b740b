package ratelimit

import (
	"fmt"

	"VerificarSmsPlatform/pkg/errors"
)

const (
	messageIPBlocked = "Tu IP ha sido bloqueada debido a actividad sospechosa."
	messageSMS       = "Has alcanzado el límite de SMS permitidos. Límite: %d por %ds. Intenta nuevamente en %s."
	messageLogin     = "Demasiados intentos de login. Intenta nuevamente en %s."
	messageGeneric   = "Límite de solicitudes excedido. Por favor espera %s antes de intentar nuevamente."
)

// FormatRetryAfter форматирует секунды ожидания: "2 horas", "1 minuto", "30 segundos"
func FormatRetryAfter(seconds int) string {
	switch {
	case seconds >= 3600:
		return plural(seconds/3600, "hora")
	case seconds >= 60:
		return plural(seconds/60, "minuto")
	default:
		return plural(seconds, "segundo")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// RefusalMessage возвращает сообщение отказа для решения лимитера
func RefusalMessage(d Decision) string {
	wait := FormatRetryAfter(d.RetryAfter)
	switch {
	case d.Outcome == Blocked:
		return messageIPBlocked
	case d.Class.IsSMS():
		return fmt.Sprintf(messageSMS, d.Limit, int(d.Period.Seconds()), wait)
	case d.Class == ClassLogin:
		return fmt.Sprintf(messageLogin, wait)
	default:
		return fmt.Sprintf(messageGeneric, wait)
	}
}

// Err преобразует отказ в ошибку для HTTP ответа. Для Allowed возвращает nil.
func (d Decision) Err() *errors.Error {
	switch d.Outcome {
	case Exceeded:
		return errors.RateLimited(RefusalMessage(d), d.RetryAfter).
			WithDetails(FormatRetryAfter(d.RetryAfter))
	case Blocked:
		return errors.New(errors.ErrIPBlocked, messageIPBlocked)
	default:
		return nil
	}
}
