package domain

import (
	"time"
)

// User представляет сотрудника панели
// Хэш пароля: bcrypt ($2a$, $2b$, $2y$) или устаревший SHA-256 hex
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"usuario"`
	PasswordHash string `json:"-"`
	Role         string `json:"rol"`
	Email        string `json:"email,omitempty"`
}

// Session представляет данные сессии, хранящиеся в Redis под ключом session:<token>
type Session struct {
	Username     string    `json:"usuario"`
	Role         string    `json:"rol"`
	UserID       int64     `json:"id"`
	Email        string    `json:"email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// SessionUpdate частичное обновление сессии, nil поля не меняются
type SessionUpdate struct {
	Username *string
	Role     *string
	Email    *string
}

// ActiveSession сессия с токеном и оставшимся временем жизни для админ-панели
type ActiveSession struct {
	Session
	Token      string `json:"session_id"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// Статусы отправки кода
const (
	VerificationSent   = "enviado"
	VerificationFailed = "fallido"
)

// Verification запись об отправленном коде подтверждения
type Verification struct {
	ID               int64     `json:"id"`
	PersonID         string    `json:"personId"`
	PhoneNumber      string    `json:"phoneNumber"`
	MerchantCode     string    `json:"merchantCode"`
	MerchantName     string    `json:"merchantName"`
	VerificationCode string    `json:"verificationCode"`
	Status           string    `json:"estado"`
	ErrorMessage     string    `json:"error_mensaje,omitempty"`
	UserID           int64     `json:"usuario_id"`
	SentAt           time.Time `json:"fecha"`
}

// VerificationTest статус отправки в тестовом режиме шлюза, считается успешной
const VerificationTest = "test"

// SentCounts количество отправленных кодов за все время, текущий месяц и сегодня
type SentCounts struct {
	Total int64 `json:"total_enviados"`
	Month int64 `json:"sms_mes_actual"`
	Today int64 `json:"sms_hoy"`
}

// BranchCount количество отправок по филиалу
type BranchCount struct {
	Branch string `json:"sucursal"`
	Total  int64  `json:"total"`
}

// DayCount количество отправок за день
type DayCount struct {
	Day   time.Time `json:"-"`
	Date  string    `json:"fecha"`
	Count int64     `json:"cantidad"`
}

// UsageStats сводка использования SMS
type UsageStats struct {
	SentCounts
	ByBranch []BranchCount `json:"sms_por_sucursal"`
	LastDays []DayCount    `json:"ultimos_7_dias"`
}

// UserCount количество отправок по пользователю
type UserCount struct {
	Username string `json:"usuario"`
	Total    int64  `json:"total"`
}

// StatusCounts количество отправок по результату
type StatusCounts struct {
	Succeeded int64 `json:"exitosos"`
	Failed    int64 `json:"fallidos"`
	Total     int64 `json:"total"`
}

// OutcomeRates результаты отправок с процентами
type OutcomeRates struct {
	StatusCounts
	SuccessRate float64 `json:"tasa_exito"`
	FailureRate float64 `json:"tasa_fallo"`
}

// HourCount количество отправок за час суток
type HourCount struct {
	Hour  int    `json:"-"`
	Label string `json:"hora"`
	Total int64  `json:"total"`
}

// VerificationMetrics метрики отправок для админ-панели
type VerificationMetrics struct {
	ByUser   []UserCount  `json:"sms_por_usuario"`
	Outcomes OutcomeRates `json:"tasa_exito_fallo"`
	ByHour   []HourCount  `json:"sms_por_hora"`
}
