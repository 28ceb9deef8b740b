package ratelimit

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"VerificarSmsPlatform/pkg/errors"
)

// EndpointClass именованная категория эндпоинтов с общим лимитом
type EndpointClass string

const (
	ClassSMSSend       EndpointClass = "sms_enviar"
	ClassSMSHourly     EndpointClass = "sms_enviar_por_hora"
	ClassSMSDaily      EndpointClass = "sms_enviar_por_dia"
	ClassLogin         EndpointClass = "login_intentos"
	ClassPasswordReset EndpointClass = "password_reset"
	ClassAPIGeneral    EndpointClass = "api_general"
	ClassQueries       EndpointClass = "consultas"
)

// DefaultClass применяется к классам без собственной политики
const DefaultClass = ClassAPIGeneral

var knownClasses = []EndpointClass{
	ClassSMSSend,
	ClassSMSHourly,
	ClassSMSDaily,
	ClassLogin,
	ClassPasswordReset,
	ClassAPIGeneral,
	ClassQueries,
}

// Classes возвращает все известные классы эндпоинтов
func Classes() []EndpointClass {
	return append([]EndpointClass(nil), knownClasses...)
}

// ParseEndpointClass разбирает имя класса, пришедшее извне (админ API, CLI, конфигурация)
func ParseEndpointClass(name string) (EndpointClass, error) {
	for _, c := range knownClasses {
		if string(c) == name {
			return c, nil
		}
	}
	return "", errors.New(errors.ErrPolicyNotFound, fmt.Sprintf("unknown endpoint class %q", name))
}

// IsSMS сообщает, относится ли класс к отправке SMS
func (c EndpointClass) IsSMS() bool {
	return c == ClassSMSSend || c == ClassSMSHourly || c == ClassSMSDaily
}

// Policy лимит для класса эндпоинтов
type Policy struct {
	Class       EndpointClass `json:"endpoint"`
	Limit       int           `json:"limit"`
	Period      time.Duration `json:"-"`
	Description string        `json:"description"`
}

// PeriodSeconds возвращает длину окна в секундах
func (p Policy) PeriodSeconds() int {
	return int(p.Period / time.Second)
}

// MarshalJSON кодирует период в секундах
func (p Policy) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Class       EndpointClass `json:"endpoint"`
		Limit       int           `json:"limit"`
		Period      int           `json:"period"`
		Description string        `json:"description"`
	}{p.Class, p.Limit, p.PeriodSeconds(), p.Description})
}

// Policies набор политик по классам
type Policies map[EndpointClass]Policy

// DefaultPolicies возвращает политики по умолчанию
func DefaultPolicies() Policies {
	return Policies{
		ClassSMSSend:       {ClassSMSSend, 5, time.Minute, "Envío de SMS de verificación"},
		ClassSMSHourly:     {ClassSMSHourly, 30, time.Hour, "Límite por hora para SMS"},
		ClassSMSDaily:      {ClassSMSDaily, 200, 24 * time.Hour, "Límite diario para SMS"},
		ClassLogin:         {ClassLogin, 5, 5 * time.Minute, "Intentos de login"},
		ClassPasswordReset: {ClassPasswordReset, 3, time.Hour, "Recuperación de contraseña"},
		ClassAPIGeneral:    {ClassAPIGeneral, 100, time.Minute, "API general"},
		ClassQueries:       {ClassQueries, 30, time.Minute, "Consultas de datos"},
	}
}

// Resolve возвращает политику класса. Если политики нет, возвращается политика DefaultClass и false.
func (p Policies) Resolve(class EndpointClass) (Policy, bool) {
	if policy, ok := p[class]; ok {
		return policy, true
	}
	fallback, ok := p[DefaultClass]
	if !ok {
		fallback = DefaultPolicies()[DefaultClass]
	}
	fallback.Class = class
	return fallback, false
}

// Sorted возвращает политики в порядке имен классов
func (p Policies) Sorted() []Policy {
	result := make([]Policy, 0, len(p))
	for _, policy := range p {
		result = append(result, policy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Class < result[j].Class })
	return result
}

// Role роль пользователя панели
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operador"
	RoleGuest    Role = "guest"
)

// ParseRole нормализует имя роли
func ParseRole(name string) Role {
	return Role(strings.ToLower(strings.TrimSpace(name)))
}

// RoleMultipliers множители лимита по ролям. Default применяется к ролям без записи в Overrides.
type RoleMultipliers struct {
	Default   float64          `json:"default"`
	Overrides map[Role]float64 `json:"overrides"`
}

// DefaultMultipliers возвращает множители по умолчанию
func DefaultMultipliers() RoleMultipliers {
	return RoleMultipliers{
		Default: 1.0,
		Overrides: map[Role]float64{
			RoleAdmin:    3.0,
			RoleOperator: 1.0,
			RoleGuest:    0.3,
		},
	}
}

// For возвращает множитель роли
func (m RoleMultipliers) For(role Role) float64 {
	if v, ok := m.Overrides[role]; ok {
		return v
	}
	if m.Default <= 0 {
		return 1.0
	}
	return m.Default
}

// EffectiveLimit применяет множитель: floor(limit * multiplier), но не меньше 1
func EffectiveLimit(limit int, multiplier float64) int {
	// эпсилон гасит ошибку представления множителей вроде 0.3
	effective := int(math.Floor(float64(limit)*multiplier + 1e-9))
	if effective < 1 {
		return 1
	}
	return effective
}
