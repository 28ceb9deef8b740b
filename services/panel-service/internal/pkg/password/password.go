package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Hasher интерфейс для работы с паролями
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, stored string) bool
	NeedsRehash(stored string) bool
	Validate(password string) bool
	// Compare без результата для неизвестных пользователей, выравнивает время ответа
	DummyVerify(password string)
}

// Префиксы bcrypt хэшей, все остальное считается устаревшим SHA-256
var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// IsBcrypt проверяет, что хэш в формате bcrypt
func IsBcrypt(stored string) bool {
	for _, prefix := range bcryptPrefixes {
		if strings.HasPrefix(stored, prefix) {
			return true
		}
	}
	return false
}

// BcryptHasher реализация Hasher с использованием bcrypt и проверкой устаревших SHA-256 хэшей
type BcryptHasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewBcryptHasher создает новый BcryptHasher
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Cost возвращает целевую стоимость bcrypt
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash хеширует пароль с использованием bcrypt и новой солью
func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify проверяет пароль против bcrypt или устаревшего SHA-256 хэша
// Поврежденный bcrypt хэш дает false
func (h *BcryptHasher) Verify(password, stored string) bool {
	if stored == "" {
		return false
	}
	if IsBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(LegacyHash(password)), []byte(stored)) == 1
}

// NeedsRehash сообщает, что хэш нужно пересчитать при следующем успешном входе
func (h *BcryptHasher) NeedsRehash(stored string) bool {
	if !IsBcrypt(stored) {
		return true
	}
	cost, err := bcrypt.Cost([]byte(stored))
	if err != nil {
		return true
	}
	return cost < h.cost
}

// DummyVerify выполняет сравнение с заранее посчитанным хэшем
func (h *BcryptHasher) DummyVerify(password string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("panel-dummy-password"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}

// Validate проверяет сложность пароля
func (h *BcryptHasher) Validate(password string) bool {
	if len([]rune(password)) < 8 {
		return false
	}
	// bcrypt обрезает пароль после 72 байт
	if len(password) > 72 {
		return false
	}

	hasDigit := false
	hasUpper := false
	hasLower := false

	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		}
	}

	return hasDigit && hasUpper && hasLower
}

// LegacyHash возвращает SHA-256 hex дайджест пароля в старом формате
func LegacyHash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
