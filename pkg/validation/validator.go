package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"VerificarSmsPlatform/pkg/errors"
)

// Validator предоставляет общие функции валидации.
// Ошибки имеют код VALIDATION_ERROR, а в Details указано имя поля.
type Validator struct{}

// NewValidator создает новый Validator
func NewValidator() *Validator {
	return &Validator{}
}

func invalid(field, message string) *errors.Error {
	return errors.New(errors.ErrValidation, message).WithDetails(field)
}

// ValidateRequired проверяет, что значение не пустое
func (v *Validator) ValidateRequired(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(fieldName, fmt.Sprintf("%s is required", fieldName))
	}
	return nil
}

// ValidateStringLength проверяет длину строки в символах
func (v *Validator) ValidateStringLength(value, fieldName string, min, max int) error {
	length := len([]rune(value))
	if length < min {
		return invalid(fieldName, fmt.Sprintf("%s must be at least %d characters, got: %d", fieldName, min, length))
	}
	if length > max {
		return invalid(fieldName, fmt.Sprintf("%s must not exceed %d characters, got: %d", fieldName, max, length))
	}
	return nil
}

// ValidateDigits проверяет, что строка состоит только из цифр и укладывается в длину
func (v *Validator) ValidateDigits(value, fieldName string, min, max int) error {
	if err := v.ValidateStringLength(value, fieldName, min, max); err != nil {
		return err
	}
	for _, r := range value {
		if !unicode.IsDigit(r) {
			return invalid(fieldName, fmt.Sprintf("%s must contain only digits", fieldName))
		}
	}
	return nil
}

// ValidateEnum проверяет значение на соответствие enum
func (v *Validator) ValidateEnum(value string, allowedValues []string, fieldName string) error {
	if value == "" {
		return invalid(fieldName, fmt.Sprintf("%s is required", fieldName))
	}
	for _, allowed := range allowedValues {
		if value == allowed {
			return nil
		}
	}
	return invalid(fieldName, fmt.Sprintf("invalid %s: %s, allowed values: %v", fieldName, value, allowedValues))
}

// ValidateURL проверяет абсолютный URL с одной из разрешенных схем
func (v *Validator) ValidateURL(target, fieldName string, allowedSchemes []string) error {
	if target == "" {
		return invalid(fieldName, fmt.Sprintf("%s is required", fieldName))
	}

	parsedURL, err := url.Parse(target)
	if err != nil {
		return invalid(fieldName, fmt.Sprintf("invalid URL format: %v", err))
	}
	if parsedURL.Host == "" {
		return invalid(fieldName, fmt.Sprintf("%s must be an absolute URL", fieldName))
	}

	if len(allowedSchemes) > 0 {
		for _, scheme := range allowedSchemes {
			if parsedURL.Scheme == scheme {
				return nil
			}
		}
		return invalid(fieldName, fmt.Sprintf("URL must use one of allowed schemes %v, got: %s", allowedSchemes, parsedURL.Scheme))
	}
	return nil
}
