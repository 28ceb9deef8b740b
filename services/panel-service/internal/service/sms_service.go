package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"VerificarSmsPlatform/pkg/config"
	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/pkg/logger"
	"VerificarSmsPlatform/pkg/validation"
	"VerificarSmsPlatform/services/panel-service/internal/audit"
	"VerificarSmsPlatform/services/panel-service/internal/domain"
	"VerificarSmsPlatform/services/panel-service/internal/pkg/sms"
	"VerificarSmsPlatform/services/panel-service/internal/repository"
)

// UnknownBranch имя для кода филиала вне справочника
const UnknownBranch = "Sucursal desconocida"

// SendRequest запрос на отправку кода подтверждения
type SendRequest struct {
	PersonID         string `json:"personId"`
	PhoneNumber      string `json:"phoneNumber"`
	MerchantCode     string `json:"merchantCode"`
	VerificationCode string `json:"verificationCode,omitempty"`
}

// Validate проверяет длины полей запроса
func (r *SendRequest) Validate() error {
	r.PersonID = strings.TrimSpace(r.PersonID)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	r.MerchantCode = strings.TrimSpace(r.MerchantCode)
	r.VerificationCode = strings.TrimSpace(r.VerificationCode)

	v := validation.NewValidator()
	if err := v.ValidateStringLength(r.PersonID, "personId", 7, 15); err != nil {
		return err
	}
	if err := v.ValidateDigits(r.PhoneNumber, "phoneNumber", 10, 15); err != nil {
		return err
	}
	if err := v.ValidateStringLength(r.MerchantCode, "merchantCode", 3, 3); err != nil {
		return err
	}
	return v.ValidateStringLength(r.VerificationCode, "verificationCode", 0, 10)
}

// SendResult ответ на отправку кода
type SendResult struct {
	Message          string `json:"message"`
	VerificationCode string `json:"verificationCode"`
	PersonID         string `json:"personId"`
	MerchantCode     string `json:"merchantCode"`
	SMSBody          string `json:"smsBody"`
	Simulated        bool   `json:"modoSimulado"`
}

// SMSService формирует и отправляет коды подтверждения
type SMSService struct {
	settings      *config.Holder
	gateway       sms.Gateway
	simulated     sms.Gateway
	verifications repository.VerificationRepository
	audit         audit.Publisher
	log           logger.Logger
}

// NewSMSService создает новый экземпляр SMSService
// Режим симуляции выбирается по текущему снимку конфигурации при каждой отправке
func NewSMSService(
	settings *config.Holder,
	gateway sms.Gateway,
	simulated sms.Gateway,
	verifications repository.VerificationRepository,
	publisher audit.Publisher,
	log logger.Logger,
) *SMSService {
	if publisher == nil {
		publisher = audit.Nop{}
	}
	return &SMSService{
		settings:      settings,
		gateway:       gateway,
		simulated:     simulated,
		verifications: verifications,
		audit:         publisher,
		log:           log,
	}
}

// GenerateCode возвращает случайный четырехзначный код 1000-9999
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+1000), nil
}

// BranchName возвращает имя филиала по коду
func BranchName(branches map[string]string, code string) string {
	if name, ok := branches[code]; ok {
		return name
	}
	return UnknownBranch
}

// ComposeMessage собирает текст SMS в ASCII
func ComposeMessage(cfg config.SMSConfig, req SendRequest, code string) string {
	text := fmt.Sprintf("%s %s %s - DNI: %s - Su Codigo es: %s",
		req.MerchantCode, cfg.Company, BranchName(cfg.Branches, req.MerchantCode), req.PersonID, code)
	return sms.Normalize(text)
}

// Send отправляет код подтверждения от имени сотрудника
func (s *SMSService) Send(ctx context.Context, session *domain.Session, req SendRequest) (*SendResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	code := req.VerificationCode
	if code == "" {
		generated, err := GenerateCode()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrInternal, "failed to generate verification code")
		}
		code = generated
	}

	cfg := s.settings.Current().SMS
	message := ComposeMessage(cfg, req, code)

	gateway := s.gateway
	if cfg.Simulated {
		gateway = s.simulated
	}

	answer, sendErr := gateway.Send(ctx, req.PhoneNumber, message)

	record := &domain.Verification{
		PersonID:         req.PersonID,
		PhoneNumber:      req.PhoneNumber,
		MerchantCode:     req.MerchantCode,
		MerchantName:     BranchName(cfg.Branches, req.MerchantCode),
		VerificationCode: code,
		Status:           domain.VerificationSent,
		UserID:           session.UserID,
	}
	if sendErr != nil {
		record.Status = domain.VerificationFailed
		record.ErrorMessage = sendErr.Error()
	}
	if s.verifications != nil {
		if err := s.verifications.Save(ctx, record); err != nil {
			s.log.Error("Failed to save verification record", logger.CtxField(ctx), logger.Error(err))
		}
	}

	if sendErr != nil {
		s.log.Warn("SMS delivery failed",
			logger.CtxField(ctx),
			logger.String("username", session.Username),
			logger.String("merchant_code", req.MerchantCode),
			logger.String("answer", answer),
			logger.Error(sendErr))
		return nil, errors.Wrap(sendErr, errors.ErrValidation, "SMS delivery failed").WithDetails(answer)
	}

	s.log.Info("SMS sent",
		logger.CtxField(ctx),
		logger.String("username", session.Username),
		logger.String("merchant_code", req.MerchantCode),
		logger.Bool("simulated", cfg.Simulated))
	s.audit.Publish(ctx, audit.Event{
		Type:     audit.SMSSent,
		Username: session.Username,
		Details:  map[string]string{"merchant_code": req.MerchantCode, "person_id": req.PersonID},
	})

	return &SendResult{
		Message:          "SMS enviado correctamente",
		VerificationCode: code,
		PersonID:         req.PersonID,
		MerchantCode:     req.MerchantCode,
		SMSBody:          message,
		Simulated:        cfg.Simulated,
	}, nil
}
