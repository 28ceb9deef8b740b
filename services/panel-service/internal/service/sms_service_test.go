package service_test

import (
	"context"
	stderrors "errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"VerificarSmsPlatform/pkg/config"
	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/pkg/logger"
	"VerificarSmsPlatform/services/panel-service/internal/audit"
	"VerificarSmsPlatform/services/panel-service/internal/domain"
	"VerificarSmsPlatform/services/panel-service/internal/service"
)

type smsFixture struct {
	service       *service.SMSService
	holder        *config.Holder
	gateway       *MockGateway
	simulated     *MockGateway
	verifications *MockVerificationRepository
	audit         *capturePublisher
}

func setupSMSService(simulated bool) *smsFixture {
	cfg := config.Default()
	cfg.SMS.Simulated = simulated

	f := &smsFixture{
		holder:        config.NewHolder(cfg, ""),
		gateway:       &MockGateway{},
		simulated:     &MockGateway{},
		verifications: &MockVerificationRepository{},
		audit:         &capturePublisher{},
	}
	f.service = service.NewSMSService(f.holder, f.gateway, f.simulated, f.verifications, f.audit, logger.NewNop())
	return f
}

var ana = &domain.Session{Username: "ana", Role: "operador", UserID: 7}

func TestSMSService_Send(t *testing.T) {
	f := setupSMSService(false)
	ctx := context.Background()

	expected := "776 Limite Deportes 776 - DNI: 30123456 - Su Codigo es: 4821"
	f.gateway.On("Send", ctx, "1155551234", expected).Return("OK", nil)
	f.verifications.On("Save", ctx, mock.MatchedBy(func(v *domain.Verification) bool {
		return v.Status == domain.VerificationSent && v.UserID == 7 && v.VerificationCode == "4821"
	})).Return(nil)

	result, err := f.service.Send(ctx, ana, service.SendRequest{
		PersonID:         "30123456",
		PhoneNumber:      "1155551234",
		MerchantCode:     "776",
		VerificationCode: "4821",
	})
	require.NoError(t, err)
	assert.Equal(t, "SMS enviado correctamente", result.Message)
	assert.Equal(t, "4821", result.VerificationCode)
	assert.Equal(t, expected, result.SMSBody)
	assert.False(t, result.Simulated)
	assert.Equal(t, []string{audit.SMSSent}, f.audit.types())

	f.simulated.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	f.gateway.AssertExpectations(t)
	f.verifications.AssertExpectations(t)
}

func TestSMSService_SimulatedModeFollowsHolder(t *testing.T) {
	f := setupSMSService(false)
	ctx := context.Background()

	_, err := f.holder.Update(func(cfg *config.Config) { cfg.SMS.Simulated = true })
	require.NoError(t, err)

	f.simulated.On("Send", ctx, "1155551234", mock.Anything).Return("SMS simulado correctamente", nil)
	f.verifications.On("Save", ctx, mock.Anything).Return(nil)

	result, err := f.service.Send(ctx, ana, service.SendRequest{PersonID: "30123456", PhoneNumber: "1155551234", MerchantCode: "999"})
	require.NoError(t, err)
	assert.True(t, result.Simulated)
	assert.Contains(t, result.SMSBody, "999 Limite Deportes Sucursal desconocida - DNI: 30123456")

	code, err := strconv.Atoi(result.VerificationCode)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, code, 1000)
	assert.LessOrEqual(t, code, 9999)

	f.gateway.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestSMSService_GatewayFailure(t *testing.T) {
	f := setupSMSService(false)
	ctx := context.Background()

	f.gateway.On("Send", ctx, "1155551234", mock.Anything).Return("ERROR saldo", stderrors.New("sms gateway rejected message"))
	f.verifications.On("Save", ctx, mock.MatchedBy(func(v *domain.Verification) bool {
		return v.Status == domain.VerificationFailed && v.ErrorMessage != ""
	})).Return(nil)

	_, err := f.service.Send(ctx, ana, service.SendRequest{PersonID: "30123456", PhoneNumber: "1155551234", MerchantCode: "777"})
	require.Error(t, err)

	customErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrValidation, customErr.Code)
	assert.Equal(t, "ERROR saldo", customErr.Details)
	assert.Empty(t, f.audit.types())
}

func TestSMSService_SaveFailureDoesNotFailSend(t *testing.T) {
	f := setupSMSService(true)
	ctx := context.Background()

	f.simulated.On("Send", ctx, mock.Anything, mock.Anything).Return("ok", nil)
	f.verifications.On("Save", ctx, mock.Anything).Return(errors.Unavailable(stderrors.New("db down"), "verification"))

	_, err := f.service.Send(ctx, ana, service.SendRequest{PersonID: "30123456", PhoneNumber: "1155551234", MerchantCode: "778"})
	require.NoError(t, err)
}

func TestSendRequest_Validate(t *testing.T) {
	testCases := []struct {
		name  string
		req   service.SendRequest
		field string
	}{
		{"short person id", service.SendRequest{PersonID: "123", PhoneNumber: "1155551234", MerchantCode: "776"}, "personId"},
		{"long person id", service.SendRequest{PersonID: "1234567890123456", PhoneNumber: "1155551234", MerchantCode: "776"}, "personId"},
		{"short phone", service.SendRequest{PersonID: "30123456", PhoneNumber: "11555", MerchantCode: "776"}, "phoneNumber"},
		{"letters in phone", service.SendRequest{PersonID: "30123456", PhoneNumber: "11555abc34", MerchantCode: "776"}, "phoneNumber"},
		{"merchant code", service.SendRequest{PersonID: "30123456", PhoneNumber: "1155551234", MerchantCode: "7761"}, "merchantCode"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			customErr, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, errors.ErrValidation, customErr.Code)
			assert.Equal(t, tc.field, customErr.Details)
		})
	}

	ok := service.SendRequest{PersonID: " 30123456 ", PhoneNumber: "1155551234", MerchantCode: "781"}
	require.NoError(t, ok.Validate())
	assert.Equal(t, "30123456", ok.PersonID)
}

func TestComposeMessage(t *testing.T) {
	cfg := config.SMSConfig{Company: "Límite Deportes", Branches: map[string]string{"778": "Famaillá"}}
	req := service.SendRequest{PersonID: "30123456", MerchantCode: "778"}

	assert.Equal(t, "778 Limite Deportes Famailla - DNI: 30123456 - Su Codigo es: 1234", service.ComposeMessage(cfg, req, "1234"))
	assert.Equal(t, service.UnknownBranch, service.BranchName(cfg.Branches, "100"))
}
