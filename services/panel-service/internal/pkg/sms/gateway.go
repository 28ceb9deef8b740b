package sms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"VerificarSmsPlatform/pkg/config"
	"VerificarSmsPlatform/pkg/logger"
)

// Gateway отправляет текст SMS на номер и возвращает ответ провайдера
type Gateway interface {
	Send(ctx context.Context, phone, text string) (string, error)
}

// SimulatedGateway только пишет сообщение в лог
type SimulatedGateway struct {
	log logger.Logger
}

// NewSimulatedGateway создает шлюз для режима симуляции
func NewSimulatedGateway(log logger.Logger) *SimulatedGateway {
	return &SimulatedGateway{log: log}
}

// Send логирует сообщение вместо отправки
func (g *SimulatedGateway) Send(ctx context.Context, phone, text string) (string, error) {
	g.log.Info("Simulated SMS", logger.CtxField(ctx), logger.String("phone", phone), logger.String("text", text))
	return "SMS simulado correctamente", nil
}

// HTTPGateway отправляет SMS через HTTP API провайдера
// Настройки читаются при каждом вызове, чтобы учитывать перезагрузку конфигурации
type HTTPGateway struct {
	client   *http.Client
	settings func() config.SMSConfig
}

// NewHTTPGateway создает HTTP шлюз
func NewHTTPGateway(client *http.Client, settings func() config.SMSConfig) *HTTPGateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPGateway{client: client, settings: settings}
}

// Send вызывает API провайдера, ответ без "OK" считается ошибкой
func (g *HTTPGateway) Send(ctx context.Context, phone, text string) (string, error) {
	cfg := g.settings()
	if cfg.APIURL == "" {
		return "", fmt.Errorf("sms api url is not configured")
	}

	timeout := config.Duration(cfg.Timeout, 10*time.Second)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := url.Values{}
	params.Set("api", "1")
	params.Set("apikey", cfg.APIKey)
	params.Set("TOS", phone)
	params.Set("TEXTO", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.APIURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build sms request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read sms gateway response: %w", err)
	}
	answer := strings.TrimSpace(string(body))

	if resp.StatusCode >= http.StatusBadRequest {
		return answer, fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	if !strings.Contains(strings.ToUpper(answer), "OK") {
		return answer, fmt.Errorf("sms gateway rejected message: %s", answer)
	}
	return answer, nil
}

// Normalize убирает диакритику и все символы вне ASCII
func Normalize(text string) string {
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
	)
	result, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return result
}
