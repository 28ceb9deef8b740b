package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"VerificarSmsPlatform/pkg/config"
	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/pkg/logger"
	"VerificarSmsPlatform/pkg/ratelimit"
	"VerificarSmsPlatform/pkg/validation"
	"VerificarSmsPlatform/services/panel-service/internal/audit"
	"VerificarSmsPlatform/services/panel-service/internal/middleware"
)

// actor возвращает имя администратора текущего запроса
func actor(r *http.Request) string {
	if session, _, ok := middleware.SessionFromContext(r.Context()); ok {
		return session.Username
	}
	return ""
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.auth.ListSessions(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.SetActiveSessions(len(sessions))
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"total":    len(sessions),
		"sessions": sessions,
	})
}

func (h *Handler) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.RevokeSession(r.Context(), actor(r), r.PathValue("token")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"mensaje": "Sesión cerrada correctamente",
	})
}

func (h *Handler) handleRevokeUser(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	deleted, err := h.auth.RevokeUser(r.Context(), actor(r), username)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":            true,
		"mensaje":       fmt.Sprintf("Sesiones cerradas para %s: %d", username, deleted),
		"deleted_count": deleted,
	})
}

func (h *Handler) handleLimitsConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"enabled":     h.settings.Current().RateLimiting.Enabled,
		"fail_open":   h.limits.FailOpen(),
		"policies":    h.limits.Policies(),
		"multipliers": h.limits.Multipliers(),
		"whitelist":   h.limits.Whitelist(),
		"blacklist":   h.limits.Blacklist(),
	})
}

func (h *Handler) handleLimitsRoles(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"multipliers": h.limits.Multipliers(),
		"description": "Multiplicadores aplicados a los límites base según rol del usuario",
	})
}

func (h *Handler) handleLimitsActive(w http.ResponseWriter, r *http.Request) {
	limits, err := h.limits.ListActive(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"total":  len(limits),
		"limits": limits,
	})
}

func (h *Handler) handleLimitsStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.limits.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":                  true,
		"total_active_limits": stats.TotalActive,
		"by_type":             stats.ByClass,
	})
}

func (h *Handler) handleLimitStatus(w http.ResponseWriter, r *http.Request) {
	class, err := ratelimit.ParseEndpointClass(r.PathValue("class"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status, err := h.limits.Status(r.Context(), r.PathValue("identifier"), class)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"status": status,
	})
}

type resetRequest struct {
	Identifier string `json:"identifier"`
	LimitKey   string `json:"limit_key"`
}

func (h *Handler) handleLimitReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Identifier = strings.TrimSpace(req.Identifier)
	if err := validation.NewValidator().ValidateRequired(req.Identifier, "identifier"); err != nil {
		h.writeError(w, r, err)
		return
	}
	class, err := ratelimit.ParseEndpointClass(req.LimitKey)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.limits.Reset(r.Context(), req.Identifier, class); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.audit.Publish(r.Context(), audit.Event{
		Type:     audit.RateLimitReset,
		Username: actor(r),
		Details:  map[string]string{"identifier": req.Identifier, "class": string(class)},
	})
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"mensaje": fmt.Sprintf("Rate limit reseteado: %s - %s", req.Identifier, class),
	})
}

func (h *Handler) handleLimitsClearAll(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.limits.ClearAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.audit.Publish(r.Context(), audit.Event{
		Type:     audit.RateLimitReset,
		Username: actor(r),
		Details:  map[string]string{"scope": "all", "deleted": strconv.Itoa(deleted)},
	})
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":            true,
		"mensaje":       fmt.Sprintf("Rate limits eliminados: %d", deleted),
		"deleted_count": deleted,
	})
}

func (h *Handler) handleRedisStatus(w http.ResponseWriter, r *http.Request) {
	if h.redis == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      false,
			"message": "Redis no configurado",
		})
		return
	}
	info := h.redis.Info(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    info.Connected,
		"redis": info,
	})
}

// settingsView настройки, видимые администратору; ключ шлюза не раскрывается
func settingsView(cfg *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"ok":                    true,
		"environment":           cfg.Environment,
		"modoSimulado":          cfg.SMS.Simulated,
		"company":               cfg.SMS.Company,
		"branches":              cfg.SMS.Branches,
		"api_key_configured":    cfg.SMS.APIKey != "",
		"rate_limiting_enabled": cfg.RateLimiting.Enabled,
		"session_duration":      cfg.Session.Duration,
	}
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, settingsView(h.settings.Current()))
}

type smsModeRequest struct {
	Simulated *bool `json:"modoSimulado"`
}

func (h *Handler) handleSetSMSMode(w http.ResponseWriter, r *http.Request) {
	var req smsModeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Simulated == nil {
		h.writeError(w, r, errors.New(errors.ErrValidation, "modoSimulado is required").WithDetails("modoSimulado"))
		return
	}

	cfg, err := h.settings.Update(func(cfg *config.Config) {
		cfg.SMS.Simulated = *req.Simulated
	})
	if err != nil {
		h.writeError(w, r, errors.Wrap(err, errors.ErrValidation, "settings rejected"))
		return
	}

	h.log.Info("SMS mode changed",
		logger.CtxField(r.Context()),
		logger.String("actor", actor(r)),
		logger.Bool("simulated", cfg.SMS.Simulated))
	h.audit.Publish(r.Context(), audit.Event{
		Type:     audit.SettingsChanged,
		Username: actor(r),
		Details:  map[string]string{"sms_simulated": strconv.FormatBool(cfg.SMS.Simulated)},
	})
	h.writeJSON(w, http.StatusOK, settingsView(cfg))
}

func (h *Handler) handleReloadSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.settings.Reload()
	if err != nil {
		h.writeError(w, r, errors.Wrap(err, errors.ErrValidation, "configuration reload failed"))
		return
	}

	h.log.Info("Configuration reloaded", logger.CtxField(r.Context()), logger.String("actor", actor(r)))
	h.audit.Publish(r.Context(), audit.Event{
		Type:     audit.SettingsChanged,
		Username: actor(r),
		Details:  map[string]string{"scope": "reload"},
	})
	h.writeJSON(w, http.StatusOK, settingsView(cfg))
}
