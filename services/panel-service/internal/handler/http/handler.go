package http

import (
	"context"
	"encoding/json"
	"net/http"

	"VerificarSmsPlatform/pkg/config"
	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/pkg/health"
	"VerificarSmsPlatform/pkg/logger"
	"VerificarSmsPlatform/pkg/metrics"
	"VerificarSmsPlatform/pkg/ratelimit"
	pkgredis "VerificarSmsPlatform/pkg/redis"
	"VerificarSmsPlatform/services/panel-service/internal/audit"
	"VerificarSmsPlatform/services/panel-service/internal/domain"
	"VerificarSmsPlatform/services/panel-service/internal/middleware"
	"VerificarSmsPlatform/services/panel-service/internal/service"
)

// AuthService интерфейс для сервиса аутентификации
type AuthService interface {
	middleware.Authenticator
	Login(ctx context.Context, username, password, ip string) (*service.LoginResult, error)
	Logout(ctx context.Context, token string, session *domain.Session) error
	ListSessions(ctx context.Context) ([]domain.ActiveSession, error)
	RevokeSession(ctx context.Context, actor, token string) error
	RevokeUser(ctx context.Context, actor, username string) (int, error)
}

// SMSService интерфейс для отправки кодов подтверждения
type SMSService interface {
	Send(ctx context.Context, session *domain.Session, req service.SendRequest) (*service.SendResult, error)
}

// UserAdmin управление пользователями панели
type UserAdmin interface {
	CreateUser(ctx context.Context, actor string, req service.CreateUserRequest) (*domain.User, error)
	GetUser(ctx context.Context, username string) (*domain.User, error)
	UpdateUser(ctx context.Context, actor, username string, req service.UpdateUserRequest) (*service.UpdateUserResult, error)
	DeleteUser(ctx context.Context, actor, username string) (int, error)
}

// Reports сводки по журналу отправок
type Reports interface {
	Usage(ctx context.Context) (*domain.UsageStats, error)
	Metrics(ctx context.Context) (*domain.VerificationMetrics, error)
}

// RateLimitAdmin лимитер вместе с операциями администрирования
type RateLimitAdmin interface {
	middleware.Checker
	middleware.AccessChecker
	Status(ctx context.Context, identifier string, class ratelimit.EndpointClass) (ratelimit.Status, error)
	Reset(ctx context.Context, identifier string, class ratelimit.EndpointClass) error
	ListActive(ctx context.Context) ([]ratelimit.ActiveLimit, error)
	ClearAll(ctx context.Context) (int, error)
	Stats(ctx context.Context) (ratelimit.Stats, error)
	Policies() []ratelimit.Policy
	Multipliers() ratelimit.RoleMultipliers
	Whitelist() []string
	Blacklist() []string
	FailOpen() bool
}

// RedisInspector отдает сведения о сервере Redis
type RedisInspector interface {
	Info(ctx context.Context) pkgredis.ServerInfo
}

// Dependencies зависимости HTTP слоя
type Dependencies struct {
	Auth     AuthService
	SMS      SMSService
	Users    UserAdmin
	Reports  Reports
	Limits   RateLimitAdmin
	Redis    RedisInspector
	Settings *config.Holder
	Health   health.HealthChecker
	Metrics  *metrics.Metrics
	Audit    audit.Publisher
	Logger   logger.Logger
}

// Handler структура для управления HTTP обработчиками
type Handler struct {
	mux      *http.ServeMux
	root     http.Handler
	auth     AuthService
	sms      SMSService
	users    UserAdmin
	reports  Reports
	limits   RateLimitAdmin
	redis    RedisInspector
	settings *config.Holder
	health   health.HealthChecker
	metrics  *metrics.Metrics
	audit    audit.Publisher
	limiter  *middleware.RateLimiter
	log      logger.Logger
}

// NewHandler создает новый экземпляр Handler.
// Политика прокси и включение лимитов берутся из конфигурации при создании.
func NewHandler(deps Dependencies) *Handler {
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}

	cfg := deps.Settings.Current()
	proxy := ratelimit.ProxyFromConfig(cfg.RateLimiting.Proxy)

	h := &Handler{
		mux:      http.NewServeMux(),
		auth:     deps.Auth,
		sms:      deps.SMS,
		users:    deps.Users,
		reports:  deps.Reports,
		limits:   deps.Limits,
		redis:    deps.Redis,
		settings: deps.Settings,
		health:   deps.Health,
		metrics:  deps.Metrics,
		audit:    deps.Audit,
		limiter:  middleware.NewRateLimiter(deps.Limits, proxy, cfg.RateLimiting.Enabled, deps.Audit, deps.Logger),
		log:      deps.Logger,
	}

	// Настройка роутинга
	h.setupRoutes()

	// metrics оборачивает mux напрямую: метка маршрута берется из r.Pattern
	var inner http.Handler = h.mux
	if h.metrics != nil {
		inner = h.metrics.Middleware(inner)
	}
	h.root = middleware.Chain(inner,
		middleware.RecoveryMiddleware(h.log),
		middleware.LoggingMiddleware(h.log),
		middleware.IPFilterMiddleware(deps.Limits, proxy, h.audit, h.log),
		middleware.SessionMiddleware(deps.Auth, cfg.Session.CookieName),
	)

	return h
}

// ServeHTTP реализует интерфейс http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

// setupRoutes настраивает маршруты для приложения
func (h *Handler) setupRoutes() {
	limit := h.limiter.Limit

	// Публичные роуты
	h.mux.Handle("POST /api/login", limit(ratelimit.ClassLogin)(http.HandlerFunc(h.handleLogin)))

	// Роуты с сессией
	h.mux.Handle("POST /api/logout", middleware.RequireSession(http.HandlerFunc(h.handleLogout)))
	h.mux.Handle("GET /api/me", middleware.RequireSession(
		limit(ratelimit.ClassAPIGeneral)(http.HandlerFunc(h.handleMe))))
	h.mux.Handle("POST /api/send-sms", middleware.RequireSession(
		limit(ratelimit.ClassSMSSend, ratelimit.ClassSMSHourly, ratelimit.ClassSMSDaily)(http.HandlerFunc(h.handleSendSMS))))

	// Администрирование сессий
	h.admin("GET /api/admin/sessions", h.handleListSessions, ratelimit.ClassQueries)
	h.admin("DELETE /api/admin/sessions/{token}", h.handleRevokeSession)
	h.admin("DELETE /api/admin/users/{username}/sessions", h.handleRevokeUser)

	// Пользователи
	h.admin("POST /api/admin/users", h.handleCreateUser)
	h.admin("GET /api/admin/users/{username}", h.handleGetUser)
	h.admin("PUT /api/admin/users/{username}", h.handleUpdateUser)
	h.admin("DELETE /api/admin/users/{username}", h.handleDeleteUser)

	// Журнал отправок
	h.admin("GET /api/registros/uso", h.handleUsage, ratelimit.ClassQueries)
	h.admin("GET /api/registros/metricas", h.handleMetrics, ratelimit.ClassQueries)

	// Администрирование лимитов
	h.admin("GET /api/admin/rate-limits/config", h.handleLimitsConfig)
	h.admin("GET /api/admin/rate-limits/roles", h.handleLimitsRoles)
	h.admin("GET /api/admin/rate-limits/active", h.handleLimitsActive, ratelimit.ClassQueries)
	h.admin("GET /api/admin/rate-limits/stats", h.handleLimitsStats, ratelimit.ClassQueries)
	h.admin("GET /api/admin/rate-limits/status/{identifier}/{class}", h.handleLimitStatus)
	h.admin("POST /api/admin/rate-limits/reset", h.handleLimitReset)
	h.admin("DELETE /api/admin/rate-limits/clear-all", h.handleLimitsClearAll)
	h.admin("GET /api/admin/rate-limits/redis-status", h.handleRedisStatus)

	// Настройки
	h.admin("GET /api/admin/settings", h.handleGetSettings)
	h.admin("PUT /api/admin/settings/sms-mode", h.handleSetSMSMode)
	h.admin("POST /api/admin/settings/reload", h.handleReloadSettings)

	// Health check роуты
	if h.health != nil {
		h.mux.Handle("GET /health", health.Handler(h.health))
		h.mux.Handle("GET /ready", health.ReadyHandler(h.health))
	}
	h.mux.Handle("GET /live", health.LiveHandler())
	if h.metrics != nil {
		h.mux.Handle("GET /metrics", h.metrics.GetHandler())
	}
}

// admin регистрирует роут, требующий роли admin и, при необходимости, лимитов
func (h *Handler) admin(pattern string, fn http.HandlerFunc, classes ...ratelimit.EndpointClass) {
	var next http.Handler = fn
	if len(classes) > 0 {
		next = h.limiter.Limit(classes...)(next)
	}
	h.mux.Handle(pattern, middleware.RequireAdmin(next))
}

type loginRequest struct {
	Username string `json:"usuario"`
	Password string `json:"password"`
}

// handleLogin обрабатывает запросы на аутентификацию
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	subject := h.limiter.Subject(r)
	result, err := h.auth.Login(r.Context(), req.Username, req.Password, subject.IP)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cfg := h.settings.Current()
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Session.CookieName,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   int(config.Duration(cfg.Session.Duration, 0).Seconds()),
		HttpOnly: true,
		Secure:   cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"usuario": result.Session.Username,
		"rol":     result.Session.Role,
		"mensaje": "Inicio de sesión exitoso",
	})
}

// handleLogout удаляет сессию и cookie
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, token, _ := middleware.SessionFromContext(r.Context())
	if err := h.auth.Logout(r.Context(), token, session); err != nil {
		h.writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.settings.Current().Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"mensaje": "Sesión cerrada correctamente",
	})
}

// handleMe возвращает данные текущей сессии
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	session, _, _ := middleware.SessionFromContext(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"usuario": session.Username,
		"rol":     session.Role,
		"email":   session.Email,
	})
}

// handleSendSMS отправляет код подтверждения
func (h *Handler) handleSendSMS(w http.ResponseWriter, r *http.Request) {
	var req service.SendRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, _, _ := middleware.SessionFromContext(r.Context())
	result, err := h.sms.Send(r.Context(), session, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// decode читает JSON тело запроса; при ошибке пишет ответ 400
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, errors.Wrap(err, errors.ErrValidation, "invalid request body"))
		return false
	}
	return true
}

// writeJSON записывает JSON ответ
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode response", logger.Error(err))
	}
}

// writeError записывает ошибку; внутренние ошибки дополнительно логируются
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := errors.As(err); !ok || e.HTTPStatus() >= http.StatusInternalServerError {
		h.log.Error("Request handling failed",
			logger.CtxField(r.Context()),
			logger.String("path", r.URL.Path),
			logger.Error(err))
	}
	errors.WriteHTTP(w, err)
}
