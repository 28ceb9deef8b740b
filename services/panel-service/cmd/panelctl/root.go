package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"VerificarSmsPlatform/pkg/config"
	pkgerrors "VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/pkg/logger"
	"VerificarSmsPlatform/pkg/ratelimit"
	pkgredis "VerificarSmsPlatform/pkg/redis"
	"VerificarSmsPlatform/services/panel-service/internal/output"
	redisrepo "VerificarSmsPlatform/services/panel-service/internal/repository/redis"
)

// dialFunc открывает подключение к Redis по конфигурации панели
type dialFunc func(ctx context.Context, cfg *config.Config) (*goredis.Client, error)

func dialRedis(ctx context.Context, cfg *config.Config) (*goredis.Client, error) {
	client, err := pkgredis.Connect(ctx, pkgredis.ConfigFrom(cfg.Redis))
	if err != nil {
		return nil, err
	}
	return client.Client, nil
}

// app общее состояние команд: конфигурация, вывод и лениво открытый Redis
type app struct {
	v      *viper.Viper
	out    io.Writer
	in     io.Reader
	log    logger.Logger
	dial   dialFunc
	cfg    *config.Config
	client *goredis.Client
}

func newApp(out io.Writer, in io.Reader) *app {
	v := viper.New()
	v.SetEnvPrefix("PANELCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return &app{v: v, out: out, in: in, log: logger.NewNop(), dial: dialRedis}
}

// config загружает конфигурацию панели один раз
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.LoadConfig(a.v.GetString("config"))
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) redis(ctx context.Context) (*goredis.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	client, err := a.dial(ctx, cfg)
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "redis")
	}
	a.client = client
	return client, nil
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
		a.client = nil
	}
}

func (a *app) sessions(ctx context.Context) (*redisrepo.SessionRepository, error) {
	client, err := a.redis(ctx)
	if err != nil {
		return nil, err
	}
	cfg := a.cfg
	return redisrepo.NewSessionRepository(
		client,
		config.Duration(cfg.Session.Duration, 8*time.Hour),
		config.Duration(cfg.Session.StoreTimeout, 2*time.Second),
		nil,
	), nil
}

func (a *app) limiterOptions() (ratelimit.Options, error) {
	cfg, err := a.config()
	if err != nil {
		return ratelimit.Options{}, err
	}
	return ratelimit.OptionsFromConfig(cfg.RateLimiting)
}

func (a *app) limiter(ctx context.Context) (*ratelimit.Limiter, error) {
	opts, err := a.limiterOptions()
	if err != nil {
		return nil, err
	}
	client, err := a.redis(ctx)
	if err != nil {
		return nil, err
	}
	return ratelimit.NewLimiter(ratelimit.NewRedisStore(client), opts, a.log), nil
}

func (a *app) print(data interface{}) error {
	format, err := output.ParseFormat(a.v.GetString("output"))
	if err != nil {
		return err
	}
	return output.Write(a.out, format, data)
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format+"\n", args...)
}

// userError приводит ошибку к сообщению для оператора
func userError(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := pkgerrors.As(err); ok {
		return fmt.Errorf("%s: %s (%v)", cmd.Name(), appErr.GetUserMessage(), err)
	}
	return fmt.Errorf("%s: %w", cmd.Name(), err)
}

// newRootCmd собирает дерево команд panelctl
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "panelctl",
		Short: "panelctl - администрирование панели верификации SMS",
		Long: `panelctl управляет сессиями и лимитами панели напрямую через Redis
и генерирует bcrypt хэши паролей для таблицы usuarios.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.SetOut(a.out)

	root.PersistentFlags().StringP("config", "c", "", "panel config file (YAML or JSON)")
	root.PersistentFlags().StringP("output", "o", "table", "output format (table, json, yaml)")
	a.v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	a.v.BindPFlag("output", root.PersistentFlags().Lookup("output"))

	root.AddCommand(newHashPasswordCmd(a))
	root.AddCommand(newSessionsCmd(a))
	root.AddCommand(newRateLimitCmd(a))
	root.AddCommand(newConfigCmd(a))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdout, os.Stdin)
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		stop()
		a.close()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
