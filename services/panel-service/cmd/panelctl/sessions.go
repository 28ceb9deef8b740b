package main

import (
	"time"

	"github.com/spf13/cobra"

	"VerificarSmsPlatform/services/panel-service/internal/domain"
	"VerificarSmsPlatform/services/panel-service/internal/output"
)

// sessionList активные сессии с табличным представлением
type sessionList []domain.ActiveSession

func (s sessionList) Table() *output.Table {
	t := output.NewTable("USUARIO", "ROL", "TOKEN", "ULTIMA ACTIVIDAD", "TTL")
	for _, session := range s {
		t.AddRow(
			session.Username,
			session.Role,
			shortToken(session.Token),
			session.LastActivity.Format(time.DateTime),
			(time.Duration(session.TTLSeconds) * time.Second).String(),
		)
	}
	return t
}

// shortToken сокращает токен для таблицы; полный токен есть в JSON выводе
func shortToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:12] + "..."
}

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Управление сессиями",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Показать активные сессии",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.sessions(cmd.Context())
			if err != nil {
				return userError(cmd, err)
			}
			sessions, err := repo.ListAll(cmd.Context())
			if err != nil {
				return userError(cmd, err)
			}
			return a.print(sessionList(sessions))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <token>",
		Short: "Закрыть сессию по токену",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.sessions(cmd.Context())
			if err != nil {
				return userError(cmd, err)
			}
			if err := repo.Delete(cmd.Context(), args[0]); err != nil {
				return userError(cmd, err)
			}
			a.printf("Sesión cerrada correctamente")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "extend <token>",
		Short: "Продлить сессию на полный срок",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.sessions(cmd.Context())
			if err != nil {
				return userError(cmd, err)
			}
			if err := repo.Extend(cmd.Context(), args[0]); err != nil {
				return userError(cmd, err)
			}
			a.printf("Sesión extendida: %s", repo.TTL())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke-user <username>",
		Short: "Закрыть все сессии пользователя",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.sessions(cmd.Context())
			if err != nil {
				return userError(cmd, err)
			}
			deleted, err := repo.DeleteByUsername(cmd.Context(), args[0])
			if err != nil {
				return userError(cmd, err)
			}
			a.printf("Sesiones cerradas para %s: %d", args[0], deleted)
			return nil
		},
	})

	return cmd
}
