package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"VerificarSmsPlatform/pkg/ratelimit"
	"VerificarSmsPlatform/services/panel-service/internal/output"
)

type policyList []ratelimit.Policy

func (p policyList) Table() *output.Table {
	t := output.NewTable("ENDPOINT", "LIMIT", "PERIOD", "DESCRIPTION")
	for _, policy := range p {
		t.AddRow(string(policy.Class), strconv.Itoa(policy.Limit), policy.Period.String(), policy.Description)
	}
	return t
}

type activeList []ratelimit.ActiveLimit

func (l activeList) Table() *output.Table {
	t := output.NewTable("LIMIT_KEY", "IDENTIFIER", "COUNT", "RESET_IN")
	for _, active := range l {
		t.AddRow(string(active.Class), active.Identifier, strconv.FormatInt(active.Count, 10), active.ResetIn)
	}
	return t
}

type statusView ratelimit.Status

func (s statusView) Table() *output.Table {
	t := output.NewTable("IDENTIFIER", "LIMIT_KEY", "CURRENT_USAGE", "RESET_IN")
	t.AddRow(s.Identifier, string(s.Class), strconv.FormatInt(s.Count, 10), s.ResetIn)
	return t
}

func newRateLimitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ratelimit",
		Aliases: []string{"rl"},
		Short:   "Управление лимитами запросов",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "policies",
		Short: "Показать базовые политики",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.limiterOptions()
			if err != nil {
				return userError(cmd, err)
			}
			return a.print(policyList(opts.Policies.Sorted()))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status <identifier> <class>",
		Short: "Показать счетчик субъекта (user:<name> или ip:<addr>)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			class, err := ratelimit.ParseEndpointClass(args[1])
			if err != nil {
				return userError(cmd, err)
			}
			limiter, err := a.limiter(cmd.Context())
			if err != nil {
				return userError(cmd, err)
			}
			status, err := limiter.Status(cmd.Context(), args[0], class)
			if err != nil {
				return userError(cmd, err)
			}
			return a.print(statusView(status))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <identifier> <class>",
		Short: "Сбросить счетчик субъекта",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			class, err := ratelimit.ParseEndpointClass(args[1])
			if err != nil {
				return userError(cmd, err)
			}
			limiter, err := a.limiter(cmd.Context())
			if err != nil {
				return userError(cmd, err)
			}
			if err := limiter.Reset(cmd.Context(), args[0], class); err != nil {
				return userError(cmd, err)
			}
			a.printf("Rate limit reseteado: %s - %s", args[0], class)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Показать активные счетчики",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limiter, err := a.limiter(cmd.Context())
			if err != nil {
				return userError(cmd, err)
			}
			active, err := limiter.ListActive(cmd.Context())
			if err != nil {
				return userError(cmd, err)
			}
			return a.print(activeList(active))
		},
	})

	var confirmed bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Удалить все счетчики",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return userError(cmd, fmt.Errorf("refusing to clear all counters without --yes"))
			}
			limiter, err := a.limiter(cmd.Context())
			if err != nil {
				return userError(cmd, err)
			}
			deleted, err := limiter.ClearAll(cmd.Context())
			if err != nil {
				return userError(cmd, err)
			}
			a.printf("Rate limits eliminados: %d", deleted)
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&confirmed, "yes", false, "confirm deletion of every counter")
	cmd.AddCommand(clearCmd)

	return cmd
}
