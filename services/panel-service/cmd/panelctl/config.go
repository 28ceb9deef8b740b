package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"VerificarSmsPlatform/pkg/config"
	"VerificarSmsPlatform/services/panel-service/internal/output"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Управление конфигурацией панели",
	}

	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Создать файл конфигурации со значениями по умолчанию",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			path := args[0]
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config file %s already exists, use --force to overwrite", path)
				}
			}
			if err := config.Default().Save(path); err != nil {
				return userError(cmd, err)
			}
			a.printf("Configuración creada: %s", path)
			return nil
		},
	}
	initCmd.Flags().BoolP("force", "f", false, "overwrite an existing file")

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Показать действующую конфигурацию",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return userError(cmd, err)
			}
			view := cfg.Clone()
			if show, _ := cmd.Flags().GetBool("show-secrets"); !show {
				if view.SMS.APIKey != "" {
					view.SMS.APIKey = "********"
				}
				view.Database.URL = "********"
			}
			format, err := output.ParseFormat(a.v.GetString("output"))
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				format = output.FormatYAML
			}
			return output.Write(a.out, format, view)
		},
	}
	viewCmd.Flags().BoolP("show-secrets", "x", false, "show API key and database URL")

	cmd.AddCommand(initCmd, viewCmd)
	return cmd
}
