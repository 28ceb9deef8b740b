package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"VerificarSmsPlatform/services/panel-service/internal/pkg/password"
)

func newHashPasswordCmd(a *app) *cobra.Command {
	var skipValidation bool
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Сгенерировать bcrypt хэш пароля",
		Long: `Генерирует bcrypt хэш для колонки usuarios.hash_password.
Без аргумента пароль читается из первой строки stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plaintext, err := readPassword(a, args)
			if err != nil {
				return userError(cmd, err)
			}

			if cost == 0 {
				cfg, err := a.config()
				if err != nil {
					return userError(cmd, err)
				}
				cost = cfg.Session.BcryptCost
			}
			hasher := password.NewBcryptHasher(cost)

			if !skipValidation {
				if !hasher.Validate(plaintext) {
					return userError(cmd, fmt.Errorf("password does not meet the strength policy"))
				}
			}

			hash, err := hasher.Hash(plaintext)
			if err != nil {
				return userError(cmd, err)
			}
			a.printf("%s", hash)
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "do not enforce password strength rules")
	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (default: session.bcrypt_cost from config)")
	return cmd
}

func readPassword(a *app, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(a.in).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("read password from stdin: %w", err)
		}
		return "", fmt.Errorf("empty password")
	}
	return line, nil
}
