package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"go-chatty-client/internal/infrastructure/auth"
)

func newLoginCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login <token>",
		Short: "Store an API token in auth.token_file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Auth.TokenFile == "" {
				return errors.New("auth.token_file is not configured")
			}
			token := strings.TrimSpace(args[0])
			if token == "" {
				return errors.New("token is empty")
			}
			if err := auth.NewFileToken(a.cfg.Auth.TokenFile).Store(token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token stored in %s\n", a.cfg.Auth.TokenFile)
			return nil
		},
	}
}
