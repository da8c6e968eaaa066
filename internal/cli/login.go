package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newLoginCmd(env *environment) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and cache the bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = env.v.GetString("password")
			}
			if password == "" {
				return errors.New("password is required (--password or BULKGEN_PASSWORD)")
			}
			token, err := env.newClient().Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			if err := env.saveToken(token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "admin", "admin username")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	return cmd
}
