// Package cli implements bulkctl, the command line client that drives
// generation, export, import and delete runs against a bulkgen server.
package cli

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd creates the bulkctl root command with every subcommand attached.
func NewRootCmd(version string) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BULKGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var logger zerolog.Logger
	cmd := &cobra.Command{
		Use:           "bulkctl",
		Short:         "Generate, export, import and delete store test data",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  # Log in once; the token is cached for later commands
  bulkctl login --username admin --password secret

  # Create 500 orders in batches of 50
  bulkctl generate orders --total 500 --batch-size 50

  # Export every product and import it elsewhere
  bulkctl export products
  bulkctl import products ./wc-product-export.csv

  # Remove all orders
  bulkctl delete orders`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger = setupLogging(cmd, v.GetBool("debug"))
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("server", "http://localhost:8080", "bulkgen server base URL")
	flags.String("token", "", "bearer token (defaults to the cached login token)")
	flags.String("token-file", defaultTokenFile(), "where login caches the token")
	flags.Bool("debug", false, "enable debug logging")
	for _, name := range []string{"server", "token", "token-file", "debug"} {
		v.BindPFlag(name, flags.Lookup(name))
	}

	env := &environment{v: v, logger: func() zerolog.Logger { return logger }}
	cmd.AddCommand(
		newLoginCmd(env),
		newGenerateCmd(env),
		newExportCmd(env),
		newImportCmd(env),
		newDeleteCmd(env),
	)
	return cmd
}

func setupLogging(cmd *cobra.Command, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bulkgen-token"
	}
	return home + "/.bulkgen/token"
}
