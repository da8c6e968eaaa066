package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/stanstork/bulkgen/internal/orchestrator"
)

var errNotLoggedIn = errors.New("not logged in: run bulkctl login or pass --token")

// environment carries the resolved flags and logger to subcommands.
type environment struct {
	v      *viper.Viper
	logger func() zerolog.Logger
}

func (e *environment) newClient() *orchestrator.HTTPClient {
	return orchestrator.NewHTTPClient(e.v.GetString("server"), nil, e.logger())
}

func (e *environment) token() (string, error) {
	if token := strings.TrimSpace(e.v.GetString("token")); token != "" {
		return token, nil
	}
	raw, err := os.ReadFile(e.v.GetString("token-file"))
	if os.IsNotExist(err) {
		return "", errNotLoggedIn
	}
	if err != nil {
		return "", errors.Wrap(err, "read token file")
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", errNotLoggedIn
	}
	return token, nil
}

func (e *environment) saveToken(token string) error {
	path := e.v.GetString("token-file")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "create token directory")
	}
	return errors.Wrap(os.WriteFile(path, []byte(token+"\n"), 0o600), "write token file")
}

// session returns a client holding a token and fresh nonces.
func (e *environment) session(ctx context.Context) (*orchestrator.HTTPClient, error) {
	token, err := e.token()
	if err != nil {
		return nil, err
	}
	client := e.newClient()
	client.SetToken(token)
	if err := client.FetchNonces(ctx); err != nil {
		return nil, errors.Wrap(err, "fetch nonces")
	}
	return client, nil
}
