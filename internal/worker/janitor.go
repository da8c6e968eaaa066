// Package worker runs background maintenance next to the API server.
package worker

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// JanitorConfig selects what the janitor sweeps and how often.
type JanitorConfig struct {
	Dirs         []string
	MaxAge       time.Duration
	PollInterval time.Duration
}

// Janitor removes export artifacts and uploads that outlived their session.
// Session state expires on its own; the files it pointed to do not.
type Janitor struct {
	cfg    JanitorConfig
	fs     afero.Fs
	now    func() time.Time
	logger zerolog.Logger
}

func NewJanitor(cfg JanitorConfig, fs afero.Fs, logger zerolog.Logger) *Janitor {
	return &Janitor{
		cfg:    cfg,
		fs:     fs,
		now:    time.Now,
		logger: logger.With().Str("component", "janitor").Logger(),
	}
}

// Start sweeps on every tick until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	j.logger.Info().Dur("interval", j.cfg.PollInterval).Dur("max_age", j.cfg.MaxAge).Msg("Janitor started")
	ticker := time.NewTicker(j.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("Janitor stopped")
			return ctx.Err()
		case <-ticker.C:
			removed, err := j.Sweep(ctx)
			if err != nil {
				// A locked file is not fatal; keep sweeping.
				j.logger.Error().Err(err).Msg("sweep failed")
			}
			if removed > 0 {
				j.logger.Info().Int("removed", removed).Msg("removed expired files")
			}
		}
	}
}

// Sweep deletes regular files older than MaxAge and returns how many it
// removed. Subdirectories are left alone and a missing directory counts as
// empty. A directory or file that cannot be handled does not stop the sweep;
// every such failure is reported in the returned error.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.cfg.MaxAge)
	removed := 0
	var errs []error
	for _, dir := range j.cfg.Dirs {
		entries, err := afero.ReadDir(j.fs, dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "read %s", dir))
			continue
		}
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			if entry.IsDir() || !entry.ModTime().Before(cutoff) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := j.fs.Remove(path); err != nil {
				errs = append(errs, errors.Wrapf(err, "remove %s", path))
				continue
			}
			j.logger.Debug().Str("path", path).Time("modified", entry.ModTime()).Msg("removed expired file")
			removed++
		}
	}
	return removed, stderrors.Join(errs...)
}
