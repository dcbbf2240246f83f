package main

import (
	"context"
	"errors"
	"os"

	"student-records-api/internal/auth"
	"student-records-api/internal/config"
	"student-records-api/internal/repo"

	"github.com/rs/zerolog/log"
)

const (
	seedUsername = "admin"
	seedPassword = "admin123"
)

// seed creates the default account and imports cfg.SeedCSV into an empty
// students table.
func seed(ctx context.Context, cfg config.Config, sessions *auth.Store, students repo.StudentStore) error {
	if cfg.SeedAdmin {
		created, err := sessions.EnsureUser(ctx, seedUsername, seedPassword)
		if err != nil {
			return err
		}
		if created {
			log.Warn().Str("username", seedUsername).Msg("created default account; change its password")
		}
	}

	if cfg.SeedCSV == "" {
		return nil
	}
	n, err := students.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	imported, err := students.ImportCSV(ctx, cfg.SeedCSV)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Info().Str("path", cfg.SeedCSV).Msg("no seed csv, starting empty")
	case err != nil:
		log.Error().Err(err).Str("path", cfg.SeedCSV).Msg("seed import failed")
	default:
		log.Info().Int("students", imported).Str("path", cfg.SeedCSV).Msg("seeded students")
	}
	return nil
}
