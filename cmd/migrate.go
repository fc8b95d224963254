package cmd

import (
	"fmt"

	"github.com/omnilearn/omnilearn/db"
	"github.com/omnilearn/omnilearn/internal/config"
)

// runMigrate applies pending database migrations and exits. The server also
// migrates on startup; this command exists for deploy pipelines that run
// migrations separately.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	fmt.Println("migrations applied")
	return nil
}
