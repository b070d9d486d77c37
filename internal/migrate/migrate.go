package migrate

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// readyTimeout bounds how long Run waits for Postgres to accept
// connections before giving up.
const readyTimeout = 30 * time.Second

// Run applies all pending migrations from dir using goose. It opens
// its own short-lived DB handle so the app store never sees a
// half-migrated schema, and waits for Postgres to come up first since
// on a fresh compose startup the database container usually loses the
// race to this process.
func Run(dsn, dir string, logger *slog.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	deadline := time.Now().Add(readyTimeout)
	for {
		err = db.Ping()
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("db not ready after %s: %w", readyTimeout, err)
		}
		if logger != nil {
			logger.Info("waiting_for_db", "error", err.Error())
		}
		time.Sleep(500 * time.Millisecond)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}
