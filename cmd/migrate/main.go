package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Bootstraps the schema the bot expects. Safe to run on an empty database
// and safe to re-run.
const createPaperPositions = `
CREATE TABLE IF NOT EXISTS paper_positions (
    instrument  TEXT PRIMARY KEY,
    signed_size DOUBLE PRECISION NOT NULL,
    entry_price DOUBLE PRECISION NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func run() error {
	configFileName := os.Getenv("CONFIG_FILE")
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}

	engine := viper.New()
	engine.SetConfigFile("configs/" + configFileName)
	engine.SetConfigType("yaml")
	if err := engine.ReadInConfig(); err != nil {
		return errors.Wrap(err, "read config")
	}

	dsn := engine.GetString("db_dsn")
	if env := os.Getenv("DATABASE_DSN"); env != "" {
		dsn = env
	}
	if dsn == "" {
		return errors.New("db_dsn is empty")
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return errors.Wrap(err, "connect")
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	if _, err := conn.Exec(ctx, createPaperPositions); err != nil {
		return errors.Wrap(err, "create paper_positions")
	}

	fmt.Println("schema is up to date")
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
