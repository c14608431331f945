// Package cli implements the hospital assistant commands.
package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"hospital-assistant/internal/config"
	"hospital-assistant/internal/db"
)

var (
	dbPath   string
	driver   string
	logLevel string

	settings config.Config
)

// RootCmd is the top-level command. Without a subcommand it serves.
var RootCmd = &cobra.Command{
	Use:          "hospital-assistant",
	Short:        "City General Hospital conversational assistant",
	Long:         "Chat, WebSocket and telephone assistant for hospital information, appointments, reports and billing.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DatabaseURL = dbPath
		}
		if driver != "" {
			cfg.DatabaseDriver = driver
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		settings = cfg
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path or DSN (default: $DATABASE_URL or hospital.db)")
	RootCmd.PersistentFlags().StringVar(&driver, "driver", "", "Database driver: sqlite or postgres (default: $DATABASE_DRIVER)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (default: $LOG_LEVEL or info)")
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}

func openRepository(ctx context.Context) (*sql.DB, *db.Repository, error) {
	conn, err := db.Open(ctx, settings.DatabaseDriver, settings.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return conn, db.NewRepository(conn, settings.DatabaseDriver), nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
