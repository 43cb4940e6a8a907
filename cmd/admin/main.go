// Command admin runs maintenance tasks against the SchoolPulse database.
package main

import (
	"fmt"
	"os"

	"schoolpulse_go/config"
	"schoolpulse_go/database"
	"schoolpulse_go/logger"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// openDB connects with the loaded configuration. Tests swap it for SQLite.
var openDB = func(cfg *config.Config) (*gorm.DB, error) {
	database.Connect()
	if database.DB == nil {
		return nil, errors.New("database unavailable")
	}
	return database.DB, nil
}

var (
	cfg *config.Config
	db  *gorm.DB
)

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "SchoolPulse administration",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			config.LoadConfig()
			cfg = config.AppConfig
			if err := logger.Setup(cfg); err != nil {
				return err
			}
		}
		if db == nil {
			conn, err := openDB(cfg)
			if err != nil {
				return err
			}
			db = conn
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, seedCmd, createPrincipalCmd, resetPasswordCmd, computeMetricsCmd, archiveLogsCmd)
}

func main() {
	defer logger.Flush()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
