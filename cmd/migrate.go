package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/streamgate/streamgate/internal/config"
	"github.com/streamgate/streamgate/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create checkpoint table (MySQL) and invocation log (ClickHouse)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if cfg.MySQL.DSN != "" {
			sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
				MaxOpenConns:    cfg.MySQL.MaxOpenConns,
				MaxIdleConns:    cfg.MySQL.MaxIdleConns,
				ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
				ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
				PingTimeout:     cfg.MySQL.PingTimeout,
			})
			if err != nil {
				return fmt.Errorf("open mysql: %w", err)
			}
			defer sqlDB.Close()

			if err := execFile(sqlDB.Exec, filepath.Join("migrations", "001_init.sql")); err != nil {
				return err
			}
			fmt.Println(">> MySQL migration complete")
		}

		if cfg.ClickHouse.DSN != "" {
			chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
				DSN:         cfg.ClickHouse.DSN,
				PingTimeout: cfg.ClickHouse.PingTimeout,
			})
			if err != nil {
				return fmt.Errorf("open clickhouse: %w", err)
			}
			defer chDB.Close()

			if err := execFile(chDB.Exec, filepath.Join("migrations", "002_clickhouse.sql")); err != nil {
				return err
			}
			fmt.Println(">> ClickHouse migration complete")
		}

		if cfg.MySQL.DSN == "" && cfg.ClickHouse.DSN == "" {
			fmt.Println(">> nothing to migrate: no mysql or clickhouse DSN configured")
		}

		return nil
	},
}

func execFile(exec func(string, ...any) (sql.Result, error), path string) error {
	sqlBytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration file %s: %w", path, err)
	}
	if _, err := exec(string(sqlBytes)); err != nil {
		return fmt.Errorf("exec migration %s: %w", path, err)
	}
	return nil
}
