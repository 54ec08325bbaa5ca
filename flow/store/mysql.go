package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of HistoryStore.
//
// Use it when run history must be shared between several processes or kept
// for auditing.
//
// The DSN format is the go-sql-driver one:
//
//	user:password@tcp(localhost:3306)/flows
//
// Never hardcode credentials; read the DSN from the environment or a config
// file.
type MySQLStore struct {
	sqlStore
}

// NewMySQLStore connects to dsn, verifies the connection and migrates the
// schema.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore{sqlStore: sqlStore{db: db}}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Stats returns connection pool statistics.
func (m *MySQLStore) Stats() sql.DBStats {
	return m.db.Stats()
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	runs := `
		CREATE TABLE IF NOT EXISTS flow_runs (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(64) NOT NULL,
			flow VARCHAR(255) NOT NULL,
			status VARCHAR(16) NOT NULL,
			error TEXT NOT NULL,
			started_at VARCHAR(40) NOT NULL,
			finished_at VARCHAR(40) NOT NULL DEFAULT '',
			UNIQUE KEY unique_run_id (run_id),
			INDEX idx_flow (flow)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, runs); err != nil {
		return fmt.Errorf("failed to create flow_runs table: %w", err)
	}

	history := `
		CREATE TABLE IF NOT EXISTS flow_history (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(64) NOT NULL,
			seq INT NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			succeeded BOOLEAN NOT NULL,
			message TEXT NOT NULL,
			error TEXT NOT NULL,
			at VARCHAR(40) NOT NULL,
			UNIQUE KEY unique_run_seq (run_id, seq),
			INDEX idx_run_id (run_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, history); err != nil {
		return fmt.Errorf("failed to create flow_history table: %w", err)
	}
	return nil
}
