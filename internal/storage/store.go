// Package storage is the durable (Postgres) persistence layer for the tables
// spec §6 names. Grounded on internal/repository/order_repository.go's
// $N-placeholder/RETURNING-id style and cmd/server/main.go's initDatabase
// connection-pool tuning, using the teacher's exact driver stack
// (database/sql + github.com/lib/pq).
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps the shared *sql.DB handle for every table-specific repository
// in this package (SignalStore, SpreadLogStore, ZScoreLogStore,
// TrackingStore, SnapshotStore, AnalysisStore, BaselineStore,
// PairStatsStore, PositionStore, TradeResultStore).
type Store struct {
	DB *sql.DB
}

// Config mirrors config.DatabaseConfig without importing internal/config,
// keeping this package free of a dependency on the config package.
type Config struct {
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to Postgres and tunes the pool per the teacher's
// cmd/server/main.go initDatabase (25 open / 5 idle / 5m lifetime defaults).
func Open(cfg Config) (*Store, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{DB: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Ping checks connectivity, used by `cmd/observatory healthcheck`.
func (s *Store) Ping() error {
	return s.DB.Ping()
}
