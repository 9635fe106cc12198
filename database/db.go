package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func InitDB(dsn string, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	logger.Info("Database connection established")
	return db, nil
}

func createTables(db *sql.DB) error {
	// The UNIQUE constraint on stripe_payment_id is what makes order
	// creation idempotent across concurrent webhook deliveries. Orders
	// carry no foreign key to templates so sales history survives
	// template deletion.
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS templates (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		detailed_description TEXT NOT NULL,
		features TEXT[] NOT NULL DEFAULT '{}',
		price DOUBLE PRECISION NOT NULL,
		category TEXT NOT NULL,
		main_image TEXT NOT NULL,
		thumbnails TEXT[] NOT NULL DEFAULT '{}',
		compatibility TEXT[] NOT NULL DEFAULT '{}',
		stripe_product_id TEXT NOT NULL DEFAULT '',
		stripe_price_id TEXT NOT NULL DEFAULT '',
		file_path TEXT NOT NULL,
		download_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS orders (
		id SERIAL PRIMARY KEY,
		template_id INTEGER NOT NULL,
		customer_email TEXT NOT NULL,
		customer_name TEXT NOT NULL DEFAULT '',
		amount DOUBLE PRECISION NOT NULL,
		stripe_payment_id TEXT NOT NULL UNIQUE,
		download_link TEXT NOT NULL DEFAULT '',
		download_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_admin BOOLEAN NOT NULL DEFAULT false
	);
	`

	if _, err := db.Exec(createTableQuery); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// EnsureAdmin creates the admin user if it does not exist yet. The password
// is bcrypt-hashed before it touches the database. An empty password skips
// seeding so the service can run without a bootstrap admin.
func EnsureAdmin(db *sql.DB, username, password string, logger *zap.Logger) error {
	if password == "" {
		logger.Warn("ADMIN_PASSWORD not set, skipping admin user seeding")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	_, err = db.Exec(
		"INSERT INTO users (username, password_hash, is_admin) VALUES ($1, $2, true) ON CONFLICT (username) DO NOTHING",
		username, string(hash),
	)
	if err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	logger.Info("Admin user ensured", zap.String("username", username))
	return nil
}
