// Package database opens the traced PostgreSQL pool behind the postgres repository.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"docfabric/internal/config"
	"docfabric/internal/logging"
)

const (
	applicationName = "docfabric"
	pingTimeout     = 5 * time.Second
)

var (
	sqlOpen = sql.Open
	// retryDelay is the pause after the nth failed ping.
	retryDelay = func(attempt int) time.Duration { return time.Duration(attempt) * time.Second }
)

var errIncompleteConfig = errors.New("invalid database config: host, port, user, and name are required")

// BuildPostgresDSN returns c.URL when set, otherwise a postgres:// URL assembled from the
// individual settings.
func BuildPostgresDSN(c config.DatabaseConfig) (string, error) {
	if c.URL != "" {
		if _, err := url.Parse(c.URL); err != nil {
			return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		return c.URL, nil
	}
	if c.Host == "" || c.Port == "" || c.User == "" || c.Name == "" {
		return "", errIncompleteConfig
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   c.Host + ":" + c.Port,
		Path:   c.Name,
		User:   url.User(c.User),
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}

	q := url.Values{}
	q.Set("application_name", applicationName)
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NewPostgres opens a traced pool on the pgx stdlib driver and waits until the server
// answers, retrying up to c.ConnectAttempts times so the API can start alongside its
// database.
func NewPostgres(ctx context.Context, c config.DatabaseConfig, log *logging.Logger) (*sql.DB, error) {
	dsn, err := BuildPostgresDSN(c)
	if err != nil {
		return nil, err
	}

	driverName, err := otelsql.Register("pgx",
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
		otelsql.WithSQLCommenter(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register otelsql: %w", err)
	}

	db, err := sqlOpen(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	configurePool(db, c)

	if err := waitForPing(ctx, db, c.ConnectAttempts, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func configurePool(db *sql.DB, c config.DatabaseConfig) {
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.ConnMaxLifetimeSec > 0 {
		db.SetConnMaxLifetime(time.Duration(c.ConnMaxLifetimeSec) * time.Second)
	}
}

func waitForPing(ctx context.Context, db *sql.DB, attempts int, log *logging.Logger) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt >= attempts {
			break
		}

		delay := retryDelay(attempt)
		log.Info(logging.Fields{
			"component":     "database",
			"event":         "db_ping_retry",
			"attempt":       attempt,
			"retry_in_ms":   delay.Milliseconds(),
			"error_message": err.Error(),
		})
		select {
		case <-ctx.Done():
			return fmt.Errorf("db ping: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("db ping: %w", err)
}
