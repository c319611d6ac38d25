package vault

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/time/rate"

	"filevault/internal/auth"
	"filevault/internal/sniff"
	"filevault/internal/storage"
)

//go:embed migrations
var migrationsFS embed.FS

const (
	defaultMaxFileSize = 64 << 20
	defaultTokenTTL    = time.Hour
	defaultRateBurst   = 5

	// Development fallback. Override in any real deployment.
	defaultSecretKey = "filevault-dev-secret"
)

// Server implements the file ingestion API: deduplicated content-addressed
// uploads with MIME validation, backed by a SQLite metadata database and a
// pluggable payload storage engine.
type Server struct {
	cfg     Config
	db      *sql.DB
	tokens  *auth.TokenAuthEngine
	limiter *visitorLimiter
}

// initSchema initializes the metadata database schema by applying all
// SQL files in the embedded migrations in lexicographical order.
func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readError := migrationsFS.ReadFile(path)
		if readError != nil {
			return fmt.Errorf("error reading SQL file: %w", readError)
		}

		slog.Info("Running migration", "path", path)
		_, execError := db.ExecContext(ctx, string(content))
		return execError
	})
}

// NewServer initializes the metadata database and returns a new Server.
func NewServer(ctx context.Context, cfg Config) (*Server, error) {

	if cfg.DataDir == "" {
		return nil, errors.New("DataDir must not be empty")
	}

	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}

	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}

	if cfg.SecretKey == "" {
		slog.Warn("No secret key configured, using the insecure development default")
		cfg.SecretKey = defaultSecretKey
	}

	if cfg.Compat == nil {
		cfg.Compat = sniff.DefaultTable()
	}

	if cfg.Accounts == nil {
		cfg.Accounts = auth.NewAccountStore()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := path.Join(cfg.DataDir, "metadata.sqlite")

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.Engine == nil {
		cfg.Engine = storage.NewLocalFileStorage(filepath.Join(cfg.DataDir, "objects"))
	}

	tokens := auth.NewTokenAuthEngine([]byte(cfg.SecretKey), cfg.TokenTTL)

	var limiter *visitorLimiter
	if cfg.RateLimit > 0 {
		if cfg.RateBurst <= 0 {
			cfg.RateBurst = defaultRateBurst
		}
		limiter = newVisitorLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	return &Server{cfg: cfg, db: db, tokens: tokens, limiter: limiter}, nil
}

// Close closes any resources held by the Server.
func (s *Server) Close() error {
	return s.db.Close()
}

// WithTransaction runs a function within a database transaction.
func WithTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}
