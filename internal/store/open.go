package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
	"modernc.org/sqlite"

	"github.com/Aman-CERP/docsearch/internal/config"
	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
)

// Options carries process-level settings that are not part of the storage config.
type Options struct {
	Dimensions int
	// SQLLog receives bundebug output when storage.debug_sql is set.
	SQLLog io.Writer
}

// Open builds the configured backend. The flat backend is loaded from its
// snapshot; relational backends are connected and migrated.
func Open(ctx context.Context, cfg config.StorageConfig, opts Options) (Backend, error) {
	if opts.Dimensions <= 0 {
		return nil, docerrors.ConfigError(fmt.Sprintf("index dimension must be positive, got %d", opts.Dimensions), nil)
	}

	switch strings.ToLower(cfg.Backend) {
	case "", BackendFlat:
		fs, err := NewFlatStore(FlatConfig{
			Dir:        cfg.VectorStoreDir,
			Dimensions: opts.Dimensions,
			Oversample: cfg.Oversample,
		})
		if err != nil {
			return nil, err
		}
		if err := fs.Load(ctx); err != nil {
			return nil, err
		}
		return fs, nil

	case BackendPostgres:
		db, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return finishRelational(ctx, db, pgdialect.New(), postgresSQL, cfg, opts)

	case BackendSQLite:
		db, err := openSQLite(cfg)
		if err != nil {
			return nil, err
		}
		return finishRelational(ctx, db, sqlitedialect.New(), sqliteSQL, cfg, opts)

	default:
		return nil, docerrors.ConfigError(fmt.Sprintf("unknown storage backend %q", cfg.Backend), nil).
			WithSuggestion("Use one of: flat, postgres, sqlite")
	}
}

func finishRelational(ctx context.Context, sqldb *sql.DB, dialect schema.Dialect, dsql dialectSQL, cfg config.StorageConfig, opts Options) (Backend, error) {
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.MaxOpenConns)
	}

	db := bun.NewDB(sqldb, dialect)
	if cfg.DebugSQL {
		w := opts.SQLLog
		if w == nil {
			w = os.Stderr
		}
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true), bundebug.WithWriter(w)))
	}

	s, err := newRelationalStore(ctx, db, dsql, opts.Dimensions)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("relational_store_opened",
		slog.String("backend", dsql.name),
		slog.Int("dimensions", opts.Dimensions))
	return s, nil
}

// openPostgres connects with pgdriver (default) or lib/pq and retries the
// initial ping, since the database often starts alongside the server.
func openPostgres(ctx context.Context, cfg config.StorageConfig) (*sql.DB, error) {
	if cfg.PostgresDSN == "" {
		return nil, docerrors.ConfigError("storage.postgres_dsn is required for the postgres backend", nil)
	}

	var sqldb *sql.DB
	switch strings.ToLower(cfg.PostgresDriver) {
	case "", "pgdriver":
		sqldb = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.PostgresDSN)))
	case "pq":
		var err error
		sqldb, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, docerrors.ConfigError("invalid postgres dsn", err)
		}
	default:
		return nil, docerrors.ConfigError(fmt.Sprintf("unknown postgres driver %q", cfg.PostgresDriver), nil)
	}

	retry := docerrors.DefaultRetryConfig()
	retry.Jitter = true
	err := docerrors.Retry(ctx, retry, func() error {
		if err := sqldb.PingContext(ctx); err != nil {
			return docerrors.NetworkError("postgres is unreachable", err)
		}
		return nil
	})
	if err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return sqldb, nil
}

var registerSQLiteFuncs sync.Once

// openSQLite opens the embedded database in WAL mode with the
// vec_cosine_distance function registered.
func openSQLite(cfg config.StorageConfig) (*sql.DB, error) {
	if cfg.SQLitePath == "" {
		return nil, docerrors.ConfigError("storage.sqlite_path is required for the sqlite backend", nil)
	}

	var regErr error
	registerSQLiteFuncs.Do(func() {
		regErr = sqlite.RegisterDeterministicScalarFunction("vec_cosine_distance", 2, sqliteCosineDistance)
	})
	if regErr != nil {
		return nil, docerrors.InternalError("failed to register vec_cosine_distance", regErr)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, docerrors.New(docerrors.ErrCodeFilePermission, "failed to create database directory", err)
	}

	dsn := cfg.SQLitePath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, docerrors.New(docerrors.ErrCodeIndexFailed, "failed to open sqlite database", err)
	}
	return sqldb, nil
}

// sqliteCosineDistance implements vec_cosine_distance(a, b) over vectors
// stored in text form.
func sqliteCosineDistance(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	var a, b Vector
	if err := a.Scan(args[0]); err != nil {
		return nil, err
	}
	if err := b.Scan(args[1]); err != nil {
		return nil, err
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("vec_cosine_distance: dimension mismatch %d vs %d", len(a), len(b))
	}
	return 1 - cosineSimilarity(a, b), nil
}
