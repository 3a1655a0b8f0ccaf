package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/logger"
	"github.com/objectledge/coral/internal/querysql"
	"github.com/objectledge/coral/internal/schema"
)

//go:embed schema.sql
var schemaSQL string

// driverName is go-sqlite3 with the functions compiled queries call.
const driverName = "sqlite3_coral"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc(querysql.LowerFunc, lowerText, true)
		},
	})
}

// lowerText implements querysql.LowerFunc. SQLite's LOWER folds ASCII
// only. NULL arrives as a nil []byte and stays NULL.
func lowerText(v any) any {
	switch x := v.(type) {
	case string:
		return querysql.FoldCase(x)
	case []byte:
		if x == nil {
			return nil
		}
		return querysql.FoldCase(string(x))
	default:
		return v
	}
}

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on coral_generic_resource.attribute_definition_id
const currentSchemaVersion = ir.SchemaVersion

// Clock supplies creation and modification times.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Store provides durable storage for a coral schema and its resources.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db    *sql.DB
	log   *zap.SugaredLogger
	clock Clock
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock sets the clock used to stamp resources.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//   - Case-sensitive LIKE
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{db: db, clock: systemClock{}}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.Or(s.log)
	s.log.Debugw("store opened", "path", path, "schema_version", currentSchemaVersion)
	return s, nil
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// LoadSchema reads the persisted schema.
func (s *Store) LoadSchema(ctx context.Context) (*ir.SchemaSnapshot, error) {
	snap := &ir.SchemaSnapshot{}

	err := s.each(ctx, `SELECT attribute_class_id, name, native_type, handler, db_table
		FROM coral_attribute_class ORDER BY attribute_class_id`, func(rows *sql.Rows) error {
		var r ir.AttributeClassRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.NativeType, &r.Handler, &r.DBTable); err != nil {
			return err
		}
		snap.AttributeClasses = append(snap.AttributeClasses, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.each(ctx, `SELECT resource_class_id, name, native_type, handler, db_table, flags
		FROM coral_resource_class ORDER BY resource_class_id`, func(rows *sql.Rows) error {
		var r ir.ResourceClassRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.NativeType, &r.Handler, &r.DBTable, &r.Flags); err != nil {
			return err
		}
		snap.ResourceClasses = append(snap.ResourceClasses, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.each(ctx, `SELECT attribute_definition_id, name, attribute_class_id, resource_class_id, domain, flags
		FROM coral_attribute_definition ORDER BY attribute_definition_id`, func(rows *sql.Rows) error {
		var r ir.AttributeRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.TypeID, &r.ClassID, &r.Domain, &r.Flags); err != nil {
			return err
		}
		snap.Attributes = append(snap.Attributes, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.each(ctx, `SELECT parent, child FROM coral_resource_class_inheritance
		ORDER BY child, rowid`, func(rows *sql.Rows) error {
		var r ir.InheritanceRecord
		if err := rows.Scan(&r.Parent, &r.Child); err != nil {
			return err
		}
		snap.Inheritance = append(snap.Inheritance, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.each(ctx, `SELECT resource_class_id, permission FROM coral_resource_class_permission
		ORDER BY resource_class_id, permission`, func(rows *sql.Rows) error {
		var r ir.PermissionRecord
		if err := rows.Scan(&r.ClassID, &r.Permission); err != nil {
			return err
		}
		snap.Permissions = append(snap.Permissions, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// each runs query and calls fn for every row.
func (s *Store) each(ctx context.Context, query string, fn func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return errors.NewBackendError("load schema", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return errors.NewBackendError("load schema", err)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.NewBackendError("load schema", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA case_sensitive_like = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist, seeds the node class
// and runs migrations. This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	_, err := db.Exec(`INSERT OR IGNORE INTO coral_resource_class
		(resource_class_id, name, native_type, handler, db_table, flags)
		VALUES (?, ?, ?, ?, '', ?)`,
		int64(schema.NodeID), schema.NodeClass, schema.NativeResource, schema.StorageGeneric,
		int64(ir.ClassBuiltin|ir.ClassAbstract))
	if err != nil {
		return fmt.Errorf("failed to seed node class: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the attribute index on coral_generic_resource for
// databases created before schema.sql declared it.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_generic_attribute
		ON coral_generic_resource(attribute_definition_id)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
