package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/rzpsarthak13/docbridge/internal/config"
	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/logger"
)

// MySQLType is the type identifier of the MySQL JSON-document transport.
const MySQLType = "mysql"

const mysqlDefaultPort = 3306

// MySQL server error numbers.
const (
	mysqlErrTableExists    = 1050
	mysqlErrDuplicateEntry = 1062
	mysqlErrNoSuchTable    = 1146
)

func init() {
	RegisterFactory(&mysqlFactory{})
}

type mysqlFactory struct{}

func (f *mysqlFactory) Type() string     { return MySQLType }
func (f *mysqlFactory) DefaultPort() int { return mysqlDefaultPort }

func (f *mysqlFactory) Validate(cfg *config.StoreConfig) error {
	if cfg.Username == "" && cfg.URL == "" {
		return fmt.Errorf("store.username is required")
	}
	if cfg.MySQL.MaxOpenConns <= 0 {
		return fmt.Errorf("store.mysql.max_open_conns must be greater than 0")
	}
	if cfg.MySQL.MaxIdleConns < 0 {
		return fmt.Errorf("store.mysql.max_idle_conns must be non-negative")
	}
	if cfg.MySQL.MaxIdleConns > cfg.MySQL.MaxOpenConns {
		return fmt.Errorf("store.mysql.max_idle_conns cannot exceed max_open_conns")
	}
	return nil
}

func (f *mysqlFactory) Create(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	return NewMySQLStore(ctx, cfg)
}

// MySQLStore keeps each collection in a table of (id, JSON doc) rows.
type MySQLStore struct {
	db  *sql.DB
	log *slog.Logger
}

// NewMySQLStore opens a pool against the first resolved endpoint and pings it.
func NewMySQLStore(ctx context.Context, cfg config.StoreConfig) (*MySQLStore, error) {
	conn, err := config.ResolveConnection(cfg, mysqlDefaultPort)
	if err != nil {
		return nil, err
	}
	log := logger.Component("mysql")
	if len(conn.Endpoints) > 1 {
		log.Warn("multiple endpoints configured, using the first", "endpoints", conn.Addresses())
	}

	driverCfg := mysql.NewConfig()
	driverCfg.User = conn.Username
	driverCfg.Passwd = conn.Password
	driverCfg.Net = "tcp"
	driverCfg.Addr = conn.Endpoints[0].Address()
	driverCfg.DBName = conn.Database
	driverCfg.ParseTime = true
	driverCfg.Timeout = cfg.ConnectTimeout

	connector, err := mysql.NewConnector(driverCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure MySQL driver: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.MySQL.ConnMaxIdleTime)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("connected", "addr", driverCfg.Addr, "database", conn.Database)
	return &MySQLStore{db: db, log: log}, nil
}

func (s *MySQLStore) Type() string { return MySQLType }

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func (s *MySQLStore) Find(ctx context.Context, plan *core.Plan) ([]core.Record, error) {
	query, args, err := mysqlSelect(plan)
	if err != nil {
		return nil, err
	}
	s.log.Debug("executing query", "query", query, "args", args)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if isMySQLError(err, mysqlErrNoSuchTable) {
			return []core.Record{}, nil
		}
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	out := []core.Record{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec, err := DecodeDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func (s *MySQLStore) Get(ctx context.Context, collection string, id any) (core.Record, error) {
	query := "SELECT " + mysqlDocColumn + " FROM " + quoteIdent(collection) + " WHERE " + mysqlIDColumn + " = ?"

	var doc []byte
	err := s.db.QueryRowContext(ctx, query, KeyOf(id)).Scan(&doc)
	switch {
	case errors.Is(err, sql.ErrNoRows), isMySQLError(err, mysqlErrNoSuchTable):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get %v from %s: %w", id, collection, err)
	}
	return DecodeDocument(doc)
}

func (s *MySQLStore) Insert(ctx context.Context, collection string, record core.Record, conflict core.ConflictPolicy) (*core.WriteResult, error) {
	doc := record.Clone()
	result := &core.WriteResult{}
	if doc.ID() == nil {
		id := uuid.NewString()
		doc[core.IDField] = id
		result.GeneratedKeys = []any{id}
	}

	write := func() error {
		if conflict == core.ConflictUpdate {
			return s.upsert(ctx, collection, doc, result)
		}
		return s.insert(ctx, collection, doc, result)
	}

	err := write()
	if isMySQLError(err, mysqlErrNoSuchTable) {
		if err := s.CreateCollection(ctx, collection); err != nil && !isMySQLError(err, mysqlErrTableExists) {
			return nil, err
		}
		err = write()
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *MySQLStore) insert(ctx context.Context, collection string, doc core.Record, result *core.WriteResult) error {
	body, err := EncodeDocument(doc)
	if err != nil {
		return err
	}

	query := "INSERT INTO " + quoteIdent(collection) + " (" + mysqlIDColumn + ", " + mysqlDocColumn + ") VALUES (?, ?)"
	if _, err := s.db.ExecContext(ctx, query, KeyOf(doc.ID()), string(body)); err != nil {
		if isMySQLError(err, mysqlErrDuplicateEntry) {
			return fmt.Errorf("%w: %v in %q", core.ErrDuplicateKey, doc.ID(), collection)
		}
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	result.Inserted = 1
	result.Changes = []core.Change{{New: doc}}
	return nil
}

// upsert locks the existing row, merges in Go and writes the result back.
func (s *MySQLStore) upsert(ctx context.Context, collection string, doc core.Record, result *core.WriteResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	table := quoteIdent(collection)
	key := KeyOf(doc.ID())

	var existing []byte
	err = tx.QueryRowContext(ctx, "SELECT "+mysqlDocColumn+" FROM "+table+" WHERE "+mysqlIDColumn+" = ? FOR UPDATE", key).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	merged := doc
	var old core.Record
	if existing != nil {
		if old, err = DecodeDocument(existing); err != nil {
			return err
		}
		merged = old.Clone().Merge(doc)
	}

	body, err := EncodeDocument(merged)
	if err != nil {
		return err
	}

	if old == nil {
		_, err = tx.ExecContext(ctx, "INSERT INTO "+table+" ("+mysqlIDColumn+", "+mysqlDocColumn+") VALUES (?, ?)", key, string(body))
	} else {
		_, err = tx.ExecContext(ctx, "UPDATE "+table+" SET "+mysqlDocColumn+" = ? WHERE "+mysqlIDColumn+" = ?", string(body), key)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", collection, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}

	switch {
	case old == nil:
		result.Inserted = 1
	case sameRecord(old, merged):
		result.Unchanged = 1
	default:
		result.Replaced = 1
	}
	result.Changes = []core.Change{{Old: old, New: merged}}
	return nil
}

func (s *MySQLStore) Update(ctx context.Context, collection string, pred core.Expr, fields core.Record) (*core.WriteResult, error) {
	if _, hasID := fields[core.IDField]; len(fields) == 0 || (len(fields) == 1 && hasID) {
		n, err := s.Count(ctx, collection, pred)
		if err != nil {
			return nil, err
		}
		return &core.WriteResult{Unchanged: n}, nil
	}

	query, args, err := mysqlUpdate(collection, pred, fields)
	if err != nil {
		return nil, err
	}
	s.log.Debug("executing statement", "query", query, "args", args)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isMySQLError(err, mysqlErrNoSuchTable) {
			return &core.WriteResult{}, nil
		}
		return nil, fmt.Errorf("failed to update %s: %w", collection, err)
	}
	affected, _ := res.RowsAffected()
	return &core.WriteResult{Replaced: affected}, nil
}

func (s *MySQLStore) Delete(ctx context.Context, collection string, pred core.Expr) (*core.WriteResult, error) {
	query, args, err := mysqlDelete(collection, pred)
	if err != nil {
		return nil, err
	}
	s.log.Debug("executing statement", "query", query, "args", args)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isMySQLError(err, mysqlErrNoSuchTable) {
			return &core.WriteResult{}, nil
		}
		return nil, fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	affected, _ := res.RowsAffected()
	return &core.WriteResult{Deleted: affected}, nil
}

func (s *MySQLStore) Count(ctx context.Context, collection string, pred core.Expr) (int64, error) {
	query, args, err := mysqlCount(collection, pred)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		if isMySQLError(err, mysqlErrNoSuchTable) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return n, nil
}

func (s *MySQLStore) ListCollections(ctx context.Context) ([]string, error) {
	query := `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return names, nil
}

func (s *MySQLStore) CreateCollection(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, mysqlCreateTable(name)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	s.log.Debug("created table", "table", name)
	return nil
}

func (s *MySQLStore) ListIndexes(ctx context.Context, collection string) ([]string, error) {
	query := `
		SELECT DISTINCT INDEX_NAME
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND INDEX_NAME <> 'PRIMARY'
		ORDER BY INDEX_NAME
	`
	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating indexes: %w", err)
	}
	return names, nil
}

func (s *MySQLStore) CreateIndex(ctx context.Context, collection string, spec core.IndexSpec) error {
	ddl, err := mysqlCreateIndex(collection, spec)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create index %s on %s: %w", spec.Name, collection, err)
	}
	s.log.Debug("created index", "table", collection, "index", spec.Name)
	return nil
}

func isMySQLError(err error, number uint16) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == number
}
