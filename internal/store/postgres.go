package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/halofn/halo/internal/config"
	"github.com/halofn/halo/internal/domain"
)

// PostgresStore 是基于 PostgreSQL 的持久化存储实现。
// 函数定义与审计日志存放在关系表中，文档集合以 JSONB 行存放，
// 过滤条件通过 @> 包含查询下推到数据库。
type PostgresStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewPostgresStore 创建 PostgreSQL 存储并初始化表结构。
func NewPostgresStore(cfg config.PostgresConfig, logger *logrus.Logger) (*PostgresStore, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageConnection, err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections / 2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageConnection, err)
	}

	s := &PostgresStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"database": cfg.Database,
	}).Info("Connected to PostgreSQL")
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS functions (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		tags            TEXT[] NOT NULL DEFAULT '{}',
		source          TEXT NOT NULL,
		compiled_code   TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT 'active',
		cron_expression TEXT NOT NULL DEFAULT '',
		version         INTEGER NOT NULL DEFAULT 1,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_functions_name ON functions (name, created_at);

	CREATE TABLE IF NOT EXISTS function_logs (
		id         TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		func_id    TEXT NOT NULL,
		func_name  TEXT NOT NULL,
		logs       TEXT[] NOT NULL DEFAULT '{}',
		time_usage BIGINT NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_function_logs_func_id ON function_logs (func_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		data       JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents (collection);
	CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING GIN (data);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("%w: init schema: %v", domain.ErrStorageQuery, err)
	}
	return nil
}

// Ping 检查数据库连接是否可用。
func (s *PostgresStore) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageConnection, err)
	}
	return nil
}

// Close 关闭数据库连接。
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// RawDB 暴露底层连接，供健康检查等低层用途使用。
func (s *PostgresStore) RawDB() *sql.DB {
	return s.db
}

// ========== domain.FunctionRepository ==========

const functionColumns = `id, name, description, tags, source, compiled_code, status, cron_expression, version, created_at, updated_at`

func (s *PostgresStore) Create(fn *domain.Function) error {
	_, err := s.db.Exec(`
		INSERT INTO functions (`+functionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		fn.ID, fn.Name, fn.Description, pq.Array(fn.Tags), fn.Source, fn.CompiledCode,
		string(fn.Status), fn.CronExpression, fn.Version, fn.CreatedAt, fn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert function: %v", domain.ErrStorageQuery, err)
	}
	return nil
}

func (s *PostgresStore) GetByID(id string) (*domain.Function, error) {
	row := s.db.QueryRow(`SELECT `+functionColumns+` FROM functions WHERE id = $1`, id)
	return scanFunction(row)
}

// GetByName 按名查找函数。名称不保证唯一，同名时返回最先创建的那个。
func (s *PostgresStore) GetByName(name string) (*domain.Function, error) {
	row := s.db.QueryRow(`
		SELECT `+functionColumns+`
		FROM functions WHERE name = $1
		ORDER BY created_at ASC LIMIT 1`, name)
	return scanFunction(row)
}

func scanFunction(row *sql.Row) (*domain.Function, error) {
	var fn domain.Function
	var status string
	err := row.Scan(&fn.ID, &fn.Name, &fn.Description, pq.Array(&fn.Tags), &fn.Source,
		&fn.CompiledCode, &status, &fn.CronExpression, &fn.Version, &fn.CreatedAt, &fn.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrFunctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan function: %v", domain.ErrStorageQuery, err)
	}
	fn.Status = domain.FunctionStatus(status)
	return &fn, nil
}

func (s *PostgresStore) List(offset, limit int) ([]*domain.Function, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM functions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count functions: %v", domain.ErrStorageQuery, err)
	}

	rows, err := s.db.Query(`
		SELECT `+functionColumns+`
		FROM functions ORDER BY created_at ASC
		OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list functions: %v", domain.ErrStorageQuery, err)
	}
	defer rows.Close()

	var out []*domain.Function
	for rows.Next() {
		var fn domain.Function
		var status string
		if err := rows.Scan(&fn.ID, &fn.Name, &fn.Description, pq.Array(&fn.Tags), &fn.Source,
			&fn.CompiledCode, &status, &fn.CronExpression, &fn.Version, &fn.CreatedAt, &fn.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("%w: scan function: %v", domain.ErrStorageQuery, err)
		}
		fn.Status = domain.FunctionStatus(status)
		out = append(out, &fn)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterate functions: %v", domain.ErrStorageQuery, err)
	}
	return out, total, nil
}

func (s *PostgresStore) Update(fn *domain.Function) error {
	res, err := s.db.Exec(`
		UPDATE functions SET
			name = $2, description = $3, tags = $4, source = $5, compiled_code = $6,
			status = $7, cron_expression = $8, version = $9, updated_at = $10
		WHERE id = $1`,
		fn.ID, fn.Name, fn.Description, pq.Array(fn.Tags), fn.Source, fn.CompiledCode,
		string(fn.Status), fn.CronExpression, fn.Version, fn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: update function: %v", domain.ErrStorageQuery, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", domain.ErrStorageQuery, err)
	}
	if n == 0 {
		return domain.ErrFunctionNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM functions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete function: %v", domain.ErrStorageQuery, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", domain.ErrStorageQuery, err)
	}
	if n == 0 {
		return domain.ErrFunctionNotFound
	}
	return nil
}

// ========== domain.FunctionLogRepository ==========

func (s *PostgresStore) Insert(entry *domain.FunctionLog) error {
	_, err := s.db.Exec(`
		INSERT INTO function_logs (id, request_id, func_id, func_name, logs, time_usage, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.RequestID, entry.FuncID, entry.FuncName, pq.Array(entry.Logs),
		entry.TimeUsage, entry.CreatedBy, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert log: %v", domain.ErrLogStoreFailed, err)
	}
	return nil
}

func (s *PostgresStore) ListByFunction(funcID string, offset, limit int) ([]*domain.FunctionLog, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM function_logs WHERE func_id = $1`, funcID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count logs: %v", domain.ErrStorageQuery, err)
	}

	rows, err := s.db.Query(`
		SELECT id, request_id, func_id, func_name, logs, time_usage, created_by, created_at, updated_at
		FROM function_logs WHERE func_id = $1
		ORDER BY created_at DESC OFFSET $2 LIMIT $3`, funcID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list logs: %v", domain.ErrStorageQuery, err)
	}
	defer rows.Close()

	logs, err := scanLogs(rows)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func (s *PostgresStore) ListRecent(limit int) ([]*domain.FunctionLog, error) {
	rows, err := s.db.Query(`
		SELECT id, request_id, func_id, func_name, logs, time_usage, created_by, created_at, updated_at
		FROM function_logs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list recent logs: %v", domain.ErrStorageQuery, err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

func scanLogs(rows *sql.Rows) ([]*domain.FunctionLog, error) {
	var out []*domain.FunctionLog
	for rows.Next() {
		var l domain.FunctionLog
		if err := rows.Scan(&l.ID, &l.RequestID, &l.FuncID, &l.FuncName, pq.Array(&l.Logs),
			&l.TimeUsage, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan log: %v", domain.ErrStorageQuery, err)
		}
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate logs: %v", domain.ErrStorageQuery, err)
	}
	return out, nil
}

// ========== DocumentDB ==========

// Collection 返回指定名称的集合句柄。
func (s *PostgresStore) Collection(name string) Collection {
	return &pgCollection{store: s, name: name}
}

type pgCollection struct {
	store *PostgresStore
	name  string
}

func (c *pgCollection) Add(ctx context.Context, doc map[string]interface{}) (string, error) {
	id := newDocumentID()
	cp := make(map[string]interface{}, len(doc)+1)
	for k, v := range doc {
		cp[k] = v
	}
	cp["_id"] = id

	data, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("%w: marshal document: %v", domain.ErrStorageQuery, err)
	}
	_, err = c.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, collection, data) VALUES ($1, $2, $3)`,
		id, c.name, data)
	if err != nil {
		return "", fmt.Errorf("%w: insert document: %v", domain.ErrStorageQuery, err)
	}
	return id, nil
}

func (c *pgCollection) Where(filter map[string]interface{}) Query {
	return &pgQuery{col: c, filter: filter}
}

type pgQuery struct {
	col    *pgCollection
	filter map[string]interface{}
}

func (q *pgQuery) GetOne(ctx context.Context) (map[string]interface{}, error) {
	docs, err := q.query(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: collection %s", domain.ErrDocumentNotFound, q.col.name)
	}
	return docs[0], nil
}

func (q *pgQuery) Get(ctx context.Context) ([]map[string]interface{}, error) {
	return q.query(ctx, 0)
}

// query 将等值过滤条件编译为 JSONB 包含查询（data @> filter）。
func (q *pgQuery) query(ctx context.Context, limit int) ([]map[string]interface{}, error) {
	filter, err := json.Marshal(q.filter)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal filter: %v", domain.ErrStorageQuery, err)
	}

	sqlText := `SELECT data FROM documents WHERE collection = $1 AND data @> $2 ORDER BY created_at ASC`
	args := []interface{}{q.col.name, filter}
	if limit > 0 {
		sqlText += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := q.col.store.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query documents: %v", domain.ErrStorageQuery, err)
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%w: scan document: %v", domain.ErrStorageQuery, err)
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%w: unmarshal document: %v", domain.ErrStorageQuery, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate documents: %v", domain.ErrStorageQuery, err)
	}
	return out, nil
}
