package postgres

/*
Файл audit_repo.go — экспорт журнала аудита песочницы в PostgreSQL.
Это write-only sink: состояние песочницы остается в памяти.
*/

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
	"github.com/xela07ax/aasp-sandbox/internal/audit"
)

// auditColumns — порядок колонок в INSERT и в плейсхолдерах.
var auditColumns = []string{
	"id", "kind", "action_id", "approval_id", "agent_id", "action_type", "target",
	"params", "decision", "reason", "policy_id", "decided_by", "duration_ms", "timestamp",
}

const auditSchema = `CREATE TABLE IF NOT EXISTS audit_records (
	id          UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	action_id   TEXT NOT NULL,
	approval_id TEXT,
	agent_id    TEXT NOT NULL,
	action_type TEXT NOT NULL,
	target      TEXT NOT NULL,
	params      JSONB,
	decision    TEXT NOT NULL,
	reason      TEXT,
	policy_id   TEXT,
	decided_by  TEXT,
	duration_ms DOUBLE PRECISION,
	timestamp   TIMESTAMPTZ NOT NULL
)`

type AuditRepo struct {
	db *sql.DB
}

type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func NewAuditRepo(connString string, opts PoolOptions) (*AuditRepo, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 25
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = opts.MaxOpenConns
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	return &AuditRepo{db: db}, nil
}

// NewAuditRepoFromDB — для тестов и внешнего управления пулом.
func NewAuditRepoFromDB(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Init проверяет соединение и создает таблицу, если ее нет.
func (r *AuditRepo) Init(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("postgres: create audit_records: %w", err)
	}
	return nil
}

func (r *AuditRepo) Close() error {
	return r.db.Close()
}

func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	query, vals, err := buildAuditInsert(events)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: insert audit batch: %w", err)
	}
	return nil
}

// buildAuditInsert динамически строит запрос для пакетной вставки.
func buildAuditInsert(events []audit.AuditEvent) (string, []interface{}, error) {
	numFields := len(auditColumns)
	rows := make([]string, 0, len(events))
	vals := make([]interface{}, 0, len(events)*numFields)

	for i, e := range events {
		placeholders := make([]string, numFields)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", i*numFields+j+1)
		}
		rows = append(rows, "("+strings.Join(placeholders, ", ")+")")

		params, err := json.Marshal(e.Params)
		if err != nil {
			return "", nil, fmt.Errorf("postgres: encode params of %s: %w", e.ActionID, err)
		}

		vals = append(vals,
			e.ID, e.Kind, e.ActionID, nullString(e.ApprovalID), e.AgentID, string(e.ActionType), e.Target,
			params, string(e.Decision), e.Reason, nullString(e.PolicyID), nullString(e.DecidedBy),
			e.DurationMs, e.Timestamp,
		)
	}

	query := fmt.Sprintf("INSERT INTO audit_records (%s) VALUES %s",
		strings.Join(auditColumns, ", "),
		strings.Join(rows, ", "),
	)
	return query, vals, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
