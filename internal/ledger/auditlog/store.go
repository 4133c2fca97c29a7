// Package auditlog keeps the append-only operational trail (alerts and
// end-of-run reports) in its own sqlite file, separate from the ledger.
// 独立存放，方便直接拷走排查；写入后永不改写。
package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages the audit database.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// AlertRecord 是一条已发出的告警。
type AlertRecord struct {
	ID        int64          `json:"id"`
	Severity  string         `json:"severity"`
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt int64          `json:"created_at"`
}

// RunReportRecord 是一次运行的终稿摘要。
type RunReportRecord struct {
	ID             int64          `json:"id"`
	RunDate        string         `json:"run_date"`
	TraceID        string         `json:"trace_id"`
	Halted         bool           `json:"halted"`
	HaltReason     string         `json:"halt_reason,omitempty"`
	FunnelCounts   map[string]int `json:"funnel_counts"`
	TerminalCounts map[string]int `json:"terminal_counts"`
	TradesExecuted int            `json:"trades_executed"`
	RealizedPnL    int64          `json:"realized_pnl_cents"`
	Reconciliation string         `json:"reconciliation"`
	SafetyState    string         `json:"safety_state"`
	PortfolioValue int64          `json:"portfolio_value_cents"`
	CreatedAt      int64          `json:"created_at"`
}

// NewStore 初始化 SQLite 审计存储。
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("audit log path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureAuditSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close 关闭底层 DB。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureAuditSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			severity TEXT NOT NULL,
			kind TEXT NOT NULL,
			message TEXT NOT NULL,
			context_json TEXT,
			created_at INTEGER NOT NULL
		);
		`,
		`CREATE TABLE IF NOT EXISTS run_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_date TEXT NOT NULL,
			trace_id TEXT NOT NULL,
			halted INTEGER NOT NULL,
			halt_reason TEXT,
			funnel_json TEXT,
			terminal_json TEXT,
			trades_executed INTEGER NOT NULL,
			realized_pnl_cents INTEGER NOT NULL,
			reconciliation TEXT,
			safety_state TEXT,
			portfolio_value_cents INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_kind ON alerts(kind);`,
		`CREATE INDEX IF NOT EXISTS idx_run_reports_date ON run_reports(run_date);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AppendAlert 落库一条告警。
func (s *Store) AppendAlert(ctx context.Context, rec AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("audit store closed")
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	var ctxJSON []byte
	if len(rec.Context) > 0 {
		b, err := json.Marshal(rec.Context)
		if err != nil {
			return fmt.Errorf("序列化 alert context 失败: %w", err)
		}
		ctxJSON = b
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (severity, kind, message, context_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.Severity, rec.Kind, rec.Message, string(ctxJSON), rec.CreatedAt)
	return err
}

// ListAlerts 返回最近的告警（新在前）。
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("audit store closed")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, severity, kind, message, context_json, created_at FROM alerts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AlertRecord
	for rows.Next() {
		var rec AlertRecord
		var ctxJSON sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Severity, &rec.Kind, &rec.Message, &ctxJSON, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if ctxJSON.Valid && ctxJSON.String != "" {
			_ = json.Unmarshal([]byte(ctxJSON.String), &rec.Context)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendRunReport 落库一次运行摘要。
func (s *Store) AppendRunReport(ctx context.Context, rec RunReportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("audit store closed")
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	funnelJSON, err := json.Marshal(rec.FunnelCounts)
	if err != nil {
		return err
	}
	terminalJSON, err := json.Marshal(rec.TerminalCounts)
	if err != nil {
		return err
	}
	halted := 0
	if rec.Halted {
		halted = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_reports (run_date, trace_id, halted, halt_reason, funnel_json, terminal_json,
			trades_executed, realized_pnl_cents, reconciliation, safety_state, portfolio_value_cents, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunDate, rec.TraceID, halted, rec.HaltReason, string(funnelJSON), string(terminalJSON),
		rec.TradesExecuted, rec.RealizedPnL, rec.Reconciliation, rec.SafetyState, rec.PortfolioValue, rec.CreatedAt)
	return err
}

// LatestRunReport 返回最近一次运行摘要。
func (s *Store) LatestRunReport(ctx context.Context) (*RunReportRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, false, fmt.Errorf("audit store closed")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_date, trace_id, halted, halt_reason, funnel_json, terminal_json,
			trades_executed, realized_pnl_cents, reconciliation, safety_state, portfolio_value_cents, created_at
		 FROM run_reports ORDER BY id DESC LIMIT 1`)
	var rec RunReportRecord
	var halted int
	var funnelJSON, terminalJSON, haltReason, reconciliation, safetyState sql.NullString
	err := row.Scan(&rec.ID, &rec.RunDate, &rec.TraceID, &halted, &haltReason, &funnelJSON, &terminalJSON,
		&rec.TradesExecuted, &rec.RealizedPnL, &reconciliation, &safetyState, &rec.PortfolioValue, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec.Halted = halted != 0
	rec.HaltReason = haltReason.String
	rec.Reconciliation = reconciliation.String
	rec.SafetyState = safetyState.String
	if funnelJSON.Valid && funnelJSON.String != "" {
		_ = json.Unmarshal([]byte(funnelJSON.String), &rec.FunnelCounts)
	}
	if terminalJSON.Valid && terminalJSON.String != "" {
		_ = json.Unmarshal([]byte(terminalJSON.String), &rec.TerminalCounts)
	}
	return &rec, true, nil
}
