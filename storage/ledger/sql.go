package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/solusnoir/solus/config"
)

type placeholderStyle int

const (
	placeholderQuestion placeholderStyle = iota
	placeholderDollar
)

// SQLLedger keeps entries in a single table on Postgres or MySQL. MySQL DSNs
// need parseTime=true so mirrored_at scans into a time.Time.
type SQLLedger struct {
	db          *sql.DB
	table       string
	placeholder placeholderStyle
}

func NewSQLLedger(cfg *config.SQLLedgerStrategy) (*SQLLedger, error) {
	ledger, err := newSQLLedgerWithDB(cfg, nil)
	if err != nil {
		return nil, err
	}

	driverName, err := resolveSQLDriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, err
	}

	ledger.db = db

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ledger.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return ledger, nil
}

func newSQLLedgerWithDB(cfg *config.SQLLedgerStrategy, db *sql.DB) (*SQLLedger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ledger sql config is nil")
	}

	prefix := "solus"
	if cfg.TablePrefix != nil {
		prefix = *cfg.TablePrefix
	}

	table := "mirrors"
	if prefix != "" {
		table = prefix + "_mirrors"
	}

	placeholder, err := detectPlaceholderStyle(cfg.Driver)
	if err != nil {
		return nil, err
	}

	return &SQLLedger{
		db:          db,
		table:       table,
		placeholder: placeholder,
	}, nil
}

func detectPlaceholderStyle(driver string) (placeholderStyle, error) {
	driverName, err := resolveSQLDriverName(driver)
	if err != nil {
		return placeholderQuestion, err
	}

	if driverName == "pgx" {
		return placeholderDollar, nil
	}

	return placeholderQuestion, nil
}

func resolveSQLDriverName(driver string) (string, error) {
	switch strings.ToLower(driver) {
	case "postgres":
		return "pgx", nil
	case "mysql":
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported sql driver %q", driver)
	}
}

func (l *SQLLedger) initSchema(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, l.schemaQuery())
	return err
}

func (l *SQLLedger) schemaQuery() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
filename VARCHAR(255) PRIMARY KEY,
category VARCHAR(16) NOT NULL,
bucket VARCHAR(255) NOT NULL,
remote_id VARCHAR(255) NOT NULL,
mirrored_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, l.table)
}

func (l *SQLLedger) Record(ctx context.Context, e Entry) error {
	if e.Filename == "" {
		return fmt.Errorf("ledger entry has no filename")
	}

	at := e.MirroredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if _, err := l.db.ExecContext(ctx, l.upsertQuery(), e.Filename, e.Category, e.Bucket, e.RemoteID, at); err != nil {
		return fmt.Errorf("record mirror of %q: %w", e.Filename, err)
	}

	return nil
}

func (l *SQLLedger) Mirrored(ctx context.Context) (map[string]Entry, error) {
	rows, err := l.db.QueryContext(ctx, l.selectQuery())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make(map[string]Entry)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Filename, &e.Category, &e.Bucket, &e.RemoteID, &e.MirroredAt); err != nil {
			return nil, err
		}
		entries[e.Filename] = e
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func (l *SQLLedger) Close() error {
	if l.db == nil {
		return nil
	}

	return l.db.Close()
}

func (l *SQLLedger) upsertQuery() string {
	insert := fmt.Sprintf(
		"INSERT INTO %s (filename, category, bucket, remote_id, mirrored_at) VALUES (%s, %s, %s, %s, %s)",
		l.table,
		l.placeholderFor(1),
		l.placeholderFor(2),
		l.placeholderFor(3),
		l.placeholderFor(4),
		l.placeholderFor(5),
	)

	if l.placeholder == placeholderDollar {
		return insert + " ON CONFLICT (filename) DO UPDATE SET category = EXCLUDED.category, bucket = EXCLUDED.bucket, remote_id = EXCLUDED.remote_id, mirrored_at = EXCLUDED.mirrored_at"
	}

	return insert + " ON DUPLICATE KEY UPDATE category = VALUES(category), bucket = VALUES(bucket), remote_id = VALUES(remote_id), mirrored_at = VALUES(mirrored_at)"
}

func (l *SQLLedger) selectQuery() string {
	return fmt.Sprintf("SELECT filename, category, bucket, remote_id, mirrored_at FROM %s", l.table)
}

func (l *SQLLedger) placeholderFor(index int) string {
	if l.placeholder == placeholderDollar {
		return fmt.Sprintf("$%d", index)
	}

	return "?"
}
