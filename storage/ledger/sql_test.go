package ledger

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/solusnoir/solus/config"
)

func TestSQLLedger_RecordAndMirrored_PostgresPlaceholders(t *testing.T) {
	ledger, mock := newSQLTestLedger(t, "postgres", nil)
	ctx := context.Background()
	at := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)

	if !strings.Contains(ledger.upsertQuery(), "$5") || !strings.Contains(ledger.upsertQuery(), "ON CONFLICT (filename)") {
		t.Fatalf("unexpected postgres upsert: %s", ledger.upsertQuery())
	}

	mock.ExpectExec(regexp.QuoteMeta(ledger.upsertQuery())).
		WithArgs("newbeat.wav", "beat", "beats", "etag-1", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := ledger.Record(ctx, Entry{Filename: "newbeat.wav", Category: "beat", Bucket: "beats", RemoteID: "etag-1", MirroredAt: at})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(ledger.selectQuery())).
		WillReturnRows(sqlmock.NewRows([]string{"filename", "category", "bucket", "remote_id", "mirrored_at"}).
			AddRow("newbeat.wav", "beat", "beats", "etag-1", at).
			AddRow("demo.wav", "upload", "uploads", "etag-2", at))

	entries, err := ledger.Mirrored(ctx)
	if err != nil {
		t.Fatalf("mirrored failed: %v", err)
	}

	if len(entries) != 2 || entries["newbeat.wav"].RemoteID != "etag-1" || entries["demo.wav"].Bucket != "uploads" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLLedger_Record_MySQLPlaceholders(t *testing.T) {
	ledger, mock := newSQLTestLedger(t, "mysql", nil)

	if strings.Contains(ledger.upsertQuery(), "$1") || !strings.Contains(ledger.upsertQuery(), "ON DUPLICATE KEY UPDATE") {
		t.Fatalf("unexpected mysql upsert: %s", ledger.upsertQuery())
	}

	mock.ExpectExec(regexp.QuoteMeta(ledger.upsertQuery())).
		WithArgs("take.wav", "upload", "uploads", "id-9", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := ledger.Record(context.Background(), Entry{Filename: "take.wav", Category: "upload", Bucket: "uploads", RemoteID: "id-9"}); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLLedger_RecordErrors(t *testing.T) {
	ledger, mock := newSQLTestLedger(t, "postgres", nil)

	if err := ledger.Record(context.Background(), Entry{}); err == nil {
		t.Fatalf("expected error for entry without filename")
	}

	mock.ExpectExec(regexp.QuoteMeta(ledger.upsertQuery())).
		WillReturnError(errors.New("connection refused"))

	if err := ledger.Record(context.Background(), Entry{Filename: "a.mp3"}); err == nil {
		t.Fatalf("expected exec error to surface")
	}
}

func TestSQLLedger_MirroredQueryError(t *testing.T) {
	ledger, mock := newSQLTestLedger(t, "mysql", nil)

	mock.ExpectQuery(regexp.QuoteMeta(ledger.selectQuery())).WillReturnError(sql.ErrConnDone)

	if _, err := ledger.Mirrored(context.Background()); !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("expected ErrConnDone, got %v", err)
	}
}

func TestNewSQLLedger_UnsupportedDriver(t *testing.T) {
	cfg := &config.SQLLedgerStrategy{Driver: "sqlite", DSN: "ignored"}
	if _, err := newSQLLedgerWithDB(cfg, nil); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestNewSQLLedger_TablePrefix(t *testing.T) {
	shared := "shared"
	empty := ""

	cases := []struct {
		prefix *string
		want   string
	}{
		{nil, "solus_mirrors"},
		{&shared, "shared_mirrors"},
		{&empty, "mirrors"},
	}

	for _, tc := range cases {
		cfg := &config.SQLLedgerStrategy{Driver: "postgres", DSN: "ignored", TablePrefix: tc.prefix}
		ledger, err := newSQLLedgerWithDB(cfg, nil)
		if err != nil {
			t.Fatalf("ledger setup failed: %v", err)
		}
		if ledger.table != tc.want {
			t.Fatalf("expected table %s, got %s", tc.want, ledger.table)
		}
	}
}

func TestNewSQLLedger_InitSchemaFailure(t *testing.T) {
	cfg := &config.SQLLedgerStrategy{Driver: "mysql", DSN: "user:pass@tcp(127.0.0.1:0)/db"}

	ledger, err := NewSQLLedger(cfg)
	if err == nil {
		_ = ledger.Close()
		t.Fatalf("expected schema/init to fail for unreachable database")
	}

	var opErr *net.OpError
	if !errors.As(err, &opErr) && !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("unexpected error type: %v", err)
	}
}

func TestCreate(t *testing.T) {
	l, err := Create(&config.Ledger{Strategy: "none"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := l.(NoopLedger); !ok {
		t.Fatalf("unexpected ledger type %T", l)
	}

	entries, err := l.Mirrored(context.Background())
	if err != nil || entries == nil || len(entries) != 0 {
		t.Fatalf("expected empty map from noop ledger, got %v %v", entries, err)
	}

	if _, err := Create(&config.Ledger{Strategy: "bogus"}); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
	if _, err := Create(&config.Ledger{Strategy: "sql"}); err == nil {
		t.Fatalf("expected error for sql strategy without config")
	}
}

func newSQLTestLedger(t *testing.T, driver string, prefix *string) (*SQLLedger, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.SQLLedgerStrategy{Driver: driver, DSN: "ignored", TablePrefix: prefix}
	ledger, err := newSQLLedgerWithDB(cfg, db)
	if err != nil {
		t.Fatalf("ledger setup: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(ledger.schemaQuery())).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := ledger.initSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	return ledger, mock
}
