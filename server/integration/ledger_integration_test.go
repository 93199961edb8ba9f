//go:build testcontainers
// +build testcontainers

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/solusnoir/solus/config"
	"github.com/solusnoir/solus/storage/ledger"
)

func stringPtr(s string) *string {
	return &s
}

func newPostgresLedger(t *testing.T) ledger.Ledger {
	t.Helper()

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	l, err := ledger.Create(&config.Ledger{
		Strategy: "sql",
		SQL:      &config.SQLLedgerStrategy{Driver: "postgres", DSN: connStr, TablePrefix: stringPtr("test")},
	})
	if err != nil {
		t.Fatalf("failed to create postgres ledger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	return l
}

func newMySQLLedger(t *testing.T) ledger.Ledger {
	t.Helper()

	ctx := context.Background()

	mysqlContainer, err := mysql.Run(ctx,
		"mysql:8.0",
		mysql.WithDatabase("testdb"),
		mysql.WithUsername("testuser"),
		mysql.WithPassword("testpass"),
	)
	if err != nil {
		t.Fatalf("failed to start mysql container: %v", err)
	}

	t.Cleanup(func() {
		if err := mysqlContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate mysql container: %v", err)
		}
	})

	connStr, err := mysqlContainer.ConnectionString(ctx, "parseTime=true")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	l, err := ledger.Create(&config.Ledger{
		Strategy: "sql",
		SQL:      &config.SQLLedgerStrategy{Driver: "mysql", DSN: connStr, TablePrefix: stringPtr("test")},
	})
	if err != nil {
		t.Fatalf("failed to create mysql ledger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	return l
}

func exerciseLedger(t *testing.T, l ledger.Ledger) {
	t.Helper()

	ctx := context.Background()
	first := time.Now().UTC().Truncate(time.Second)

	if err := l.Record(ctx, ledger.Entry{Filename: "newbeat.wav", Category: "beat", Bucket: "beats", RemoteID: "v1", MirroredAt: first}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Record(ctx, ledger.Entry{Filename: "take1.mp3", Category: "upload", Bucket: "uploads", RemoteID: "v1", MirroredAt: first}); err != nil {
		t.Fatalf("record: %v", err)
	}

	// a second mirror of the same name replaces the first entry
	if err := l.Record(ctx, ledger.Entry{Filename: "newbeat.wav", Category: "beat", Bucket: "beats", RemoteID: "v2", MirroredAt: first.Add(time.Minute)}); err != nil {
		t.Fatalf("record again: %v", err)
	}

	entries, err := l.Mirrored(ctx)
	if err != nil {
		t.Fatalf("mirrored: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}

	beat := entries["newbeat.wav"]
	if beat.RemoteID != "v2" || beat.Bucket != "beats" || beat.Category != "beat" {
		t.Fatalf("expected replaced beat entry, got %+v", beat)
	}
	if !beat.MirroredAt.Equal(first.Add(time.Minute)) {
		t.Fatalf("unexpected mirrored time %v", beat.MirroredAt)
	}
}

func TestPostgres_LedgerRecordAndReplace(t *testing.T) {
	exerciseLedger(t, newPostgresLedger(t))
}

func TestMySQL_LedgerRecordAndReplace(t *testing.T) {
	exerciseLedger(t, newMySQLLedger(t))
}
