// Package ledger records which stored files have been confirmed as mirrored.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/solusnoir/solus/config"
)

type Entry struct {
	Filename   string
	Category   string
	Bucket     string
	RemoteID   string
	MirroredAt time.Time
}

type Ledger interface {
	// Record stores or replaces the entry for e.Filename.
	Record(ctx context.Context, e Entry) error

	// Mirrored returns every recorded entry keyed by filename.
	Mirrored(ctx context.Context) (map[string]Entry, error)

	Close() error
}

// NoopLedger records nothing and reports nothing mirrored.
type NoopLedger struct{}

func (NoopLedger) Record(context.Context, Entry) error { return nil }

func (NoopLedger) Mirrored(context.Context) (map[string]Entry, error) {
	return map[string]Entry{}, nil
}

func (NoopLedger) Close() error { return nil }

// Create builds the ledger for the configured strategy.
func Create(cfg *config.Ledger) (Ledger, error) {
	switch cfg.Strategy {
	case "", "none":
		return NoopLedger{}, nil
	case "sql":
		return NewSQLLedger(cfg.SQL)
	default:
		return nil, fmt.Errorf("unknown ledger strategy %q", cfg.Strategy)
	}
}
