// internal/state/ledger.go
package state

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mferraretto/chatshopee22/internal/types"
)

// ledgerHeader matches the analytics sheet the shop already consumes.
var ledgerHeader = []string{
	"timestamp_utc",
	"order_id",
	"status",
	"produto",
	"variacao",
	"sku",
	"problema",
	"ultima_msg_comprador",
	"acao",
}

// CSVLedger is the append-only audit ledger, one row per handled
// conversation, skips included.
type CSVLedger struct {
	path string
	mu   sync.Mutex
}

func NewCSVLedger(path string) *CSVLedger {
	return &CSVLedger{path: path}
}

// Path returns the file path used by this ledger.
func (l *CSVLedger) Path() string {
	return l.path
}

// Append writes one audit row, creating the file with its header first.
func (l *CSVLedger) Append(entry types.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureHeader(); err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	row := []string{
		entry.Timestamp.UTC().Format(time.RFC3339),
		entry.OrderID,
		entry.Status,
		entry.Product,
		entry.Variation,
		entry.SKU,
		entry.ProblemCategory,
		entry.LastBuyerText,
		entry.Action,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write ledger row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush ledger row: %w", err)
	}
	return nil
}

func (l *CSVLedger) ensureHeader() error {
	if _, err := os.Stat(l.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(ledgerHeader); err != nil {
		return fmt.Errorf("write ledger header: %w", err)
	}
	w.Flush()
	return w.Error()
}
