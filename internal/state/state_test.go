// internal/state/state_test.go
package state

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mferraretto/chatshopee22/internal/decide"
	"github.com/mferraretto/chatshopee22/internal/types"
)

func TestRuleStoreRoundTrip(t *testing.T) {
	store := NewRuleStore(filepath.Join(t.TempDir(), "rules.json"))

	rules, err := store.List()
	if err != nil {
		t.Fatalf("List on missing file failed: %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("expected empty table, got %d", len(rules))
	}

	rule := decide.Rule{
		ID:     "no-pix",
		Match:  decide.Match{AnyContains: []string{"pix"}},
		Action: "skip",
	}
	if err := store.Add(rule); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := store.Add(rule); err == nil {
		t.Fatal("duplicate id must be rejected")
	}

	got := store.Rules()
	if len(got) != 1 || got[0].ID != "no-pix" {
		t.Fatalf("Rules = %+v", got)
	}

	if err := store.SetActive("no-pix", false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	got = store.Rules()
	if got[0].IsActive() {
		t.Error("rule should be inactive")
	}

	if err := store.Remove("no-pix"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if len(store.Rules()) != 0 {
		t.Error("rule not removed")
	}
}

func TestRuleStoreAcceptsBareList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	bare := `[{"id":"r1","match":{"any_contains":["cupom"]},"reply":"tem sim"}]`
	if err := os.WriteFile(path, []byte(bare), 0o644); err != nil {
		t.Fatal(err)
	}

	rules := NewRuleStore(path).Rules()
	if len(rules) != 1 || rules[0].ID != "r1" {
		t.Errorf("rules = %+v", rules)
	}
}

func TestRuleStoreToleratesGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := NewRuleStore(path).List()
	if err != nil {
		t.Fatalf("garbage must not error: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("rules = %+v, want empty", rules)
	}
}

func TestCatalogStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog_rules.json")
	payload := `[{"match":["painel festa"],"producao_dias_uteis":"3","uf":"SP"}]`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	items := NewCatalogStore(path).Catalog()
	if len(items) != 1 || items[0].ProductionDays != "3" {
		t.Errorf("catalog = %+v", items)
	}

	if got := NewCatalogStore(filepath.Join(t.TempDir(), "missing.json")).Catalog(); len(got) != 0 {
		t.Errorf("missing file should yield empty catalog, got %+v", got)
	}
}

func TestCSVLedgerAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atendimentos.csv")
	ledger := NewCSVLedger(path)

	entry := types.AuditEntry{
		ID:              types.NewEntryID(),
		Timestamp:       time.Date(2025, 8, 14, 10, 22, 0, 0, time.UTC),
		OrderID:         "250814AB12CD",
		Status:          "to ship",
		Product:         "Painel Festa",
		Variation:       "Azul / Tam M",
		SKU:             "PF-AZ-M",
		ProblemCategory: "breakage",
		LastBuyerText:   "chegou rachado",
		Action:          "replied",
	}
	if err := ledger.Append(entry); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	entry.Action = "skipped"
	if err := ledger.Append(entry); err != nil {
		t.Fatalf("second Append failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "timestamp_utc" || rows[0][8] != "acao" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][1] != "250814AB12CD" || rows[1][6] != "breakage" || rows[1][8] != "replied" {
		t.Errorf("row = %v", rows[1])
	}
	if rows[2][8] != "skipped" {
		t.Errorf("row = %v", rows[2])
	}
}

func TestSnapshotStoreRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.jsonl")
	store := NewSnapshotStore(path)

	conv := &types.Conversation{
		ID:        "k1",
		OrderInfo: types.OrderInfo{OrderID: "250814AB12CD"},
		Timeline: types.Timeline{
			{Role: types.RoleBuyer, Text: "um"},
			{Role: types.RoleSeller, Text: "dois"},
			{Role: types.RoleBuyer, Text: "três"},
		},
	}
	dec := types.ReplyDecision{Action: types.ActionSkip, Reason: "pix-pending"}
	if err := store.Record(conv, dec); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Record(conv, dec); err != nil {
		t.Fatalf("second Record failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], `"pix-pending"`) || !strings.Contains(lines[0], `"250814AB12CD"`) {
		t.Errorf("record = %s", lines[0])
	}
}
